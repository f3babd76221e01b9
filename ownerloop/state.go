package ownerloop

import (
	"sync/atomic"
)

// LoopState represents the current state of an owner loop.
//
// State Machine:
//
//	StateCreated  → StateRunning   [Run()]
//	StateCreated  → StateStopped   [Close() before Run()]
//	StateRunning  → StateStopping  [Stop(), Shutdown(), Close(), ctx done]
//	StateStopping → StateStopped   [queue drained (or discarded) on the owner]
//	StateStopped  → (terminal)
//
// State Transition Rules:
//   - Use TryTransition() (CAS) for every transition out of Created/Running
//   - Use Store() only for the terminal StateStopped
//
// There is no way back to StateRunning: once stopped, the owner goroutine
// has exited and the resources it owned are gone.
type LoopState uint32

const (
	// StateCreated indicates the loop has been constructed but not entered.
	StateCreated LoopState = iota
	// StateRunning indicates the owner goroutine is executing the loop.
	StateRunning
	// StateStopping indicates a stop has been requested and the loop is
	// draining its queue.
	StateStopping
	// StateStopped indicates the loop has exited. Posts are rejected.
	StateStopped
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state machine.
type fastState struct {
	v atomic.Uint32
}

func (s *fastState) Load() LoopState {
	return LoopState(s.v.Load())
}

func (s *fastState) Store(state LoopState) {
	s.v.Store(uint32(state))
}

// TryTransition attempts to atomically transition from one state to another.
// Returns true if the transition was successful.
func (s *fastState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// IsTerminal returns true if the current state is StateStopped.
func (s *fastState) IsTerminal() bool {
	return s.Load() == StateStopped
}
