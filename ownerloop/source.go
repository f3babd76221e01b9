package ownerloop

import (
	"sync/atomic"
)

// Invoke posts fn with PriorityHigh, ahead of any queued default or idle
// work. It is the fire-and-forget variant of Post, for signals that must not
// wait behind bulk work. The returned error is ErrLoopTerminated if the loop
// has stopped.
func (l *Loop) Invoke(fn func()) error {
	return l.PostTask(Task{Run: fn, Priority: PriorityHigh})
}

// Source is a typed, high priority event source bound to a Loop.
//
// Values emitted from any goroutine are dispatched to the handler on the
// owner goroutine, in emit order, and ahead of any queued default or idle
// work. A Source has no state beyond its counters, it is safe to share.
type Source[T any] struct {
	loop       *Loop
	handle     func(T)
	name       string
	emitted    atomic.Uint64
	dispatched atomic.Uint64
	rejected   atomic.Uint64
}

// SourceStats are the counters of a Source.
type SourceStats struct {
	// Emitted counts values accepted onto the loop.
	Emitted uint64
	// Dispatched counts values delivered to the handler.
	Dispatched uint64
	// Rejected counts values refused because the loop had terminated.
	Rejected uint64
}

// NewSource binds handle to l. It panics if l or handle is nil.
func NewSource[T any](l *Loop, name string, handle func(T)) *Source[T] {
	if l == nil {
		panic(`ownerloop: nil loop`)
	}
	if handle == nil {
		panic(`ownerloop: nil source handler`)
	}
	return &Source[T]{loop: l, handle: handle, name: name}
}

// Name returns the name the source was created with.
func (s *Source[T]) Name() string { return s.name }

// Emit queues v for dispatch on the owner goroutine. It never blocks on the
// owner. Returns ErrLoopTerminated if the loop has stopped, in which case v
// is dropped.
func (s *Source[T]) Emit(v T) error {
	err := s.loop.PostTask(Task{
		Run: func() {
			s.dispatched.Add(1)
			s.handle(v)
		},
		Priority: PriorityHigh,
	})
	if err != nil {
		s.rejected.Add(1)
		return err
	}
	s.emitted.Add(1)
	return nil
}

// Stats returns a snapshot of the source's counters.
func (s *Source[T]) Stats() SourceStats {
	return SourceStats{
		Emitted:    s.emitted.Load(),
		Dispatched: s.dispatched.Load(),
		Rejected:   s.rejected.Load(),
	}
}
