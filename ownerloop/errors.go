package ownerloop

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when Run() is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("ownerloop: loop is already running")

	// ErrLoopTerminated is returned when work is posted to, or Run() is
	// called on, a loop that has stopped (or is being closed).
	ErrLoopTerminated = errors.New("ownerloop: loop has been terminated")

	// ErrReentrantRun is returned when Run() is called from within the loop itself.
	ErrReentrantRun = errors.New("ownerloop: cannot call Run() from within the loop")

	// ErrCallOnOwner is returned by Call when invoked from the owner
	// goroutine of the target loop, which would wait on itself forever.
	ErrCallOnOwner = errors.New("ownerloop: synchronous call from the owner goroutine")

	// ErrStartupTimeout is returned when the owner loop did not signal
	// readiness before the startup deadline.
	ErrStartupTimeout = errors.New("ownerloop: owner loop did not become ready")
)

// PanicError wraps a value recovered from a panicking task body.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("ownerloop: task panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
// This enables use with [errors.Is] and [errors.As].
//
// If the panic Value is not an error (e.g., a string or other type),
// returns nil.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
