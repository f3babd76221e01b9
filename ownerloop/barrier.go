package ownerloop

import (
	"context"
	"fmt"
	"sync"
)

// Barrier is a one-shot readiness signal, letting a launching goroutine block
// until an owner goroutine has constructed its loop handle.
//
// The owner calls Open exactly once: the lock is held while the handle is
// constructed, the condition is broadcast, and only then is the lock
// released. A waiter that returns without error is therefore guaranteed the
// handle exists, though not that the loop has begun executing tasks.
//
// The zero value is not usable, use NewBarrier.
type Barrier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	err      error
	signaled bool
}

// NewBarrier returns an unsignaled Barrier.
func NewBarrier() *Barrier {
	b := &Barrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Open runs construct under the barrier's lock, then releases all waiters.
// A non-nil error from construct is recorded as a startup fault, and is
// returned by Wait. Only the first Open or Fail has any effect, later calls
// return false without calling construct.
func (b *Barrier) Open(construct func() error) (opened bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.signaled {
		return false
	}
	if construct != nil {
		b.err = construct()
	}
	b.signaled = true
	b.cond.Broadcast()
	return true
}

// Fail releases all waiters with err, without constructing anything.
func (b *Barrier) Fail(err error) bool {
	if err == nil {
		panic(`ownerloop: barrier failed with nil error`)
	}
	return b.Open(func() error { return err })
}

// Wait blocks until the barrier is opened, returning the startup fault, if
// any. There is no timeout, see WaitContext.
func (b *Barrier) Wait() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for !b.signaled {
		b.cond.Wait()
	}
	return b.err
}

// WaitContext is like Wait, but gives up once ctx is done, returning an error
// that wraps both ErrStartupTimeout and the context's error.
func (b *Barrier) WaitContext(ctx context.Context) error {
	if ctx.Done() == nil {
		return b.Wait()
	}

	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.cond.Broadcast()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for !b.signaled {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrStartupTimeout, err)
		}
		b.cond.Wait()
	}
	return b.err
}

// Ready reports whether the barrier has been opened, successfully.
func (b *Barrier) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.signaled && b.err == nil
}
