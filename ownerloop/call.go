package ownerloop

import (
	"context"
)

// pendingCall is the per-invocation state of Call.
//
// The completion loop runs on the calling goroutine, which is therefore the
// only goroutine to touch delivered.
type pendingCall[T any] struct {
	completion *Loop
	deliver    func(T, error)
	delivered  bool
}

func (pc *pendingCall[T]) complete(v T, err error) {
	if pc.delivered {
		return
	}
	pc.delivered = true
	pc.deliver(v, err)
}

// Call runs fn on the owner goroutine of owner, and calls deliver with its
// result on the calling goroutine, before Call returns.
//
// The caller blocks on a private completion loop, never on the owner, and
// the owner never waits on the caller: fn runs as an ordinary default
// priority task, which then posts the delivery onto the completion loop.
// Work posted to the completion loop (e.g. by deliver) runs on the caller's
// goroutine.
//
// The deliver func is called exactly once. If the result could not be
// produced, deliver receives the zero value and the error, which is also
// returned by Call:
//   - ErrCallOnOwner if called from the owner goroutine itself
//   - ErrLoopTerminated if the owner stopped (or was closed) before running fn
//   - ctx.Err() if ctx was done before the result arrived, in which case any
//     late result is dropped
//
// Errors returned by fn are only passed to deliver. A panic in fn is
// delivered as a PanicError.
//
// See also CallReclaim, for results that must not be leaked.
func Call[T any](ctx context.Context, owner *Loop, fn func() (T, error), deliver func(T, error)) error {
	return CallReclaim(ctx, owner, fn, nil, deliver)
}

// CallReclaim is Call, with reclaim (optional) run on the owner goroutine
// with any successful result of fn that could not be delivered, because
// the caller gave up first. Exactly one of deliver and reclaim receives a
// successful result.
func CallReclaim[T any](ctx context.Context, owner *Loop, fn func() (T, error), reclaim func(T), deliver func(T, error)) error {
	if deliver == nil {
		deliver = func(T, error) {}
	}

	if owner.OnOwner() {
		var zero T
		deliver(zero, ErrCallOnOwner)
		return ErrCallOnOwner
	}

	completion, err := New(
		WithName(owner.name+`/call`),
		WithLogger(owner.logger),
		WithRejectLogRate(nil),
	)
	if err != nil {
		var zero T
		deliver(zero, err)
		return err
	}
	// late results are rejected under the owner's limits
	completion.limiter = owner.limiter

	pc := &pendingCall[T]{completion: completion, deliver: deliver}

	var ran bool
	err = owner.PostTask(Task{
		Run: func() {
			ran = true
			v, err := callSafely(fn)
			// rejected if the caller already gave up
			if pc.completion.Post(func() {
				pc.complete(v, err)
				pc.completion.Stop()
			}) != nil && err == nil && reclaim != nil {
				reclaim(v)
			}
		},
		Release: func() {
			if !ran {
				// discarded by the owner, release the caller
				pc.completion.Stop()
			}
		},
	})
	if err != nil {
		_ = completion.Close()
		var zero T
		pc.complete(zero, err)
		return err
	}

	err = completion.Run(ctx)
	if pc.delivered {
		return nil
	}

	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = ErrLoopTerminated
	}
	var zero T
	pc.complete(zero, err)
	return err
}

// CallValue is a convenience wrapper around Call, returning the value
// produced by fn (or the error).
func CallValue[T any](ctx context.Context, owner *Loop, fn func() (T, error)) (T, error) {
	var (
		value T
		err   error
	)
	callErr := Call(ctx, owner, fn, func(v T, e error) {
		value, err = v, e
	})
	if err == nil && callErr != nil {
		err = callErr
	}
	return value, err
}

func callSafely[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, PanicError{Value: r}
		}
	}()
	if fn == nil {
		return
	}
	return fn()
}
