// Package ownerloop provides a single-owner cooperative event loop, for
// resources that must only ever be touched by one goroutine (and, optionally,
// one OS thread), such as the objects of an embedded native engine.
//
// # Architecture
//
// A [Loop] has exactly one owner goroutine, which executes posted tasks one
// at a time, to completion. Every other goroutine interacts with the owned
// resources only by posting work:
//   - [Loop.Post], [Loop.PostTask] and [PostPayload] queue fire-and-forget
//     tasks, each with an optional finalizer, see [Task]
//   - [Loop.Invoke] and [Source] queue latency sensitive, high priority items
//   - [Call] and [CallValue] bridge a result back to the calling goroutine
//
// Startup is synchronized by a [Barrier]: [Loop.Start] returns only once the
// owner has constructed its handle, and [Loop.Run] runs the owner on the
// calling goroutine.
//
// # Ordering
//
// Work is queued on one of three lanes, see [Priority]. Each iteration, the
// owner runs the oldest item of the highest non-empty lane. Items of equal
// priority run in post order. Items of different priorities have no FIFO
// relationship.
//
// # Lifecycle
//
// Loops are single use, see [LoopState]. A stop requested via [Loop.Stop],
// [Loop.Shutdown] or context cancellation is cooperative: the running task
// completes, and everything already queued drains, before the loop exits.
// [Loop.Close] is immediate: queued tasks are discarded, and their
// finalizers run. Once stopped, posts fail with [ErrLoopTerminated], and
// their finalizers run on the posting goroutine.
//
// # Usage
//
//	loop, err := ownerloop.New(
//	    ownerloop.WithName(`engine`),
//	    ownerloop.WithLockOSThread(true),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := loop.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Shutdown(context.Background())
//
//	handle, err := ownerloop.CallValue(ctx, loop, func() (int, error) {
//	    return newThing(), nil // runs on the owner
//	})
package ownerloop
