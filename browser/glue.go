// Package browser is the glue between an embedding application and a
// browser engine, whose resources are confined to a single owner goroutine.
//
// A Glue owns one ownerloop.Loop. Every operation is forwarded to the owner
// as a posted task: most are fire-and-forget, CreateView blocks the caller
// (never the owner) until the view exists, and frame and touch notifications
// take priority over everything else queued.
package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-webglue/engine"
	"github.com/joeycumines/go-webglue/ownerloop"
	"github.com/joeycumines/logiface"
)

var (
	// ErrNotInitialized is returned by operations requiring Initialize.
	ErrNotInitialized = errors.New(`browser: not initialized`)
	// ErrShutdown is returned by Initialize after Shutdown.
	ErrShutdown = errors.New(`browser: shut down`)
)

type (
	// Glue dispatches browser operations onto the owner goroutine.
	//
	// All methods are safe for concurrent use, except from the owner
	// goroutine itself, where CreateView and NewView fail with
	// ownerloop.ErrCallOnOwner.
	Glue struct {
		engine engine.Engine
		logger *logiface.Logger[logiface.Event]

		// running is set once, by the first successful Initialize
		running atomic.Pointer[ownerState]

		loopOptions []ownerloop.LoopOption
		callTimeout time.Duration

		// pending is the loop of the latest Initialize, stopped by Shutdown
		pending atomic.Pointer[ownerloop.Loop]

		// mu serializes Initialize
		mu       sync.Mutex
		shutdown atomic.Bool

		// owner only

		context    engine.Context
		views      map[ViewHandle]*viewEntry
		active     *viewEntry
		lastHandle ViewHandle
	}

	ownerState struct {
		loop    *ownerloop.Loop
		frames  *ownerloop.Source[struct{}]
		touches *ownerloop.Source[engine.TouchPoint]
	}
)

// New constructs a Glue for eng. The owner loop is not created until
// Initialize.
func New(eng engine.Engine, opts ...Option) *Glue {
	if eng == nil {
		panic(`browser: nil engine`)
	}
	var o glueOptions
	for _, opt := range opts {
		if opt != nil {
			opt.applyGlue(&o)
		}
	}
	return &Glue{
		engine:      eng,
		logger:      o.logger,
		loopOptions: o.loopOptions,
		callTimeout: o.callTimeout,
		views:       make(map[ViewHandle]*viewEntry),
	}
}

// Initialize creates and starts the owner loop, blocking until it is ready,
// then creates the engine context on the owner goroutine.
//
// Only the first successful call does anything, later calls return nil. The
// loop is never recreated: after Shutdown, ErrShutdown is returned.
func (g *Glue) Initialize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.shutdown.Load() {
		return ErrShutdown
	}
	if g.running.Load() != nil {
		return nil
	}

	g.logger.Debug().
		Int(`tid`, ownerloop.CurrentThreadID()).
		Log(`browser glue initializing`)

	opts := append([]ownerloop.LoopOption{
		ownerloop.WithName(`browser`),
		ownerloop.WithLogger(g.logger),
		ownerloop.WithLockOSThread(true),
	}, g.loopOptions...)
	loop, err := ownerloop.New(opts...)
	if err != nil {
		return err
	}

	// pairs with Shutdown: either it sees the loop, or this sees the flag
	g.pending.Store(loop)
	if g.shutdown.Load() {
		_ = loop.Close()
		return ErrShutdown
	}

	// the loop outlives ctx, see Shutdown
	if err := loop.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	_, err = ownerloop.CallValue(ctx, loop, func() (struct{}, error) {
		c, err := g.engine.NewContext()
		if err != nil {
			return struct{}{}, err
		}
		g.context = c
		return struct{}{}, nil
	})
	if err != nil {
		_ = loop.Close()
		if g.shutdown.Load() {
			return ErrShutdown
		}
		g.logger.Err().
			Err(err).
			Log(`browser engine context creation failed`)
		return err
	}

	r := &ownerState{loop: loop}
	r.frames = ownerloop.NewSource(loop, `frames`, g.frameComplete)
	r.touches = ownerloop.NewSource(loop, `touches`, g.touch)
	g.running.Store(r)

	if g.shutdown.Load() {
		// stopped by a concurrent Shutdown, still observable via Done
		return ErrShutdown
	}

	g.logger.Info().
		Str(`loop`, loop.Name()).
		Uint64(`loop_id`, loop.ID()).
		Int(`tid`, loop.ThreadID()).
		Log(`browser glue initialized`)

	return nil
}

// Shutdown requests the owner loop to stop, without waiting, see Done and
// Wait. Work already queued still runs. Later operations are dropped. An
// Initialize in progress fails with ErrShutdown.
func (g *Glue) Shutdown() {
	g.shutdown.Store(true)
	if loop := g.pending.Load(); loop != nil {
		g.logger.Debug().Log(`browser glue shutting down`)
		loop.Stop()
	}
}

// Done returns a channel closed once the owner loop has stopped. It is nil
// (blocks forever) prior to a successful Initialize.
func (g *Glue) Done() <-chan struct{} {
	if r := g.running.Load(); r != nil {
		return r.loop.Done()
	}
	return nil
}

// Wait blocks until the owner loop has stopped, or ctx is done.
func (g *Glue) Wait(ctx context.Context) error {
	r := g.running.Load()
	if r == nil {
		return ErrNotInitialized
	}
	select {
	case <-r.loop.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Loop returns the owner loop, or nil prior to a successful Initialize.
func (g *Glue) Loop() *ownerloop.Loop {
	if r := g.running.Load(); r != nil {
		return r.loop
	}
	return nil
}

// Metrics returns the owner loop's metrics, see ownerloop.WithMetrics.
func (g *Glue) Metrics() ownerloop.MetricsSnapshot {
	if r := g.running.Load(); r != nil {
		return r.loop.Metrics()
	}
	return ownerloop.MetricsSnapshot{}
}

// EventStats returns the counters of the frame and touch event sources.
func (g *Glue) EventStats() (frames, touches ownerloop.SourceStats) {
	if r := g.running.Load(); r != nil {
		return r.frames.Stats(), r.touches.Stats()
	}
	return
}

func (g *Glue) owner() (*ownerState, error) {
	if r := g.running.Load(); r != nil {
		return r, nil
	}
	return nil, ErrNotInitialized
}

// post forwards a fire-and-forget operation. Failures are only logged.
func (g *Glue) post(op string, task ownerloop.Task) {
	r, err := g.owner()
	if err == nil {
		err = r.loop.PostTask(task)
	} else if task.Release != nil {
		task.Release()
	}
	if err != nil {
		g.logger.Debug().
			Str(`op`, op).
			Err(err).
			Log(`browser operation dropped`)
	}
}
