package ownerloop

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// Loop is a single-owner cooperative event loop.
//
// Exactly one goroutine, the owner, executes task bodies, one at a time, to
// completion. Any goroutine may post work. Resources created by tasks belong
// to the owner, and must only ever be touched by later tasks.
//
// Loops are single use: Created → Running → Stopping → Stopped.
type Loop struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	logger       *logiface.Logger[logiface.Event]
	metrics      *metrics
	limiter      *catrate.Limiter
	panicHandler func(any)

	lanes *lanes
	ready *Barrier

	// wake holds at most one pending wake-up token
	wake chan struct{}
	// done is closed once the loop reaches StateStopped
	done chan struct{}

	name string

	startupTimeout time.Duration

	state fastState

	// Goroutine tracking
	ownerGoroutine atomic.Uint64
	ownerThread    atomic.Int64

	id uint64

	stopRequested atomic.Bool
	ctxStopped    atomic.Bool

	lockOSThread bool
}

var loopIDCounter atomic.Uint64

// New creates a new Loop. It does not start it, see Run and Start.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		id:             loopIDCounter.Add(1),
		name:           cfg.name,
		logger:         cfg.logger,
		panicHandler:   cfg.panicHandler,
		lockOSThread:   cfg.lockOSThread,
		startupTimeout: cfg.startupTimeout,
		lanes:          newLanes(),
		ready:          NewBarrier(),
		wake:           make(chan struct{}, 1),
		done:           make(chan struct{}),
	}

	if cfg.metricsEnabled {
		l.metrics = &metrics{}
	}

	if len(cfg.rejectLogRates) != 0 {
		l.limiter = catrate.NewLimiter(cfg.rejectLogRates)
	}

	return l, nil
}

// Run runs the loop on the calling goroutine, which becomes the owner, and
// blocks until the loop has stopped.
//
// A stop is honored only once every task queued before it has run. Run
// returns ctx.Err() if the stop was caused by ctx, otherwise nil.
func (l *Loop) Run(ctx context.Context) error {
	if l.OnOwner() {
		return ErrReentrantRun
	}
	if err := l.enter(); err != nil {
		return err
	}
	return l.run(ctx)
}

// Start runs the loop on a new goroutine, blocking until the owner has
// signaled readiness (see Barrier), or the startup timeout (if configured)
// elapses. A loop that fails to start is closed.
func (l *Loop) Start(ctx context.Context) error {
	if l.OnOwner() {
		return ErrReentrantRun
	}
	if err := l.enter(); err != nil {
		return err
	}

	go func() { _ = l.run(ctx) }()

	waitCtx := context.Background()
	if l.startupTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(waitCtx, l.startupTimeout)
		defer cancel()
	}

	if err := l.ready.WaitContext(waitCtx); err != nil {
		l.logger.Crit().
			Str(`loop`, l.name).
			Uint64(`loop_id`, l.id).
			Err(err).
			Log(`owner loop startup fault`)
		_ = l.Close()
		return err
	}

	return nil
}

// enter performs the Created → Running transition.
func (l *Loop) enter() error {
	if l.state.TryTransition(StateCreated, StateRunning) {
		return nil
	}
	if l.state.IsTerminal() {
		return ErrLoopTerminated
	}
	return ErrLoopAlreadyRunning
}

// run is the owner goroutine's entry point.
func (l *Loop) run(ctx context.Context) error {
	if l.lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	l.ready.Open(func() error {
		l.ownerGoroutine.Store(getGoroutineID())
		if l.lockOSThread {
			l.ownerThread.Store(int64(currentThreadID()))
		}
		return nil
	})
	defer l.ownerGoroutine.Store(0)

	l.logger.Debug().
		Str(`loop`, l.name).
		Uint64(`loop_id`, l.id).
		Int64(`tid`, l.ownerThread.Load()).
		Log(`owner loop entered`)

	// context cancellation is just another stop request
	stopWatch := context.AfterFunc(ctx, func() {
		l.ctxStopped.Store(true)
		l.Stop()
	})
	defer stopWatch()

	for {
		if it, ok := l.lanes.pop(); ok {
			l.execute(it)
			continue
		}

		if l.stopRequested.Load() {
			l.state.TryTransition(StateRunning, StateStopping)
			if l.lanes.closeIfEmpty() {
				break
			}
			// raced with a post, drain it
			continue
		}

		<-l.wake
	}

	l.state.Store(StateStopped)
	close(l.done)

	l.logger.Debug().
		Str(`loop`, l.name).
		Uint64(`loop_id`, l.id).
		Log(`owner loop quitting`)

	if l.ctxStopped.Load() {
		return ctx.Err()
	}
	return nil
}

// Stop requests the loop to stop, without waiting. Tasks already queued will
// still run. Safe to call from any goroutine (including the owner) and any
// number of times. A stop requested before the loop runs is honored as soon
// as the loop has drained whatever was queued.
func (l *Loop) Stop() {
	l.stopRequested.Store(true)
	l.state.TryTransition(StateRunning, StateStopping)
	l.wakeup()
}

// Shutdown stops the loop, and waits for it to finish draining, or for ctx
// to be done.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.Stop()
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close terminates the loop immediately, without waiting. Any task that has
// not yet begun to run is discarded: its Release runs (on the calling
// goroutine), its Run never will. A task already running completes.
//
// Returns ErrLoopTerminated if the loop was already stopped.
func (l *Loop) Close() error {
	if l.state.IsTerminal() {
		return ErrLoopTerminated
	}

	l.discard(l.lanes.close())

	if l.state.TryTransition(StateCreated, StateStopped) {
		l.ready.Fail(ErrLoopTerminated)
		close(l.done)
		return nil
	}

	l.Stop()
	return nil
}

// Done returns a channel that is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// State returns the current loop state.
func (l *Loop) State() LoopState {
	return l.state.Load()
}

// ID returns the loop's process unique identifier.
func (l *Loop) ID() uint64 {
	return l.id
}

// Name returns the name the loop was configured with.
func (l *Loop) Name() string {
	return l.name
}

// ThreadID returns the OS thread id of the owner, if the loop is running
// WithLockOSThread(true) on a supported platform, otherwise 0.
func (l *Loop) ThreadID() int {
	return int(l.ownerThread.Load())
}

// OnOwner reports whether the caller is the owner goroutine of a running
// loop.
func (l *Loop) OnOwner() bool {
	id := l.ownerGoroutine.Load()
	if id == 0 {
		return false
	}
	return getGoroutineID() == id
}

// Post posts fn to run on the owner goroutine, with default priority.
func (l *Loop) Post(fn func()) error {
	return l.PostTask(Task{Run: fn})
}

// PostTask posts t to run on the owner goroutine. See Task for the
// finalizer contract.
//
// Posting is accepted until the loop has stopped, including while it is
// draining after a stop request. Once stopped (or closed), ErrLoopTerminated
// is returned, and t.Release (if any) is called before PostTask returns.
func (l *Loop) PostTask(t Task) error {
	if !t.Priority.Valid() {
		l.releaseTask(t.Release)
		return fmt.Errorf("ownerloop: invalid priority: %s", t.Priority)
	}
	return l.push(item{
		run:      t.Run,
		release:  t.Release,
		priority: t.Priority,
	})
}

func (l *Loop) push(it item) error {
	if l.metrics != nil {
		it.posted = time.Now()
	}

	if !l.lanes.push(it) {
		l.reject(it)
		return ErrLoopTerminated
	}

	if l.metrics != nil {
		l.metrics.posted[it.priority.lane()].Add(1)
	}

	l.wakeup()
	return nil
}

func (l *Loop) wakeup() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// execute runs a task on the owner goroutine, releasing it after.
func (l *Loop) execute(it item) {
	if l.metrics != nil {
		l.metrics.wait.record(time.Since(it.posted))
		l.metrics.executed[it.priority.lane()].Add(1)
	}
	if it.release != nil {
		defer l.releaseTask(it.release)
	}
	l.safeExecute(it.run)
}

// safeExecute executes a function with panic recovery.
func (l *Loop) safeExecute(fn func()) {
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			if l.metrics != nil {
				l.metrics.panics.Add(1)
			}
			l.logger.Err().
				Str(`loop`, l.name).
				Uint64(`loop_id`, l.id).
				Err(PanicError{Value: r}).
				Log(`task panicked`)
			if l.panicHandler != nil {
				l.panicHandler(r)
			}
		}
	}()

	fn()
}

// releaseTask runs a finalizer, with panic recovery.
func (l *Loop) releaseTask(release func()) {
	if release == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			l.logger.Err().
				Str(`loop`, l.name).
				Uint64(`loop_id`, l.id).
				Err(PanicError{Value: r}).
				Log(`task finalizer panicked`)
		}
	}()

	if l.metrics != nil {
		l.metrics.released.Add(1)
	}

	release()
}

// discard releases items that will never run.
func (l *Loop) discard(items []item) {
	for _, it := range items {
		if l.metrics != nil {
			l.metrics.discarded[it.priority.lane()].Add(1)
		}
		l.releaseTask(it.release)
	}
	if len(items) != 0 {
		l.logger.Debug().
			Str(`loop`, l.name).
			Uint64(`loop_id`, l.id).
			Int(`count`, len(items)).
			Log(`discarded queued tasks`)
	}
}

// reject handles an item posted to a terminated loop.
func (l *Loop) reject(it item) {
	if l.metrics != nil {
		l.metrics.rejected[it.priority.lane()].Add(1)
	}
	if _, ok := l.limiter.Allow(l.id); ok {
		l.logger.Warning().
			Str(`loop`, l.name).
			Uint64(`loop_id`, l.id).
			Stringer(`priority`, it.priority).
			Err(ErrLoopTerminated).
			Log(`task rejected`)
	}
	l.releaseTask(it.release)
}

// CurrentThreadID returns the OS thread id of the calling goroutine's
// current thread, or 0 where unsupported. Unless the goroutine is locked to
// its thread, the result is only a hint.
func CurrentThreadID() int {
	return currentThreadID()
}
