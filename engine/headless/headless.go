// Package headless is an in-memory implementation of package engine, with
// no rendering and no network. Navigation completes synchronously, emitting
// the same signal sequence a real engine would for a successful load.
//
// All engine methods must be called from the owner goroutine, see
// WithOwnerCheck. The accessors used to inspect recorded state (Views,
// History, Frames, Touches, etc) are safe for concurrent use.
package headless

import (
	"errors"
	"slices"
	"sync"

	"github.com/joeycumines/go-webglue/engine"
	"github.com/joeycumines/logiface"
)

type (
	// Engine is a headless engine.Engine.
	Engine struct {
		logger     *logiface.Logger[logiface.Event]
		ownerCheck func() bool
		viewErr    error
		mu         sync.Mutex
		contexts   int
		views      []*View
		violations int
	}

	// Option configures an Engine.
	Option func(e *Engine)

	// Context is a headless engine.Context.
	Context struct {
		engine *Engine
	}

	// View is a headless engine.View.
	View struct {
		engine   *Engine
		backend  *Backend
		subs     map[int]engine.Signals
		history  []string
		index    int
		id       int
		width    int
		height   int
		nextSub  int
		progress float64
		closes   int
	}

	// Backend is a headless engine.Backend, recording what was dispatched.
	Backend struct {
		engine  *Engine
		touches []engine.TouchEvent
		frames  int
	}
)

// compile time assertions
var (
	_ engine.Engine  = (*Engine)(nil)
	_ engine.Context = (*Context)(nil)
	_ engine.View    = (*View)(nil)
	_ engine.Backend = (*Backend)(nil)
)

// ErrClosed is logged when a view is used after TryClose.
var ErrClosed = errors.New(`headless: view closed`)

// WithLogger attaches a logger.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithOwnerCheck configures a predicate, called on entry to every engine
// method, that must report whether the caller is the owner goroutine (e.g.
// ownerloop.Loop.OnOwner). Violations are logged and counted, see
// Violations.
func WithOwnerCheck(onOwner func() bool) Option {
	return func(e *Engine) { e.ownerCheck = onOwner }
}

// WithViewError makes Context.NewView fail with err.
func WithViewError(err error) Option {
	return func(e *Engine) { e.viewErr = err }
}

// New returns a new headless engine.
func New(opts ...Option) *Engine {
	e := new(Engine)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetOwnerCheck replaces the owner check, see WithOwnerCheck. It is
// intended to be called before the engine is used.
func (e *Engine) SetOwnerCheck(onOwner func() bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ownerCheck = onOwner
}

func (e *Engine) NewContext() (engine.Context, error) {
	e.checkOwner(`NewContext`)
	e.mu.Lock()
	e.contexts++
	e.mu.Unlock()
	e.logger.Debug().Log(`headless context created`)
	return &Context{engine: e}, nil
}

// Contexts returns the number of contexts created.
func (e *Engine) Contexts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contexts
}

// Views returns every view created, in creation order.
func (e *Engine) Views() []*View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.views)
}

// Violations returns the number of engine calls made off the owner
// goroutine.
func (e *Engine) Violations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.violations
}

func (e *Engine) checkOwner(method string) {
	e.mu.Lock()
	check := e.ownerCheck
	e.mu.Unlock()
	if check == nil || check() {
		return
	}
	e.mu.Lock()
	e.violations++
	e.mu.Unlock()
	e.logger.Err().
		Str(`method`, method).
		Log(`headless engine called off the owner goroutine`)
}

func (c *Context) NewView(width, height int) (engine.View, error) {
	e := c.engine
	e.checkOwner(`NewView`)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.viewErr != nil {
		return nil, e.viewErr
	}

	v := &View{
		engine: e,
		id:     len(e.views) + 1,
		width:  width,
		height: height,
		index:  -1,
		subs:   make(map[int]engine.Signals),
	}
	v.backend = &Backend{engine: e}
	e.views = append(e.views, v)

	e.logger.Debug().
		Int(`view`, v.id).
		Int(`width`, width).
		Int(`height`, height).
		Log(`headless view created`)

	return v, nil
}

// ID returns the 1-based creation index of the view.
func (v *View) ID() int { return v.id }

// Size returns the dimensions the view was created with.
func (v *View) Size() (width, height int) {
	return v.width, v.height
}

func (v *View) Backend() engine.Backend {
	v.engine.checkOwner(`Backend`)
	return v.backend
}

// HeadlessBackend returns the backend, without the owner check, for
// inspection.
func (v *View) HeadlessBackend() *Backend { return v.backend }

func (v *View) LoadURI(uri string) {
	v.engine.checkOwner(`LoadURI`)
	v.engine.mu.Lock()
	if v.closes != 0 {
		v.engine.mu.Unlock()
		v.misuse(`LoadURI`)
		return
	}
	v.history = append(v.history[:v.index+1], uri)
	v.index = len(v.history) - 1
	v.engine.mu.Unlock()
	v.navigate()
}

func (v *View) GoBack() {
	v.engine.checkOwner(`GoBack`)
	v.step(-1)
}

func (v *View) GoForward() {
	v.engine.checkOwner(`GoForward`)
	v.step(1)
}

func (v *View) step(delta int) {
	v.engine.mu.Lock()
	if v.closes != 0 {
		v.engine.mu.Unlock()
		v.misuse(`step`)
		return
	}
	i := v.index + delta
	if i < 0 || i >= len(v.history) {
		v.engine.mu.Unlock()
		return
	}
	v.index = i
	v.engine.mu.Unlock()
	v.navigate()
}

func (v *View) Reload() {
	v.engine.checkOwner(`Reload`)
	v.engine.mu.Lock()
	if v.closes != 0 {
		v.engine.mu.Unlock()
		v.misuse(`Reload`)
		return
	}
	ok := v.index >= 0
	v.engine.mu.Unlock()
	if ok {
		v.navigate()
	}
}

func (v *View) TryClose() {
	v.engine.checkOwner(`TryClose`)
	v.engine.mu.Lock()
	v.closes++
	v.engine.mu.Unlock()
	v.engine.logger.Debug().
		Int(`view`, v.id).
		Log(`headless view closed`)
}

func (v *View) EstimatedLoadProgress() float64 {
	v.engine.checkOwner(`EstimatedLoadProgress`)
	v.engine.mu.Lock()
	defer v.engine.mu.Unlock()
	return v.progress
}

func (v *View) Connect(signals engine.Signals) (disconnect func()) {
	v.engine.checkOwner(`Connect`)
	v.engine.mu.Lock()
	defer v.engine.mu.Unlock()
	id := v.nextSub
	v.nextSub++
	v.subs[id] = signals
	return func() {
		v.engine.mu.Lock()
		defer v.engine.mu.Unlock()
		delete(v.subs, id)
	}
}

// History returns the session history, and the index of the current entry
// (-1 if nothing was loaded).
func (v *View) History() ([]string, int) {
	v.engine.mu.Lock()
	defer v.engine.mu.Unlock()
	return slices.Clone(v.history), v.index
}

// URL returns the current entry, or "".
func (v *View) URL() string {
	v.engine.mu.Lock()
	defer v.engine.mu.Unlock()
	if v.index < 0 {
		return ``
	}
	return v.history[v.index]
}

// Closes returns the number of times TryClose was called.
func (v *View) Closes() int {
	v.engine.mu.Lock()
	defer v.engine.mu.Unlock()
	return v.closes
}

// Subscribers returns the number of connected signal subscriptions.
func (v *View) Subscribers() int {
	v.engine.mu.Lock()
	defer v.engine.mu.Unlock()
	return len(v.subs)
}

// navigate emits a successful load of the current entry.
func (v *View) navigate() {
	v.engine.logger.Debug().
		Int(`view`, v.id).
		Str(`url`, v.URL()).
		Log(`headless navigation`)

	v.setProgress(0)
	v.emitLoad(engine.LoadStarted)
	v.setProgress(0.5)
	v.emitLoad(engine.LoadCommitted)
	v.setProgress(1)
	v.emitLoad(engine.LoadFinished)
}

func (v *View) setProgress(p float64) {
	v.engine.mu.Lock()
	changed := v.progress != p
	v.progress = p
	subs := v.subscriptions()
	v.engine.mu.Unlock()
	if !changed {
		return
	}
	for _, s := range subs {
		if s.LoadProgressChanged != nil {
			s.LoadProgressChanged(p)
		}
	}
}

func (v *View) emitLoad(event engine.LoadEvent) {
	v.engine.mu.Lock()
	subs := v.subscriptions()
	v.engine.mu.Unlock()
	for _, s := range subs {
		if s.LoadChanged != nil {
			s.LoadChanged(event)
		}
	}
}

// subscriptions returns the connected signals in connect order, the caller
// must hold the lock.
func (v *View) subscriptions() []engine.Signals {
	ids := make([]int, 0, len(v.subs))
	for id := range v.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	subs := make([]engine.Signals, len(ids))
	for i, id := range ids {
		subs[i] = v.subs[id]
	}
	return subs
}

func (v *View) misuse(method string) {
	v.engine.logger.Warning().
		Int(`view`, v.id).
		Str(`method`, method).
		Err(ErrClosed).
		Log(`headless view used after close`)
}

func (b *Backend) DispatchFrameComplete() {
	b.engine.checkOwner(`DispatchFrameComplete`)
	b.engine.mu.Lock()
	defer b.engine.mu.Unlock()
	b.frames++
}

func (b *Backend) DispatchTouchEvent(event engine.TouchEvent) {
	b.engine.checkOwner(`DispatchTouchEvent`)
	event.Points = slices.Clone(event.Points)
	b.engine.mu.Lock()
	defer b.engine.mu.Unlock()
	b.touches = append(b.touches, event)
}

// Frames returns the number of frame completions dispatched.
func (b *Backend) Frames() int {
	b.engine.mu.Lock()
	defer b.engine.mu.Unlock()
	return b.frames
}

// Touches returns the touch events dispatched, in order.
func (b *Backend) Touches() []engine.TouchEvent {
	b.engine.mu.Lock()
	defer b.engine.mu.Unlock()
	return slices.Clone(b.touches)
}
