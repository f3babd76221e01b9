package browser

import (
	"bytes"
	"context"

	"github.com/joeycumines/go-webglue/engine"
	"github.com/joeycumines/go-webglue/ownerloop"
)

type (
	// ViewHandle identifies a view created by CreateView. It is opaque, and
	// only meaningful when passed back to the Glue that created it. The
	// zero value is never a valid handle.
	ViewHandle uint64

	// Observer receives the signals of a single view. Methods are called on
	// the owner goroutine, and must not block.
	Observer interface {
		OnLoadChanged(event engine.LoadEvent)
		OnLoadProgress(progress float64)
	}

	// ObserverFuncs implements Observer, either func may be nil.
	ObserverFuncs struct {
		LoadChanged  func(event engine.LoadEvent)
		LoadProgress func(progress float64)
	}

	// viewEntry is the owner's record of a live view.
	viewEntry struct {
		view       engine.View
		observer   Observer
		disconnect func()
		handle     ViewHandle
	}

	// loadURL is the payload of a LoadURL task.
	loadURL struct {
		url    []byte
		handle ViewHandle
	}
)

var _ Observer = ObserverFuncs{}

func (x ObserverFuncs) OnLoadChanged(event engine.LoadEvent) {
	if x.LoadChanged != nil {
		x.LoadChanged(event)
	}
}

func (x ObserverFuncs) OnLoadProgress(progress float64) {
	if x.LoadProgress != nil {
		x.LoadProgress(progress)
	}
}

// CreateView creates a view on the owner goroutine, calling onReady with its
// handle (or an error) on the calling goroutine, exactly once, before
// CreateView returns. Negative dimensions are clamped to zero.
//
// The observer (optional) is bound to the new view, and only ever called on
// the owner goroutine. The new view becomes the target of
// NotifyFrameComplete and DispatchTouch. A view created after the caller
// gave up (ctx done) is closed again on the owner, and never becomes
// reachable.
//
// The returned error is non-nil if the request could not be completed (not
// initialized, shut down, or ctx done), and is also passed to onReady.
// Errors creating the view itself are only passed to onReady.
func (g *Glue) CreateView(ctx context.Context, width, height int, observer Observer, onReady func(ViewHandle, error)) error {
	r, err := g.owner()
	if err != nil {
		if onReady != nil {
			onReady(0, err)
		}
		return err
	}

	if g.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
	}

	width, height = max(0, width), max(0, height)

	return ownerloop.CallReclaim(ctx, r.loop, func() (ViewHandle, error) {
		if err := ctx.Err(); err != nil {
			// the caller has already given up
			return 0, err
		}
		return g.createView(width, height, observer)
	}, g.reclaimView, onReady)
}

// NewView is CreateView, returning the handle.
func (g *Glue) NewView(ctx context.Context, width, height int, observer Observer) (ViewHandle, error) {
	var (
		handle ViewHandle
		err    error
	)
	_ = g.CreateView(ctx, width, height, observer, func(h ViewHandle, e error) {
		handle, err = h, e
	})
	return handle, err
}

// CloseView requests the view be closed, disconnecting its observer. Closing
// an unknown (or already closed) handle is a no-op. If the view was the
// target of frame and touch events, the most recently created remaining view
// takes over.
func (g *Glue) CloseView(handle ViewHandle) {
	g.post(`close_view`, ownerloop.Task{Run: func() {
		e := g.lookup(`close_view`, handle)
		if e == nil {
			return
		}
		g.removeView(e)
		g.logger.Debug().
			Uint64(`view`, uint64(handle)).
			Log(`browser view closed`)
	}})
}

// LoadURL requests navigation to url. The bytes are copied before LoadURL
// returns, the caller may reuse them immediately.
func (g *Glue) LoadURL(handle ViewHandle, url []byte) {
	r, err := g.owner()
	if err == nil {
		err = ownerloop.PostPayload(r.loop, ownerloop.PriorityDefault,
			&loadURL{handle: handle, url: bytes.Clone(url)},
			g.loadURL,
			func(p *loadURL) { p.url = nil },
		)
	}
	if err != nil {
		g.logger.Debug().
			Str(`op`, `load_url`).
			Uint64(`view`, uint64(handle)).
			Err(err).
			Log(`browser operation dropped`)
	}
}

// LoadURLString is LoadURL for a string.
func (g *Glue) LoadURLString(handle ViewHandle, url string) {
	g.LoadURL(handle, []byte(url))
}

// GoBack navigates the view back one entry in its session history.
func (g *Glue) GoBack(handle ViewHandle) {
	g.postView(`go_back`, handle, engine.View.GoBack)
}

// GoForward navigates the view forward one entry in its session history.
func (g *Glue) GoForward(handle ViewHandle) {
	g.postView(`go_forward`, handle, engine.View.GoForward)
}

// Reload reloads the view's current entry.
func (g *Glue) Reload(handle ViewHandle) {
	g.postView(`reload`, handle, engine.View.Reload)
}

func (g *Glue) postView(op string, handle ViewHandle, fn func(engine.View)) {
	g.post(op, ownerloop.Task{Run: func() {
		if e := g.lookup(op, handle); e != nil {
			fn(e.view)
		}
	}})
}

// createView runs on the owner.
func (g *Glue) createView(width, height int, observer Observer) (ViewHandle, error) {
	if g.context == nil {
		return 0, ErrNotInitialized
	}

	view, err := g.context.NewView(width, height)
	if err != nil {
		g.logger.Err().
			Int(`width`, width).
			Int(`height`, height).
			Err(err).
			Log(`browser view creation failed`)
		return 0, err
	}

	g.lastHandle++
	e := &viewEntry{
		view:     view,
		observer: observer,
		handle:   g.lastHandle,
	}
	e.disconnect = view.Connect(engine.Signals{
		LoadChanged:         func(event engine.LoadEvent) { g.loadChanged(e, event) },
		LoadProgressChanged: func(progress float64) { g.loadProgress(e, progress) },
	})
	g.views[e.handle] = e
	g.active = e

	g.logger.Debug().
		Uint64(`view`, uint64(e.handle)).
		Int(`width`, width).
		Int(`height`, height).
		Int(`tid`, ownerloop.CurrentThreadID()).
		Log(`browser view created`)

	return e.handle, nil
}

// reclaimView closes a view whose handle never reached the caller. It runs
// on the owner.
func (g *Glue) reclaimView(handle ViewHandle) {
	if e := g.views[handle]; e != nil {
		g.removeView(e)
		g.logger.Warning().
			Uint64(`view`, uint64(handle)).
			Log(`browser view abandoned by caller, closed`)
	}
}

// removeView closes e and drops it from the registry. If e was the active
// view, the newest remaining view becomes active. It runs on the owner.
func (g *Glue) removeView(e *viewEntry) {
	delete(g.views, e.handle)
	if g.active == e {
		g.active = nil
		for _, v := range g.views {
			if g.active == nil || v.handle > g.active.handle {
				g.active = v
			}
		}
	}
	e.disconnect()
	e.view.TryClose()
}

// loadURL runs on the owner.
func (g *Glue) loadURL(p *loadURL) {
	e := g.lookup(`load_url`, p.handle)
	if e == nil {
		return
	}
	url := string(p.url)
	g.logger.Debug().
		Uint64(`view`, uint64(p.handle)).
		Str(`url`, url).
		Log(`browser load url`)
	e.view.LoadURI(url)
}

// lookup runs on the owner, returning nil for unknown handles.
func (g *Glue) lookup(op string, handle ViewHandle) *viewEntry {
	if e := g.views[handle]; e != nil {
		return e
	}
	g.logger.Debug().
		Str(`op`, op).
		Uint64(`view`, uint64(handle)).
		Log(`browser operation on unknown view`)
	return nil
}

// loadChanged and loadProgress route engine signals to the view's observer,
// on the owner.

func (g *Glue) loadChanged(e *viewEntry, event engine.LoadEvent) {
	if g.views[e.handle] == e && e.observer != nil {
		e.observer.OnLoadChanged(event)
	}
}

func (g *Glue) loadProgress(e *viewEntry, progress float64) {
	if g.views[e.handle] == e && e.observer != nil {
		e.observer.OnLoadProgress(progress)
	}
}
