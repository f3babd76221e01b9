// Package engine defines the contracts of an embedded browser engine, as
// driven by the owner goroutine of package browser.
//
// Nothing in this package is safe for concurrent use. Every method of every
// interface must only be called from the goroutine that owns the Engine, and
// every callback in Signals is invoked on that same goroutine.
package engine

import (
	"fmt"
)

type (
	// Engine is the entry point of a browser engine implementation.
	Engine interface {
		// NewContext creates the engine context, the parent of all views.
		// It is called once, on the owner goroutine, as it starts.
		NewContext() (Context, error)
	}

	// Context is an engine context, see Engine.NewContext.
	Context interface {
		// NewView creates a view with the given (non-negative) dimensions.
		NewView(width, height int) (View, error)
	}

	// View is a single browser view (a page, with its session history).
	View interface {
		// Backend returns the rendering backend of the view.
		Backend() Backend
		// LoadURI requests navigation. Navigation failures are reported via
		// Signals, not the return value.
		LoadURI(uri string)
		GoBack()
		GoForward()
		Reload()
		// TryClose requests the view to close. It may be called more than
		// once.
		TryClose()
		// EstimatedLoadProgress returns the current load progress, in the
		// range [0, 1].
		EstimatedLoadProgress() float64
		// Connect subscribes to the view's signals. The returned func
		// disconnects them, and is idempotent.
		Connect(signals Signals) (disconnect func())
	}

	// Backend is the rendering (view) backend of a View.
	Backend interface {
		// DispatchFrameComplete acknowledges that the previously exported
		// frame has been consumed.
		DispatchFrameComplete()
		// DispatchTouchEvent injects a touch event.
		DispatchTouchEvent(event TouchEvent)
	}

	// Signals are the callbacks a View emits, see View.Connect. Either may
	// be nil.
	Signals struct {
		LoadChanged         func(event LoadEvent)
		LoadProgressChanged func(progress float64)
	}

	// LoadEvent is a page load state transition.
	LoadEvent int

	// TouchPhase is the phase of a touch point.
	TouchPhase int

	// TouchPoint is a single raw touch sample.
	TouchPoint struct {
		Phase TouchPhase
		ID    int32
		Time  uint32
		X     int32
		Y     int32
	}

	// TouchEvent is a touch event, made up of one or more points.
	TouchEvent struct {
		Points []TouchPoint
		Phase  TouchPhase
		ID     int32
		Time   uint32
	}
)

const (
	LoadStarted LoadEvent = iota
	LoadRedirected
	LoadCommitted
	LoadFinished
)

const (
	// TouchNull is the phase of unrecognized input, which engines ignore.
	TouchNull TouchPhase = iota
	TouchDown
	TouchMotion
	TouchUp
)

func (x LoadEvent) String() string {
	switch x {
	case LoadStarted:
		return `started`
	case LoadRedirected:
		return `redirected`
	case LoadCommitted:
		return `committed`
	case LoadFinished:
		return `finished`
	default:
		return fmt.Sprintf(`LoadEvent(%d)`, int(x))
	}
}

func (x TouchPhase) String() string {
	switch x {
	case TouchNull:
		return `null`
	case TouchDown:
		return `down`
	case TouchMotion:
		return `motion`
	case TouchUp:
		return `up`
	default:
		return fmt.Sprintf(`TouchPhase(%d)`, int(x))
	}
}

// Single returns a TouchEvent carrying exactly one point, taking its phase,
// id, and time from that point.
func Single(point TouchPoint) TouchEvent {
	return TouchEvent{
		Points: []TouchPoint{point},
		Phase:  point.Phase,
		ID:     point.ID,
		Time:   point.Time,
	}
}
