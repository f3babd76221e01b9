package script

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/joeycumines/go-webglue/browser"
	"github.com/joeycumines/go-webglue/engine"
	"github.com/joeycumines/go-webglue/ownerloop"
	"github.com/joeycumines/logiface"
)

type (
	// Trace is the record of a scenario run. It is safe for concurrent use.
	Trace struct {
		events []Event
		step   int
		mu     sync.Mutex
	}

	// Event is a single trace entry.
	Event struct {
		// View is the scenario-local view name, if any.
		View string
		// Message describes what happened.
		Message string
		// Step is the 1-based index of the step that caused the event.
		Step int
	}

	// viewObserver records the signals of one view.
	viewObserver struct {
		trace *Trace
		view  string
	}
)

// Run initializes g (if necessary), then runs each step of s, waiting for
// the owner to finish all work caused by a step before starting the next.
func Run(ctx context.Context, g *browser.Glue, s *Scenario, logger *logiface.Logger[logiface.Event]) (*Trace, error) {
	if err := g.Initialize(ctx); err != nil {
		return nil, err
	}

	trace := new(Trace)
	handles := make(map[string]browser.ViewHandle)

	for i, step := range s.Steps {
		trace.begin(i + 1)

		logger.Debug().
			Int(`step`, i+1).
			Str(`op`, step.Op).
			Str(`view`, step.View).
			Log(`script step`)

		switch step.Op {
		case OpCreateView:
			trace.add(step.View, fmt.Sprintf(`%s width=%d height=%d`, step.Op, step.Width, step.Height))
			obs := &viewObserver{trace: trace, view: step.View}
			err := g.CreateView(ctx, step.Width, step.Height, obs, func(h browser.ViewHandle, err error) {
				if err != nil {
					trace.add(step.View, `error `+err.Error())
					return
				}
				handles[step.View] = h
				trace.add(step.View, fmt.Sprintf(`ready handle=%d`, h))
			})
			if err != nil && ctx.Err() != nil {
				return trace, err
			}

		case OpCloseView:
			trace.add(step.View, step.Op)
			g.CloseView(handles[step.View])

		case OpLoadURL:
			trace.add(step.View, step.Op+` `+step.URL)
			g.LoadURLString(handles[step.View], step.URL)

		case OpGoBack:
			trace.add(step.View, step.Op)
			g.GoBack(handles[step.View])

		case OpGoForward:
			trace.add(step.View, step.Op)
			g.GoForward(handles[step.View])

		case OpReload:
			trace.add(step.View, step.Op)
			g.Reload(handles[step.View])

		case OpFrameComplete:
			trace.add(``, step.Op)
			g.NotifyFrameComplete()

		case OpTouch:
			trace.add(``, fmt.Sprintf(`%s time=%d phase=%d x=%g y=%g`, step.Op, step.Time, step.Phase, step.X, step.Y))
			g.DispatchTouch(step.Time, step.Phase, step.X, step.Y)

		default:
			return trace, fmt.Errorf("script: step %d: unknown op %q", i+1, step.Op)
		}

		if err := flush(ctx, g); err != nil {
			return trace, fmt.Errorf("script: step %d: %w", i+1, err)
		}

		switch step.Op {
		case OpFrameComplete:
			frames, _ := g.EventStats()
			trace.add(``, fmt.Sprintf(`frames dispatched=%d`, frames.Dispatched))
		case OpTouch:
			_, touches := g.EventStats()
			trace.add(``, fmt.Sprintf(`touches dispatched=%d`, touches.Dispatched))
		}
	}

	return trace, nil
}

// flush waits for the owner to run everything posted so far.
func flush(ctx context.Context, g *browser.Glue) error {
	_, err := ownerloop.CallValue(ctx, g.Loop(), func() (struct{}, error) { return struct{}{}, nil })
	return err
}

func (x *viewObserver) OnLoadChanged(event engine.LoadEvent) {
	x.trace.add(x.view, `load `+event.String())
}

func (x *viewObserver) OnLoadProgress(progress float64) {
	x.trace.add(x.view, fmt.Sprintf(`progress %.2f`, progress))
}

func (x *Trace) begin(step int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.step = step
}

func (x *Trace) add(view, message string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.events = append(x.events, Event{Step: x.step, View: view, Message: message})
}

// Events returns a copy of the events recorded.
func (x *Trace) Events() []Event {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]Event(nil), x.events...)
}

// Render writes the trace, one event per line.
func (x *Trace) Render(w io.Writer) error {
	for _, e := range x.Events() {
		view := e.View
		if view == `` {
			view = `-`
		}
		if _, err := fmt.Fprintf(w, "%02d [%s] %s\n", e.Step, view, e.Message); err != nil {
			return err
		}
	}
	return nil
}

func (x *Trace) String() string {
	var b strings.Builder
	_ = x.Render(&b)
	return b.String()
}
