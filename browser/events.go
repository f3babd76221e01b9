package browser

import (
	"github.com/joeycumines/go-webglue/engine"
)

// Touch phases, as accepted by DispatchTouch.
const (
	PhaseDown   int32 = 0
	PhaseMotion int32 = 1
	PhaseUp     int32 = 2
)

// NotifyFrameComplete tells the active view's backend that the previously
// exported frame has been consumed. It is dispatched ahead of any queued
// default or idle work.
func (g *Glue) NotifyFrameComplete() {
	r, err := g.owner()
	if err == nil {
		err = r.frames.Emit(struct{}{})
	}
	if err != nil {
		g.logger.Debug().
			Str(`op`, `frame_complete`).
			Err(err).
			Log(`browser operation dropped`)
	}
}

// DispatchTouch injects a single point touch sample into the active view,
// ahead of any queued default or idle work. Phases other than PhaseDown,
// PhaseMotion and PhaseUp are dispatched as engine.TouchNull. The time is
// truncated to 32 bits, and the coordinates to integers.
func (g *Glue) DispatchTouch(time int64, phase int32, x, y float32) {
	point := engine.TouchPoint{
		Phase: touchPhase(phase),
		Time:  uint32(time),
		X:     int32(x),
		Y:     int32(y),
	}
	r, err := g.owner()
	if err == nil {
		err = r.touches.Emit(point)
	}
	if err != nil {
		g.logger.Debug().
			Str(`op`, `touch`).
			Err(err).
			Log(`browser operation dropped`)
	}
}

func touchPhase(phase int32) engine.TouchPhase {
	switch phase {
	case PhaseDown:
		return engine.TouchDown
	case PhaseMotion:
		return engine.TouchMotion
	case PhaseUp:
		return engine.TouchUp
	default:
		return engine.TouchNull
	}
}

// frameComplete runs on the owner.
func (g *Glue) frameComplete(struct{}) {
	if g.active == nil {
		g.logger.Trace().Log(`browser frame complete without a view`)
		return
	}
	g.active.view.Backend().DispatchFrameComplete()
}

// touch runs on the owner.
func (g *Glue) touch(point engine.TouchPoint) {
	if g.active == nil {
		g.logger.Trace().Log(`browser touch without a view`)
		return
	}
	g.active.view.Backend().DispatchTouchEvent(engine.Single(point))
}
