package browser

import (
	"time"

	"github.com/joeycumines/go-webglue/ownerloop"
	"github.com/joeycumines/logiface"
)

type (
	// Option configures a Glue, see New.
	Option interface {
		applyGlue(*glueOptions)
	}

	glueOptions struct {
		logger      *logiface.Logger[logiface.Event]
		loopOptions []ownerloop.LoopOption
		callTimeout time.Duration
	}

	optionFunc func(*glueOptions)
)

func (f optionFunc) applyGlue(o *glueOptions) { f(o) }

// WithLogger attaches a logger, used by the Glue and (unless overridden via
// WithLoopOptions) its owner loop.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return optionFunc(func(o *glueOptions) { o.logger = logger })
}

// WithLoopOptions appends options for the owner loop, created by
// Initialize. By default, the loop is named "browser" and locked to its OS
// thread.
func WithLoopOptions(opts ...ownerloop.LoopOption) Option {
	return optionFunc(func(o *glueOptions) { o.loopOptions = append(o.loopOptions, opts...) })
}

// WithCallTimeout bounds operations that wait on the owner, such as
// CreateView. Zero (the default) relies on the caller's context alone.
func WithCallTimeout(d time.Duration) Option {
	return optionFunc(func(o *glueOptions) { o.callTimeout = d })
}
