package ownerloop

import (
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
)

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger         *logiface.Logger[logiface.Event]
	panicHandler   func(any)
	rejectLogRates map[time.Duration]int
	name           string
	startupTimeout time.Duration
	lockOSThread   bool
	metricsEnabled bool
}

// --- Loop Options ---

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithName sets the name used to identify the loop in logs.
func WithName(name string) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.name = name
		return nil
	}}
}

// WithLogger attaches a structured logger. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithLockOSThread sets whether the owner goroutine locks itself to its OS
// thread for the duration of Run. Enable this when the owned resources are
// bound to the thread that created them (as native engines are).
func WithLockOSThread(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.lockOSThread = enabled
		return nil
	}}
}

// WithStartupTimeout bounds how long Start blocks waiting for the owner to
// become ready. Zero (the default) waits without limit.
func WithStartupTimeout(d time.Duration) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if d < 0 {
			return fmt.Errorf("ownerloop: negative startup timeout: %s", d)
		}
		opts.startupTimeout = d
		return nil
	}}
}

// WithMetrics enables runtime metrics collection on the Loop.
// When enabled, metrics can be accessed via Loop.Metrics().
func WithMetrics(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithPanicHandler sets a callback, run on the owner goroutine, receiving
// any value recovered from a panicking task body.
func WithPanicHandler(fn func(any)) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.panicHandler = fn
		return nil
	}}
}

// WithRejectLogRate configures the rate limit (see go-catrate) applied to
// warnings logged for posts rejected by a terminated loop. A nil or empty
// map disables rate limiting. New panics if the rates are not valid per
// catrate.NewLimiter.
func WithRejectLogRate(rates map[time.Duration]int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.rejectLogRates = rates
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		name: `owner`,
		rejectLogRates: map[time.Duration]int{
			time.Second: 5,
			time.Minute: 30,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
