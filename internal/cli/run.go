package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeycumines/go-webglue/browser"
	"github.com/joeycumines/go-webglue/config"
	"github.com/joeycumines/go-webglue/engine/headless"
	"github.com/joeycumines/go-webglue/internal/script"
	"github.com/joeycumines/go-webglue/ownerloop"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the wait for the owner loop to stop, if no call
// timeout is configured.
const shutdownTimeout = 5 * time.Second

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   `run <scenario.yaml>`,
		Short: `Run a scenario against the headless engine`,
		Long: `Run a YAML scenario against the headless engine, printing the trace of
operations issued and load signals observed to stdout.

The process environment is bootstrapped from the config (XDG_CACHE_HOME,
FONTCONFIG_PATH, GIO_EXTRA_MODULES) before the owner loop starts. Views
created without a size use the configured viewport.

Example:
  webglue run ./scenarios/basic.yaml
  webglue run --config webglue.yaml --log-level debug ./scenarios/basic.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, rootOpts, args[0])
		},
	}
}

func runScenario(cmd *cobra.Command, opts *RootOptions, path string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, `failed to configure logging`, err)
	}

	if err := cfg.ApplyEnvironment(nil); err != nil {
		return WrapExitError(ExitCommandError, `failed to bootstrap environment`, err)
	}

	s, err := script.LoadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, `failed to load scenario`, err)
	}
	s.ApplyViewport(cfg.Viewport.Width, cfg.Viewport.Height)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := browser.New(
		headless.New(headless.WithLogger(logger)),
		browser.WithLogger(logger),
		browser.WithCallTimeout(cfg.Loop.CallTimeout),
		browser.WithLoopOptions(loopOptions(cfg)...),
	)
	defer func() {
		g.Shutdown()
		timeout := cfg.Loop.CallTimeout
		if timeout <= 0 {
			timeout = shutdownTimeout
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := g.Wait(ctx); err != nil {
			logger.Warning().Err(err).Log(`owner loop did not stop`)
		}
	}()

	logger.Info().
		Str(`scenario`, s.Name).
		Int(`steps`, len(s.Steps)).
		Log(`running scenario`)

	trace, err := script.Run(ctx, g, s, logger)
	if trace != nil {
		if err := trace.Render(cmd.OutOrStdout()); err != nil {
			return WrapExitError(ExitFailure, `failed to write trace`, err)
		}
	}
	if err != nil {
		return WrapExitError(ExitFailure, `scenario failed`, err)
	}

	if cfg.Loop.Metrics {
		m := g.Metrics()
		frames, touches := g.EventStats()
		logger.Info().
			Uint64(`executed`, m.Executed.Total()).
			Uint64(`rejected`, m.Rejected.Total()).
			Uint64(`discarded`, m.Discarded.Total()).
			Uint64(`panics`, m.Panics).
			Stringer(`queue_wait_p99`, m.QueueWait.P99).
			Uint64(`frames`, frames.Dispatched).
			Uint64(`touches`, touches.Dispatched).
			Log(`owner loop metrics`)
	}

	return nil
}

func loopOptions(cfg config.Config) []ownerloop.LoopOption {
	return []ownerloop.LoopOption{
		ownerloop.WithLockOSThread(cfg.Loop.LockOSThread),
		ownerloop.WithStartupTimeout(cfg.Loop.StartupTimeout),
		ownerloop.WithMetrics(cfg.Loop.Metrics),
	}
}
