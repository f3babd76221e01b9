// Package cli implements the webglue command tree.
package cli

import (
	"io"

	"github.com/joeycumines/go-webglue/config"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	// ConfigPath is the YAML config file, defaults apply if empty.
	ConfigPath string
	// LogLevel overrides the configured log level.
	LogLevel string
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   `webglue`,
		Short: `Drive an embedded browser engine from its owner goroutine`,
		Long: `webglue runs browser engine work on a single owner goroutine, locked to
its OS thread, and forwards view lifecycle, navigation, frame and touch
events to it from any goroutine.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, `config`, `c`, ``, `path to YAML config file`)
	cmd.PersistentFlags().StringVar(&opts.LogLevel, `log-level`, ``, `log level override (trace|debug|info|warning|error|...)`)

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewEnvCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// loadConfig resolves the effective config: file (or defaults), then flags.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != `` {
		var err error
		if cfg, err = config.LoadFile(o.ConfigPath); err != nil {
			return config.Config{}, WrapExitError(ExitCommandError, `failed to load config`, err)
		}
	}
	if o.LogLevel != `` {
		cfg.Log.Level = o.LogLevel
		if err := cfg.Validate(); err != nil {
			return config.Config{}, WrapExitError(ExitCommandError, `invalid --log-level`, err)
		}
	}
	return cfg, nil
}

// newLogger writes JSON lines to w, at the configured level.
func newLogger(w io.Writer, cfg config.Config) (*logiface.Logger[logiface.Event], error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger(), nil
}
