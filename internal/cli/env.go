package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewEnvCommand creates the env command.
func NewEnvCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   `env`,
		Short: `Print the process environment the engine is started with`,
		Long: `Print the environment variables exported before the engine starts, as
KEY=VALUE lines, suitable for eval in a shell.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			for _, kv := range cfg.EnvironmentList() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), kv); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   `config`,
		Short: `Print the effective config as YAML`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			return cfg.Encode(cmd.OutOrStdout())
		},
	}
}
