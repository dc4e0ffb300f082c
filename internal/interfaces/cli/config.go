package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"mfl.dev/cli/internal/application/ports"
	"mfl.dev/cli/internal/application/services"
	"mfl.dev/cli/internal/infrastructure/config"
	"mfl.dev/cli/internal/infrastructure/logging"
)

// NewConfigCommand creates the config command
func NewConfigCommand(a *app) *cobra.Command {
	var configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long: `Manage configuration settings for the MFL client.

Settings are layered: built-in defaults, then the config file, then MFL_
environment variables, then command line flags.`,
	}

	configCmd.AddCommand(NewConfigShowCommand(a))
	configCmd.AddCommand(NewConfigPathCommand())
	configCmd.AddCommand(NewConfigInitCommand())

	return configCmd
}

// NewConfigShowCommand creates the show subcommand
func NewConfigShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.container
			out := cmd.OutOrStdout()

			printConfig(out, c.Config)
			fmt.Fprintf(out, "Sources: %s\n", strings.Join(c.ConfigRepo.SourceNames(), " < "))
			fmt.Fprintf(out, "File: %s\n", c.ConfigRepo.GetConfigPath())
			if err := c.ConfigRepo.CheckDataDir(c.Config); err != nil {
				fmt.Fprintf(out, "Warning: %v\n", err)
			}
			return nil
		},
	}
}

func printConfig(w io.Writer, config *ports.Configuration) {
	fmt.Fprintln(w, "Current Configuration:")
	fmt.Fprintf(w, "API Endpoint: %s\n", config.APIEndpoint)
	fmt.Fprintf(w, "Storage Backend: %s\n", config.StorageBackend)
	fmt.Fprintf(w, "Data Dir: %s\n", config.DataDir)
	fmt.Fprintf(w, "Debug: %t\n", config.Debug)
	fmt.Fprintf(w, "Request Timeout: %ds\n", config.RequestTimeout)
	fmt.Fprintf(w, "Retry Attempts: %d\n", config.RetryAttempts)
	fmt.Fprintf(w, "Notification Interval: %ds\n", config.NotificationInterval)
	if len(config.AllowedScriptOrigins) == 0 {
		fmt.Fprintln(w, "Allowed Script Origins: (any)")
	} else {
		fmt.Fprintf(w, "Allowed Script Origins: %s\n", strings.Join(config.AllowedScriptOrigins, ", "))
	}
}

// NewConfigPathCommand creates the path subcommand
func NewConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Show configuration file path",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{noContainer: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.NewCompositeConfigRepository().GetConfigPath()
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file path: %s\n", path)
			return nil
		},
	}
}

// NewConfigInitCommand creates the init subcommand
func NewConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the effective configuration to the config file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{noContainer: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := config.NewCompositeConfigRepository()
			repo.AddSource(config.NewFlagConfigSource(collectOverrides(cmd)))
			path := repo.GetConfigPath()

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to inspect %s: %w", path, err)
			}

			configService := services.NewConfigurationService(repo, logging.NoopLogger{})
			effective, err := configService.LoadConfiguration(cmd.Context())
			if err != nil {
				return err
			}
			if err := configService.SaveConfiguration(cmd.Context(), effective); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
