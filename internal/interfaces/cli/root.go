package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
	"mfl.dev/cli/internal/application/ports"
	"mfl.dev/cli/internal/application/services"
	"mfl.dev/cli/internal/infrastructure/api"
	"mfl.dev/cli/internal/infrastructure/config"
	"mfl.dev/cli/internal/infrastructure/page"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// CLIContainer holds all the dependencies for CLI commands
type CLIContainer struct {
	Config        *ports.Configuration
	ConfigRepo    *config.CompositeConfigRepository
	ConfigService *services.ConfigurationService

	Lifecycle     *services.PluginLifecycleService
	Marketplace   *services.MarketplaceService
	Auth          *services.AuthService
	Notifications *services.NotificationService
	Uploads       *services.UploadService

	Page      *page.Page
	Gateway   *api.MFLAPIGateway
	Confirmer *PromptConfirmer
	Logger    ports.LoggingGateway

	// Shutdown releases the page and the store
	Shutdown func(ctx context.Context) error
}

// Settings are the command line inputs the container is built from
type Settings struct {
	Overrides config.FlagOverrides
	In        io.Reader
	Out       io.Writer
}

// Builder creates the container once flags are parsed
type Builder func(ctx context.Context, settings Settings) (*CLIContainer, error)

// app carries the lazily built container between cobra hooks
type app struct {
	build     Builder
	container *CLIContainer
}

// noContainer marks commands that run without application state
const noContainer = "no-container"

// NewRootCommand RootCommand represents the base command when called without any
// subcommands. The returned func releases whatever the command built.
func NewRootCommand(build Builder) (*cobra.Command, func(context.Context) error) {
	a := &app{build: build}

	var rootCmd = &cobra.Command{
		Use:   "mfl",
		Short: "MFL client - marketplace plugins, account and uploads",
		Long: `MFL is the command-line client for the MFL content platform.

It installs marketplace plugins into the client page, toggles and removes
them, and manages the signed-in account, notifications and uploads.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipContainer(cmd) {
				return nil
			}

			container, err := a.build(cmd.Context(), Settings{
				Overrides: collectOverrides(cmd),
				In:        cmd.InOrStdin(),
				Out:       cmd.OutOrStdout(),
			})
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			a.container = container
			return nil
		},
	}

	// Set custom version template
	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("api-url", config.DefaultAPIEndpoint, "Platform API endpoint")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory holding local client state")
	rootCmd.PersistentFlags().String("storage", "", "Storage backend (file, sqlite, memory)")

	rootCmd.AddCommand(NewPluginsCommand(a))
	rootCmd.AddCommand(NewPageCommand(a))
	rootCmd.AddCommand(NewAuthCommand(a))
	rootCmd.AddCommand(NewNotificationsCommand(a))
	rootCmd.AddCommand(NewUploadCommand(a))
	rootCmd.AddCommand(NewConfigCommand(a))

	return rootCmd, a.shutdown
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// collectOverrides returns the persistent flags that were explicitly set
func collectOverrides(cmd *cobra.Command) config.FlagOverrides {
	var overrides config.FlagOverrides
	flags := cmd.Flags()

	if flags.Changed("api-url") {
		v, _ := flags.GetString("api-url")
		overrides.APIEndpoint = &v
	}
	if flags.Changed("debug") {
		v, _ := flags.GetBool("debug")
		overrides.Debug = &v
	}
	if flags.Changed("data-dir") {
		v, _ := flags.GetString("data-dir")
		overrides.DataDir = &v
	}
	if flags.Changed("storage") {
		v, _ := flags.GetString("storage")
		overrides.StorageBackend = &v
	}
	return overrides
}

// skipContainer reports whether cmd runs without application state
func skipContainer(cmd *cobra.Command) bool {
	if _, ok := cmd.Annotations[noContainer]; ok {
		return true
	}
	switch cmd.Name() {
	case "help", "completion":
		return true
	}
	return !cmd.Runnable()
}

func (a *app) shutdown(ctx context.Context) error {
	if a.container == nil || a.container.Shutdown == nil {
		return nil
	}
	err := a.container.Shutdown(ctx)
	a.container = nil
	return err
}

// requireAuth verifies the stored token and fails when nobody is signed in
func requireAuth(ctx context.Context, c *CLIContainer) error {
	if err := c.Auth.CheckAuth(ctx); err != nil {
		return fmt.Errorf("session is no longer valid, run 'mfl auth login': %w", err)
	}
	if !c.Auth.IsAuthenticated() {
		return errors.New("not signed in, run 'mfl auth login'")
	}
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context, build Builder) {
	rootCmd, shutdown := NewRootCommand(build)

	err := rootCmd.ExecuteContext(ctx)
	if shutdownErr := shutdown(context.WithoutCancel(ctx)); err == nil {
		err = shutdownErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
