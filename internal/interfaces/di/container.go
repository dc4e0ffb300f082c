package di

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"mfl.dev/cli/internal/application/ports"
	"mfl.dev/cli/internal/application/services"
	"mfl.dev/cli/internal/core/session"
	"mfl.dev/cli/internal/infrastructure/api"
	"mfl.dev/cli/internal/infrastructure/config"
	"mfl.dev/cli/internal/infrastructure/logging"
	"mfl.dev/cli/internal/infrastructure/page"
	"mfl.dev/cli/internal/infrastructure/registry"
	"mfl.dev/cli/internal/infrastructure/storage"
	"mfl.dev/cli/internal/interfaces/cli"
)

// Options tunes how the container is assembled. Zero values select the
// production wiring.
type Options struct {
	ConfigRepo *config.CompositeConfigRepository
	Overrides  config.FlagOverrides
	In         io.Reader
	Out        io.Writer
	LogOutput  io.Writer
	Fetcher    page.ScriptFetcher
}

// Container holds all application dependencies
type Container struct {
	// Configuration
	Config        *ports.Configuration
	ConfigRepo    *config.CompositeConfigRepository
	ConfigService *services.ConfigurationService

	// Local state
	Store         ports.KeyValueStore
	RegistryStore *services.PluginRegistryStore
	Session       *session.Session

	// Infrastructure
	Page       *page.Page
	APIGateway *api.MFLAPIGateway
	Confirmer  *cli.PromptConfirmer

	// Application services
	Lifecycle     *services.PluginLifecycleService
	Marketplace   *services.MarketplaceService
	Auth          *services.AuthService
	Notifications *services.NotificationService
	Uploads       *services.UploadService

	// Logger
	Logger *logging.StandardLogger

	shutdownOnce sync.Once
	shutdownErr  error
}

// Build creates the container for a CLI invocation
func Build(ctx context.Context, settings cli.Settings) (*cli.CLIContainer, error) {
	c, err := NewContainer(ctx, Options{
		Overrides: settings.Overrides,
		In:        settings.In,
		Out:       settings.Out,
	})
	if err != nil {
		return nil, err
	}
	return c.GetCLIContainer(), nil
}

// NewContainer creates and configures the dependency injection container
func NewContainer(ctx context.Context, opts Options) (*Container, error) {
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	container := &Container{
		Logger: logging.NewStandardLogger(opts.LogOutput, ports.LogLevelWarn),
	}

	if err := container.initializeComponents(ctx, opts); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return container, nil
}

// initializeComponents initializes all components with proper dependencies
func (c *Container) initializeComponents(ctx context.Context, opts Options) error {
	// 1. Configuration: defaults < file < environment < flags
	c.ConfigRepo = opts.ConfigRepo
	if c.ConfigRepo == nil {
		c.ConfigRepo = config.NewCompositeConfigRepository()
	}
	c.ConfigRepo.AddSource(config.NewFlagConfigSource(opts.Overrides))
	c.ConfigService = services.NewConfigurationService(c.ConfigRepo, c.Logger)

	appConfig, err := c.ConfigService.LoadConfiguration(ctx)
	if err != nil {
		return err
	}
	c.Config = appConfig
	if appConfig.Debug {
		c.Logger.SetLogLevel(ports.LogLevelDebug)
	}

	// 2. Local storage
	c.Store, err = storage.Open(appConfig.StorageBackend, appConfig.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", appConfig.StorageBackend, err)
	}
	c.RegistryStore = services.NewPluginRegistryStore(registry.NewPersistedRegistry(c.Store))

	// 3. Page and platform API
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = page.NewHTTPFetcher(requestTimeout(appConfig))
	}
	c.Page, err = page.New(page.Options{
		Fetcher: fetcher,
		NewRuntime: func() page.ScriptRuntime {
			return page.NewGojaRuntime(c.Logger, cli.Version)
		},
		AllowedOrigins: appConfig.AllowedScriptOrigins,
		Logger:         c.Logger,
	})
	if err != nil {
		_ = c.Store.Close()
		return fmt.Errorf("failed to create page: %w", err)
	}

	c.Session = session.NewSession("")
	c.APIGateway = api.NewMFLAPIGateway(appConfig.APIEndpoint, c.Session, c.Logger)
	c.APIGateway.SetTimeout(requestTimeout(appConfig))
	c.APIGateway.SetMaxAttempts(appConfig.RetryAttempts)

	// 4. Application services
	c.Confirmer = cli.NewPromptConfirmer(opts.In, opts.Out)
	c.Lifecycle = services.NewPluginLifecycleService(c.RegistryStore, c.Page, c.Confirmer, c.Logger)
	c.Marketplace = services.NewMarketplaceService(c.APIGateway, c.Lifecycle, c.Logger)
	c.Auth = services.NewAuthService(c.Store, c.APIGateway, c.Session, c.Logger)
	c.Notifications = services.NewNotificationService(c.APIGateway, c.Auth, c.Logger)
	c.Uploads = services.NewUploadService(c.APIGateway, c.Logger)

	// 5. Startup sequence, re-run after every page reload
	c.Page.OnReload(func() {
		c.bootstrap(context.Background())
	})
	if err := c.Auth.Restore(ctx); err != nil {
		c.Logger.LogError(err, "Failed to restore session", nil)
	}
	c.bootstrap(ctx)

	c.Logger.Log(ports.LogLevelDebug, "Dependency injection container initialized successfully", map[string]interface{}{
		"storage":  appConfig.StorageBackend,
		"data_dir": appConfig.DataDir,
		"api":      appConfig.APIEndpoint,
	})
	return nil
}

// bootstrap loads the registry and attaches every enabled plugin
func (c *Container) bootstrap(ctx context.Context) {
	if err := c.RegistryStore.Load(ctx); err != nil {
		c.Logger.LogError(err, "Failed to load plugin registry", nil)
	}
	c.Lifecycle.InitPlugins(ctx)
}

// GetCLIContainer returns the CLI container for command execution
func (c *Container) GetCLIContainer() *cli.CLIContainer {
	return &cli.CLIContainer{
		Config:        c.Config,
		ConfigRepo:    c.ConfigRepo,
		ConfigService: c.ConfigService,
		Lifecycle:     c.Lifecycle,
		Marketplace:   c.Marketplace,
		Auth:          c.Auth,
		Notifications: c.Notifications,
		Uploads:       c.Uploads,
		Page:          c.Page,
		Gateway:       c.APIGateway,
		Confirmer:     c.Confirmer,
		Logger:        c.Logger,
		Shutdown:      c.Shutdown,
	}
}

// Shutdown gracefully shuts down all components. Later calls return the
// first result.
func (c *Container) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		stats := c.APIGateway.Stats()
		if stats.TotalRequests > 0 {
			c.Logger.Log(ports.LogLevelDebug, "API usage", map[string]interface{}{
				"requests":        stats.TotalRequests,
				"successful":      stats.SuccessfulRequests,
				"failed":          stats.FailedRequests,
				"average_latency": stats.AverageLatency.String(),
			})
		}

		var errs []error
		if err := c.Page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop page: %w", err))
		}
		if err := c.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		}
		c.shutdownErr = errors.Join(errs...)
	})
	return c.shutdownErr
}

func requestTimeout(cfg *ports.Configuration) time.Duration {
	return time.Duration(cfg.RequestTimeout) * time.Second
}
