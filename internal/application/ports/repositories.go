package ports

import (
	"context"

	"mfl.dev/cli/internal/core/plugin"
)

// KeyValueStore is the durable string store backing local client state.
// It plays the role browser localStorage plays for the web client.
type KeyValueStore interface {
	// GetItem returns the value stored under key and whether it exists
	GetItem(ctx context.Context, key string) (string, bool, error)

	// SetItem stores value under key, replacing any previous value
	SetItem(ctx context.Context, key, value string) error

	// RemoveItem deletes key; removing a missing key is not an error
	RemoveItem(ctx context.Context, key string) error

	// Close releases the underlying resources
	Close() error
}

// PluginRegistryRepository persists the installed plugin registry
type PluginRegistryRepository interface {
	// Load reads the persisted registry. On corrupt data it returns an
	// empty registry together with a *plugin.PersistenceError.
	Load(ctx context.Context) (plugin.Registry, error)

	// Save serializes and writes the full registry
	Save(ctx context.Context, registry plugin.Registry) error
}

// ConfigurationRepository defines the interface for configuration persistence
type ConfigurationRepository interface {
	// Load retrieves the current configuration
	Load() (*Configuration, error)

	// Save persists the configuration
	Save(config *Configuration) error

	// LoadDefault returns the default configuration
	LoadDefault() *Configuration

	// Validate validates the configuration
	Validate(config *Configuration) error

	// GetConfigPath returns the path to the configuration file
	GetConfigPath() string
}

// Storage backends
const (
	StorageBackendFile   = "file"
	StorageBackendSQLite = "sqlite"
	StorageBackendMemory = "memory"
)

// Configuration represents the application configuration
type Configuration struct {
	APIEndpoint          string   `json:"api_endpoint" yaml:"api_endpoint" env:"API_ENDPOINT"`
	StorageBackend       string   `json:"storage_backend" yaml:"storage_backend" env:"STORAGE_BACKEND"`
	DataDir              string   `json:"data_dir" yaml:"data_dir" env:"DATA_DIR"`
	Debug                bool     `json:"debug" yaml:"debug" env:"DEBUG"`
	RequestTimeout       int      `json:"request_timeout" yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	RetryAttempts        int      `json:"retry_attempts" yaml:"retry_attempts" env:"RETRY_ATTEMPTS"`
	NotificationInterval int      `json:"notification_interval" yaml:"notification_interval" env:"NOTIFICATION_INTERVAL"`
	AllowedScriptOrigins []string `json:"allowed_script_origins,omitempty" yaml:"allowed_script_origins,omitempty" env:"ALLOWED_SCRIPT_ORIGINS" envSeparator:","`
}
