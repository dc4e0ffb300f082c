package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"mfl.dev/cli/internal/application/ports"
	"mfl.dev/cli/internal/infrastructure/storage"
)

// EnvPrefix is prepended to every configuration environment variable
const EnvPrefix = "MFL_"

// ConfigFileEnv names the environment variable overriding the config file path
const ConfigFileEnv = "MFL_CONFIG_FILE"

// Default values
const (
	DefaultAPIEndpoint          = "http://localhost:8080/api"
	DefaultRequestTimeout       = 30
	DefaultRetryAttempts        = 3
	DefaultNotificationInterval = 30
)

// CompositeConfigRepository implements the ConfigurationRepository interface.
// Sources are applied over the defaults in ascending priority, so a later
// source overrides the fields it sets.
type CompositeConfigRepository struct {
	sources    []ConfigSource
	cache      *ConfigCache
	configPath string
	validator  *ConfigValidator
	mu         sync.Mutex
}

// ConfigSource defines the interface for configuration sources
type ConfigSource interface {
	// Apply overlays the values this source sets onto config
	Apply(config *ports.Configuration) error
	Priority() int
	Name() string
}

// ConfigCache provides caching for configuration
type ConfigCache struct {
	config    *ports.Configuration
	timestamp time.Time
	ttl       time.Duration
}

// NewCompositeConfigRepository creates a repository reading the config file
// and the MFL_ environment
func NewCompositeConfigRepository() *CompositeConfigRepository {
	configPath := os.Getenv(ConfigFileEnv)
	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	repo := NewEmptyConfigRepository(configPath)
	repo.AddSource(NewFileConfigSource(configPath))
	repo.AddSource(NewEnvironmentConfigSource(nil))
	return repo
}

// NewEmptyConfigRepository creates a repository with no sources besides the defaults
func NewEmptyConfigRepository(configPath string) *CompositeConfigRepository {
	return &CompositeConfigRepository{
		sources: make([]ConfigSource, 0),
		cache: &ConfigCache{
			ttl: 5 * time.Minute,
		},
		configPath: configPath,
		validator:  NewConfigValidator(),
	}
}

// AddSource adds a configuration source
func (r *CompositeConfigRepository) AddSource(source ConfigSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, source)
	r.cache.config = nil
}

// SourceNames lists the sources in the order they are applied
func (r *CompositeConfigRepository) SourceNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := []string{"defaults"}
	for _, s := range r.sortedSources() {
		names = append(names, s.Name())
	}
	return names
}

// Load retrieves the current configuration
func (r *CompositeConfigRepository) Load() (*ports.Configuration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cache.config != nil && time.Since(r.cache.timestamp) < r.cache.ttl {
		return cloneConfig(r.cache.config), nil
	}

	config := r.LoadDefault()
	for _, source := range r.sortedSources() {
		if err := source.Apply(config); err != nil {
			return nil, fmt.Errorf("failed to load %s configuration: %w", source.Name(), err)
		}
	}

	config.DataDir = expandPath(config.DataDir)

	if err := r.Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	r.cache.config = config
	r.cache.timestamp = time.Now()

	return cloneConfig(config), nil
}

// Save persists the configuration to the config file
func (r *CompositeConfigRepository) Save(config *ports.Configuration) error {
	if err := r.Validate(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := marshalConfig(r.configPath, config)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(r.configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	r.mu.Lock()
	r.cache.config = nil
	r.mu.Unlock()

	return nil
}

// LoadDefault returns the default configuration
func (r *CompositeConfigRepository) LoadDefault() *ports.Configuration {
	return &ports.Configuration{
		APIEndpoint:          DefaultAPIEndpoint,
		StorageBackend:       ports.StorageBackendFile,
		DataDir:              storage.DefaultDataDir(),
		Debug:                false,
		RequestTimeout:       DefaultRequestTimeout,
		RetryAttempts:        DefaultRetryAttempts,
		NotificationInterval: DefaultNotificationInterval,
		AllowedScriptOrigins: []string{},
	}
}

// Validate validates the configuration
func (r *CompositeConfigRepository) Validate(config *ports.Configuration) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	if err := r.validator.ValidateAPIEndpoint(config.APIEndpoint); err != nil {
		return err
	}
	if err := r.validator.ValidateStorageBackend(config.StorageBackend); err != nil {
		return err
	}
	if strings.TrimSpace(config.DataDir) == "" && config.StorageBackend != ports.StorageBackendMemory {
		return fmt.Errorf("data directory is required for the %s backend", config.StorageBackend)
	}
	if config.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if config.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1")
	}
	if config.NotificationInterval <= 0 {
		return fmt.Errorf("notification interval must be greater than 0")
	}
	return r.validator.ValidateOrigins(config.AllowedScriptOrigins)
}

// CheckDataDir reports whether the configured data directory is usable
func (r *CompositeConfigRepository) CheckDataDir(config *ports.Configuration) error {
	if config.StorageBackend == ports.StorageBackendMemory {
		return nil
	}
	return r.validator.ValidateDataDir(config.DataDir)
}

// GetConfigPath returns the path to the configuration file
func (r *CompositeConfigRepository) GetConfigPath() string {
	return r.configPath
}

// sortedSources returns the sources by ascending priority. Callers hold r.mu.
func (r *CompositeConfigRepository) sortedSources() []ConfigSource {
	sorted := make([]ConfigSource, len(r.sources))
	copy(sorted, r.sources)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return sorted
}

func cloneConfig(c *ports.Configuration) *ports.Configuration {
	out := *c
	out.AllowedScriptOrigins = append([]string{}, c.AllowedScriptOrigins...)
	return &out
}

func marshalConfig(path string, config *ports.Configuration) ([]byte, error) {
	if isJSONPath(path) {
		return json.MarshalIndent(config, "", "  ")
	}
	return yaml.Marshal(config)
}

func isJSONPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// FileConfigSource loads configuration from a YAML or JSON file
type FileConfigSource struct {
	filePath string
}

// NewFileConfigSource creates a new file configuration source
func NewFileConfigSource(filePath string) *FileConfigSource {
	return &FileConfigSource{
		filePath: filePath,
	}
}

// Apply decodes the file over config; keys absent from the file keep their value.
// A missing file is not an error.
func (f *FileConfigSource) Apply(config *ports.Configuration) error {
	data, err := os.ReadFile(f.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	if isJSONPath(f.filePath) {
		err = json.Unmarshal(data, config)
	} else {
		err = yaml.Unmarshal(data, config)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", f.filePath, err)
	}
	return nil
}

// Priority returns the priority of this source (higher overrides lower)
func (f *FileConfigSource) Priority() int {
	return 10
}

// Name returns the name of this source
func (f *FileConfigSource) Name() string {
	return "file"
}

// EnvironmentConfigSource loads configuration from MFL_ environment variables
type EnvironmentConfigSource struct {
	environ map[string]string
}

// NewEnvironmentConfigSource creates a new environment configuration source.
// A nil environ reads the process environment.
func NewEnvironmentConfigSource(environ map[string]string) *EnvironmentConfigSource {
	return &EnvironmentConfigSource{environ: environ}
}

// Apply sets the fields whose variables are present
func (e *EnvironmentConfigSource) Apply(config *ports.Configuration) error {
	opts := env.Options{Prefix: EnvPrefix}
	if e.environ != nil {
		opts.Environment = e.environ
	}
	if err := env.ParseWithOptions(config, opts); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// Priority returns the priority of this source (higher overrides lower)
func (e *EnvironmentConfigSource) Priority() int {
	return 20
}

// Name returns the name of this source
func (e *EnvironmentConfigSource) Name() string {
	return "environment"
}

// FlagOverrides holds values set on the command line. Nil fields were not set.
type FlagOverrides struct {
	APIEndpoint    *string
	Debug          *bool
	DataDir        *string
	StorageBackend *string
}

// FlagConfigSource applies command line overrides
type FlagConfigSource struct {
	overrides FlagOverrides
}

// NewFlagConfigSource creates a new flag configuration source
func NewFlagConfigSource(overrides FlagOverrides) *FlagConfigSource {
	return &FlagConfigSource{overrides: overrides}
}

// Apply copies the flags that were set
func (f *FlagConfigSource) Apply(config *ports.Configuration) error {
	if f.overrides.APIEndpoint != nil {
		config.APIEndpoint = *f.overrides.APIEndpoint
	}
	if f.overrides.Debug != nil {
		config.Debug = *f.overrides.Debug
	}
	if f.overrides.DataDir != nil {
		config.DataDir = *f.overrides.DataDir
	}
	if f.overrides.StorageBackend != nil {
		config.StorageBackend = *f.overrides.StorageBackend
	}
	return nil
}

// Priority returns the priority of this source (higher overrides lower)
func (f *FlagConfigSource) Priority() int {
	return 30
}

// Name returns the name of this source
func (f *FlagConfigSource) Name() string {
	return "flags"
}

// getDefaultConfigPath returns the default configuration file path
func getDefaultConfigPath() string {
	return filepath.Join(storage.DefaultDataDir(), "config.yaml")
}
