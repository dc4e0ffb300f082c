package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mfl.dev/cli/internal/application/ports"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadDefaultsWithoutSources(t *testing.T) {
	repo := NewEmptyConfigRepository(filepath.Join(t.TempDir(), "config.yaml"))

	cfg, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIEndpoint, cfg.APIEndpoint)
	assert.Equal(t, ports.StorageBackendFile, cfg.StorageBackend)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultRetryAttempts, cfg.RetryAttempts)
	assert.Equal(t, DefaultNotificationInterval, cfg.NotificationInterval)
	assert.Empty(t, cfg.AllowedScriptOrigins)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestFileSourceOverridesOnlyPresentKeys(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "config.yaml",
			content: "api_endpoint: https://mfl.example.com/api\n" +
				"storage_backend: sqlite\n" +
				"allowed_script_origins:\n  - https://cdn.example.com\n",
		},
		{
			name:    "json",
			file:    "config.json",
			content: `{"api_endpoint":"https://mfl.example.com/api","storage_backend":"sqlite","allowed_script_origins":["https://cdn.example.com"]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			writeFile(t, path, tt.content)

			repo := NewEmptyConfigRepository(path)
			repo.AddSource(NewFileConfigSource(path))

			cfg, err := repo.Load()
			require.NoError(t, err)
			assert.Equal(t, "https://mfl.example.com/api", cfg.APIEndpoint)
			assert.Equal(t, ports.StorageBackendSQLite, cfg.StorageBackend)
			assert.Equal(t, []string{"https://cdn.example.com"}, cfg.AllowedScriptOrigins)
			assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
		})
	}
}

func TestMissingAndEmptyFilesAreIgnored(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	writeFile(t, empty, "  \n")

	for _, path := range []string{filepath.Join(dir, "missing.yaml"), empty} {
		repo := NewEmptyConfigRepository(path)
		repo.AddSource(NewFileConfigSource(path))
		cfg, err := repo.Load()
		require.NoError(t, err)
		assert.Equal(t, DefaultAPIEndpoint, cfg.APIEndpoint)
	}
}

func TestMalformedFileFailsLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "api_endpoint: [unterminated\n")

	repo := NewEmptyConfigRepository(path)
	repo.AddSource(NewFileConfigSource(path))

	_, err := repo.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load file configuration")
}

func TestPrecedenceDefaultsFileEnvironmentFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "api_endpoint: https://file.example.com/api\nrequest_timeout: 10\ndebug: true\nretry_attempts: 5\n")

	repo := NewEmptyConfigRepository(path)
	// Added out of order; priority decides.
	endpoint := "https://flag.example.com/api"
	repo.AddSource(NewFlagConfigSource(FlagOverrides{APIEndpoint: &endpoint}))
	repo.AddSource(NewEnvironmentConfigSource(map[string]string{
		"MFL_API_ENDPOINT":    "https://env.example.com/api",
		"MFL_REQUEST_TIMEOUT": "15",
		"MFL_DEBUG":           "false",
	}))
	repo.AddSource(NewFileConfigSource(path))

	cfg, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, "https://flag.example.com/api", cfg.APIEndpoint)
	assert.Equal(t, 15, cfg.RequestTimeout)
	assert.False(t, cfg.Debug)
	assert.Equal(t, 5, cfg.RetryAttempts)
	assert.Equal(t, DefaultNotificationInterval, cfg.NotificationInterval)

	assert.Equal(t, []string{"defaults", "file", "environment", "flags"}, repo.SourceNames())
}

func TestEnvironmentSourceParsesLists(t *testing.T) {
	repo := NewEmptyConfigRepository(filepath.Join(t.TempDir(), "config.yaml"))
	repo.AddSource(NewEnvironmentConfigSource(map[string]string{
		"MFL_ALLOWED_SCRIPT_ORIGINS": "https://a.example.com,https://b.example.com",
		"MFL_STORAGE_BACKEND":        "memory",
	}))

	cfg, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedScriptOrigins)
	assert.Equal(t, ports.StorageBackendMemory, cfg.StorageBackend)
}

func TestEnvironmentSourceRejectsBadValues(t *testing.T) {
	repo := NewEmptyConfigRepository(filepath.Join(t.TempDir(), "config.yaml"))
	repo.AddSource(NewEnvironmentConfigSource(map[string]string{"MFL_REQUEST_TIMEOUT": "soon"}))

	_, err := repo.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment")
}

func TestValidate(t *testing.T) {
	repo := NewEmptyConfigRepository("")

	tests := []struct {
		name    string
		mutate  func(c *ports.Configuration)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(c *ports.Configuration) {}},
		{name: "empty endpoint", mutate: func(c *ports.Configuration) { c.APIEndpoint = "" }, wantErr: "API endpoint cannot be empty"},
		{name: "unknown backend", mutate: func(c *ports.Configuration) { c.StorageBackend = "redis" }, wantErr: "invalid storage backend"},
		{name: "zero timeout", mutate: func(c *ports.Configuration) { c.RequestTimeout = 0 }, wantErr: "request timeout"},
		{name: "zero attempts", mutate: func(c *ports.Configuration) { c.RetryAttempts = 0 }, wantErr: "retry attempts"},
		{name: "zero interval", mutate: func(c *ports.Configuration) { c.NotificationInterval = 0 }, wantErr: "notification interval"},
		{name: "missing data dir", mutate: func(c *ports.Configuration) { c.DataDir = "" }, wantErr: "data directory is required"},
		{name: "memory backend needs no data dir", mutate: func(c *ports.Configuration) {
			c.DataDir = ""
			c.StorageBackend = ports.StorageBackendMemory
		}},
		{name: "origin with path", mutate: func(c *ports.Configuration) {
			c.AllowedScriptOrigins = []string{"https://cdn.example.com/plugins"}
		}, wantErr: "must not contain a path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := repo.LoadDefault()
			tt.mutate(cfg)
			err := repo.Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Error(t, repo.Validate(nil))
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			repo := NewEmptyConfigRepository(path)
			repo.AddSource(NewFileConfigSource(path))

			cfg, err := repo.Load()
			require.NoError(t, err)
			cfg.APIEndpoint = "https://saved.example.com/api"
			cfg.NotificationInterval = 90
			require.NoError(t, repo.Save(cfg))

			loaded, err := repo.Load()
			require.NoError(t, err)
			assert.Equal(t, "https://saved.example.com/api", loaded.APIEndpoint)
			assert.Equal(t, 90, loaded.NotificationInterval)

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
		})
	}
}

func TestSaveRejectsInvalidConfiguration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	repo := NewEmptyConfigRepository(path)

	cfg := repo.LoadDefault()
	cfg.StorageBackend = "tape"
	require.Error(t, repo.Save(cfg))
	assert.NoFileExists(t, path)
}

func TestLoadReturnsIndependentCopies(t *testing.T) {
	repo := NewEmptyConfigRepository(filepath.Join(t.TempDir(), "config.yaml"))
	repo.AddSource(NewEnvironmentConfigSource(map[string]string{"MFL_ALLOWED_SCRIPT_ORIGINS": "https://a.example.com"}))

	first, err := repo.Load()
	require.NoError(t, err)
	first.APIEndpoint = "mutated"
	first.AllowedScriptOrigins[0] = "mutated"

	second, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIEndpoint, second.APIEndpoint)
	assert.Equal(t, []string{"https://a.example.com"}, second.AllowedScriptOrigins)
}

func TestConfigFileEnvSelectsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	t.Setenv(ConfigFileEnv, path)

	repo := NewCompositeConfigRepository()
	assert.Equal(t, path, repo.GetConfigPath())
}

func TestDataDirTildeIsExpanded(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	repo := NewEmptyConfigRepository(filepath.Join(t.TempDir(), "config.yaml"))
	repo.AddSource(NewEnvironmentConfigSource(map[string]string{"MFL_DATA_DIR": "~/mfl-data"}))

	cfg, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "mfl-data"), cfg.DataDir)
}
