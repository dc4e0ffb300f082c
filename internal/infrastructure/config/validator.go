package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"mfl.dev/cli/internal/application/ports"
)

// ConfigValidator validates configuration values
type ConfigValidator struct{}

// NewConfigValidator creates a new configuration validator
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// ValidateAPIEndpoint validates an API endpoint URL
func (v *ConfigValidator) ValidateAPIEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("API endpoint cannot be empty")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %q (must be http or https)", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("URL must include host")
	}

	return nil
}

// ValidateStorageBackend checks the backend is one of the known stores
func (v *ConfigValidator) ValidateStorageBackend(backend string) error {
	switch backend {
	case ports.StorageBackendFile, ports.StorageBackendSQLite, ports.StorageBackendMemory:
		return nil
	default:
		return fmt.Errorf("invalid storage backend: %q (valid backends: %s, %s, %s)", backend,
			ports.StorageBackendFile, ports.StorageBackendSQLite, ports.StorageBackendMemory)
	}
}

// ValidateOrigins checks every allow-list entry is a bare scheme://host origin
func (v *ConfigValidator) ValidateOrigins(origins []string) error {
	for _, origin := range origins {
		u, err := url.Parse(origin)
		if err != nil {
			return fmt.Errorf("invalid script origin %q: %w", origin, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid script origin %q: must be scheme://host", origin)
		}
		if (u.Path != "" && u.Path != "/") || u.RawQuery != "" {
			return fmt.Errorf("invalid script origin %q: must not contain a path or query", origin)
		}
	}
	return nil
}

// ValidateDataDir checks the data directory exists and is a directory, or
// that its parent exists so it can be created
func (v *ConfigValidator) ValidateDataDir(path string) error {
	if path == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	expandedPath := expandPath(path)

	info, err := os.Stat(expandedPath)
	if err != nil {
		if os.IsNotExist(err) {
			dir := filepath.Dir(expandedPath)
			if _, err := os.Stat(dir); err != nil {
				return fmt.Errorf("parent directory does not exist: %s", dir)
			}
			return nil
		}
		return fmt.Errorf("failed to check data directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("data path exists but is not a directory: %s", path)
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			path = strings.Replace(path, "~", homeDir, 1)
		}
	}

	return os.ExpandEnv(path)
}
