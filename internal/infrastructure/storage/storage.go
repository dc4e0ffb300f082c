// Package storage provides the durable key/value stores that hold local
// client state such as the installed plugin registry and the session token.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"mfl.dev/cli/internal/application/ports"
)

// Open returns the store selected by backend, rooted at dataDir
func Open(backend, dataDir string) (ports.KeyValueStore, error) {
	switch backend {
	case ports.StorageBackendFile, "":
		return NewFileStore(filepath.Join(dataDir, "storage"))
	case ports.StorageBackendSQLite:
		return OpenSQLiteStore(filepath.Join(dataDir, "storage.db"))
	case ports.StorageBackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// DefaultDataDir returns the platform-appropriate data directory
func DefaultDataDir() string {
	if custom := os.Getenv("MFL_DATA_DIR"); custom != "" {
		return custom
	}

	switch runtime.GOOS {
	case "windows":
		if base := os.Getenv("APPDATA"); base != "" {
			return filepath.Join(base, "mfl")
		}
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", "mfl")
		}
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "mfl")
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".mfl")
	}
	return ".mfl"
}
