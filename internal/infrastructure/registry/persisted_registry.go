package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"mfl.dev/cli/internal/application/ports"
	"mfl.dev/cli/internal/core/plugin"
)

// StorageKey is the single entry holding the serialized registry
const StorageKey = "mfl_installed_plugins"

// PersistedRegistry reads and writes the installed plugin registry as one
// JSON object keyed by the stringified plugin id
type PersistedRegistry struct {
	store ports.KeyValueStore
	key   string
}

// NewPersistedRegistry creates a registry repository on top of store
func NewPersistedRegistry(store ports.KeyValueStore) *PersistedRegistry {
	return &PersistedRegistry{store: store, key: StorageKey}
}

// Load reads the persisted registry. A missing entry is an empty registry;
// unreadable or corrupt data yields an empty registry and a PersistenceError.
func (r *PersistedRegistry) Load(ctx context.Context) (plugin.Registry, error) {
	raw, ok, err := r.store.GetItem(ctx, r.key)
	if err != nil {
		return plugin.NewRegistry(), &plugin.PersistenceError{Op: "load", Key: r.key, Err: err}
	}
	if !ok || raw == "" {
		return plugin.NewRegistry(), nil
	}

	reg, err := Decode([]byte(raw))
	if err != nil {
		return plugin.NewRegistry(), &plugin.PersistenceError{Op: "load", Key: r.key, Err: err}
	}
	return reg, nil
}

// Save serializes and writes the full registry
func (r *PersistedRegistry) Save(ctx context.Context, reg plugin.Registry) error {
	data, err := Encode(reg)
	if err != nil {
		return &plugin.PersistenceError{Op: "save", Key: r.key, Err: err}
	}
	if err := r.store.SetItem(ctx, r.key, string(data)); err != nil {
		return &plugin.PersistenceError{Op: "save", Key: r.key, Err: err}
	}
	return nil
}

// Encode serializes reg. Map keys are sorted by encoding/json, so the
// output is deterministic.
func Encode(reg plugin.Registry) ([]byte, error) {
	out := make(map[string]plugin.Record, len(reg))
	for id, rec := range reg {
		out[id.String()] = rec
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal registry: %w", err)
	}
	return data, nil
}

// Decode parses data produced by Encode
func Decode(data []byte) (plugin.Registry, error) {
	var raw map[string]plugin.Record
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}

	reg := make(plugin.Registry, len(raw))
	for key, rec := range raw {
		id, err := plugin.ParseID(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse registry: %w", err)
		}
		if rec.ID != id {
			return nil, fmt.Errorf("failed to parse registry: entry %s holds plugin %d", key, rec.ID)
		}
		reg[id] = rec
	}
	return reg, nil
}
