package services

import (
	"context"
	"fmt"
	"sync"

	"mfl.dev/cli/internal/application/ports"
	"mfl.dev/cli/internal/core/plugin"
)

// PluginRegistryStore owns the in-memory plugin registry. Every mutating
// method persists the full registry before it returns, so a later Load
// observes the change. Persistence failures are returned but the in-memory
// state keeps the mutation.
type PluginRegistryStore struct {
	mu       sync.RWMutex
	registry plugin.Registry
	repo     ports.PluginRegistryRepository
}

// NewPluginRegistryStore creates an empty store backed by repo
func NewPluginRegistryStore(repo ports.PluginRegistryRepository) *PluginRegistryStore {
	return &PluginRegistryStore{
		registry: plugin.NewRegistry(),
		repo:     repo,
	}
}

// Load replaces the in-memory registry with the persisted one. On corrupt or
// unreadable data the store is left empty and the error is returned for
// reporting.
func (s *PluginRegistryStore) Load(ctx context.Context) error {
	reg, err := s.repo.Load(ctx)
	if reg == nil {
		reg = plugin.NewRegistry()
	}

	s.mu.Lock()
	s.registry = reg
	s.mu.Unlock()

	return err
}

// Put inserts or overwrites a record, then persists
func (s *PluginRegistryStore) Put(ctx context.Context, rec plugin.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry.Put(rec)
	return s.persistLocked(ctx)
}

// Remove deletes id, then persists. It reports whether id was installed;
// removing a missing id writes nothing.
func (s *PluginRegistryStore) Remove(ctx context.Context, id plugin.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registry.Delete(id) {
		return false, nil
	}
	return true, s.persistLocked(ctx)
}

// SetEnabled sets the enabled flag of id, then persists. The updated record
// is returned even when persisting fails.
func (s *PluginRegistryStore) SetEnabled(ctx context.Context, id plugin.ID, enabled bool) (plugin.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.registry.Get(id)
	if !ok {
		return plugin.Record{}, fmt.Errorf("plugin %s: %w", id, plugin.ErrPluginNotInstalled)
	}
	rec.IsEnabled = enabled
	s.registry.Put(rec)
	return rec, s.persistLocked(ctx)
}

// Get returns the record for id
func (s *PluginRegistryStore) Get(id plugin.ID) (plugin.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Get(id)
}

// Has reports whether id is installed
func (s *PluginRegistryStore) Has(id plugin.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Has(id)
}

// State returns the lifecycle state of id
func (s *PluginRegistryStore) State(id plugin.ID) plugin.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.State(id)
}

// All returns every record ordered by id
func (s *PluginRegistryStore) All() []plugin.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Records()
}

// Enabled returns the enabled records ordered by id
func (s *PluginRegistryStore) Enabled() []plugin.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Enabled()
}

// Snapshot returns a copy of the registry
func (s *PluginRegistryStore) Snapshot() plugin.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Clone()
}

func (s *PluginRegistryStore) persistLocked(ctx context.Context) error {
	return s.repo.Save(ctx, s.registry.Clone())
}
