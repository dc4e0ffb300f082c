package services

import (
	"context"
	"fmt"
	"time"

	"mfl.dev/cli/internal/application/ports"
	"mfl.dev/cli/internal/core/plugin"
)

// PluginLifecycleService installs, removes and toggles plugins, keeping the
// registry and the page's injected scripts in step. It is the single writer
// of the registry store.
//
// Operations are not cancellable once the mutation starts: ctx is only
// consulted by the uninstall confirmation.
type PluginLifecycleService struct {
	store     *PluginRegistryStore
	loader    ports.ScriptLoader
	confirmer ports.Confirmer
	logger    ports.LoggingGateway
	now       func() time.Time
}

// NewPluginLifecycleService creates a new lifecycle service
func NewPluginLifecycleService(
	store *PluginRegistryStore,
	loader ports.ScriptLoader,
	confirmer ports.Confirmer,
	logger ports.LoggingGateway,
) *PluginLifecycleService {
	return &PluginLifecycleService{
		store:     store,
		loader:    loader,
		confirmer: confirmer,
		logger:    logger,
		now:       time.Now,
	}
}

// Install records d as installed and enabled, then attaches its script.
// Installing an installed id overwrites its record. Persist and attach
// failures are logged; the plugin stays installed.
func (s *PluginLifecycleService) Install(ctx context.Context, d plugin.Descriptor) (plugin.Record, error) {
	if err := d.Validate(); err != nil {
		return plugin.Record{}, err
	}

	rec := plugin.NewRecord(d, s.now())
	if err := s.store.Put(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.LogError(err, "Failed to persist plugin registry", map[string]interface{}{
			"plugin_id": rec.ID,
		})
	}

	s.attach(rec)

	s.logger.Log(ports.LogLevelInfo, "Plugin installed", map[string]interface{}{
		"plugin_id": rec.ID,
		"name":      rec.DisplayName(),
		"version":   rec.Version,
	})
	return rec, nil
}

// Uninstall asks for confirmation, then removes id from the registry and
// detaches its script, which reloads the page. It returns false when the
// user declines, leaving everything untouched.
func (s *PluginLifecycleService) Uninstall(ctx context.Context, id plugin.ID) (bool, error) {
	rec, ok := s.store.Get(id)
	if !ok {
		return false, fmt.Errorf("plugin %s: %w", id, plugin.ErrPluginNotInstalled)
	}

	prompt := fmt.Sprintf("Uninstall plugin %q? The page will reload.", rec.DisplayName())
	if !s.confirmer.Confirm(ctx, prompt) {
		s.logger.Log(ports.LogLevelDebug, "Uninstall declined", map[string]interface{}{
			"plugin_id": id,
		})
		return false, nil
	}

	if _, err := s.store.Remove(context.WithoutCancel(ctx), id); err != nil {
		s.logger.LogError(err, "Failed to persist plugin registry", map[string]interface{}{
			"plugin_id": id,
		})
	}

	s.logger.Log(ports.LogLevelInfo, "Plugin uninstalled", map[string]interface{}{
		"plugin_id": id,
		"name":      rec.DisplayName(),
	})

	s.loader.Detach(id)
	return true, nil
}

// Toggle flips the enabled flag of id. Enabling attaches the script;
// disabling detaches it, which reloads the page. It returns the new state.
// An id that is not installed is left alone and reported with
// ErrPluginNotInstalled.
func (s *PluginLifecycleService) Toggle(ctx context.Context, id plugin.ID) (bool, error) {
	current, ok := s.store.Get(id)
	if !ok {
		return false, fmt.Errorf("plugin %s: %w", id, plugin.ErrPluginNotInstalled)
	}

	rec, err := s.store.SetEnabled(context.WithoutCancel(ctx), id, !current.IsEnabled)
	if err != nil {
		s.logger.LogError(err, "Failed to persist plugin registry", map[string]interface{}{
			"plugin_id": id,
		})
	}

	s.logger.Log(ports.LogLevelInfo, "Plugin toggled", map[string]interface{}{
		"plugin_id": id,
		"enabled":   rec.IsEnabled,
	})

	if rec.IsEnabled {
		s.attach(rec)
	} else {
		s.loader.Detach(id)
	}
	return rec.IsEnabled, nil
}

// SetEnabled toggles id only when its state differs from enabled. It
// reports whether anything changed.
func (s *PluginLifecycleService) SetEnabled(ctx context.Context, id plugin.ID, enabled bool) (bool, error) {
	rec, ok := s.store.Get(id)
	if !ok {
		return false, fmt.Errorf("plugin %s: %w", id, plugin.ErrPluginNotInstalled)
	}
	if rec.IsEnabled == enabled {
		return false, nil
	}
	if _, err := s.Toggle(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// IsInstalled reports whether id has a registry record
func (s *PluginLifecycleService) IsInstalled(id plugin.ID) bool {
	return s.store.Has(id)
}

// IsEnabled reports whether id is installed and enabled
func (s *PluginLifecycleService) IsEnabled(id plugin.ID) bool {
	rec, ok := s.store.Get(id)
	return ok && rec.IsEnabled
}

// State returns the lifecycle state of id
func (s *PluginLifecycleService) State(id plugin.ID) plugin.State {
	return s.store.State(id)
}

// Installed returns every installed record ordered by id
func (s *PluginLifecycleService) Installed() []plugin.Record {
	return s.store.All()
}

// InitPlugins attaches the script of every enabled record. It runs once per
// page lifetime, after the registry is loaded.
func (s *PluginLifecycleService) InitPlugins(ctx context.Context) {
	enabled := s.store.Enabled()
	for _, rec := range enabled {
		s.attach(rec)
	}

	s.logger.Log(ports.LogLevelDebug, "Plugins initialized", map[string]interface{}{
		"enabled": len(enabled),
	})
}

func (s *PluginLifecycleService) attach(rec plugin.Record) {
	if err := s.loader.Attach(rec); err != nil {
		s.logger.LogError(err, "Failed to load plugin", map[string]interface{}{
			"plugin_id": rec.ID,
			"name":      rec.DisplayName(),
		})
	}
}
