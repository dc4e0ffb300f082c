package services

import (
	"context"
	"fmt"
	"sort"

	"mfl.dev/cli/internal/application/ports"
	"mfl.dev/cli/internal/core/plugin"
)

// Listing is a marketplace entry joined with its local state
type Listing struct {
	plugin.Descriptor
	State plugin.State
}

// MarketplaceService browses the remote catalogue and installs from it
type MarketplaceService struct {
	api       ports.APIGateway
	lifecycle *PluginLifecycleService
	logger    ports.LoggingGateway
}

// NewMarketplaceService creates a new marketplace service
func NewMarketplaceService(api ports.APIGateway, lifecycle *PluginLifecycleService, logger ports.LoggingGateway) *MarketplaceService {
	return &MarketplaceService{
		api:       api,
		lifecycle: lifecycle,
		logger:    logger,
	}
}

// Catalogue returns every marketplace plugin with its local state, ordered by id
func (s *MarketplaceService) Catalogue(ctx context.Context) ([]Listing, error) {
	descriptors, err := s.api.ListPlugins(ctx)
	if err != nil {
		return nil, err
	}

	listings := make([]Listing, 0, len(descriptors))
	for _, d := range descriptors {
		listings = append(listings, Listing{Descriptor: d, State: s.lifecycle.State(d.ID)})
	}
	sort.Slice(listings, func(i, j int) bool { return listings[i].ID < listings[j].ID })
	return listings, nil
}

// Find returns the marketplace descriptor for id
func (s *MarketplaceService) Find(ctx context.Context, id plugin.ID) (plugin.Descriptor, error) {
	descriptors, err := s.api.ListPlugins(ctx)
	if err != nil {
		return plugin.Descriptor{}, err
	}
	for _, d := range descriptors {
		if d.ID == id {
			return d, nil
		}
	}
	return plugin.Descriptor{}, fmt.Errorf("plugin %s not found in marketplace", id)
}

// Install fetches the descriptor for id, installs it locally and bumps the
// remote download counter. The counter is best effort.
func (s *MarketplaceService) Install(ctx context.Context, id plugin.ID) (plugin.Record, error) {
	d, err := s.Find(ctx, id)
	if err != nil {
		return plugin.Record{}, err
	}
	return s.InstallDescriptor(ctx, d)
}

// InstallDescriptor installs an already fetched descriptor
func (s *MarketplaceService) InstallDescriptor(ctx context.Context, d plugin.Descriptor) (plugin.Record, error) {
	rec, err := s.lifecycle.Install(ctx, d)
	if err != nil {
		return plugin.Record{}, err
	}

	if err := s.api.RecordInstall(ctx, d.ID); err != nil {
		s.logger.Log(ports.LogLevelWarn, "Failed to record install", map[string]interface{}{
			"plugin_id": d.ID,
			"error":     err.Error(),
		})
	}
	return rec, nil
}
