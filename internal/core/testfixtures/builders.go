package testfixtures

import (
	"fmt"

	"mfl.dev/cli/internal/core/plugin"
)

// DescriptorBuilder provides a builder pattern for creating test descriptors
type DescriptorBuilder struct {
	descriptor plugin.Descriptor
}

// NewDescriptorBuilder creates a DescriptorBuilder with sensible defaults
func NewDescriptorBuilder(id plugin.ID) *DescriptorBuilder {
	return &DescriptorBuilder{
		descriptor: plugin.Descriptor{
			ID:          id,
			Slug:        fmt.Sprintf("plugin-%d", id),
			Name:        fmt.Sprintf("Plugin %d", id),
			Description: "test plugin",
			Version:     "1.0.0",
			FileURL:     fmt.Sprintf("https://cdn.example.com/plugins/%d.js", id),
			AuthorName:  "tester",
			Downloads:   3,
			UpdatedAt:   "2025-01-01T00:00:00Z",
			Type:        "script",
		},
	}
}

// WithFileURL sets the file URL
func (b *DescriptorBuilder) WithFileURL(url string) *DescriptorBuilder {
	b.descriptor.FileURL = url
	return b
}

// WithName sets the display name
func (b *DescriptorBuilder) WithName(name string) *DescriptorBuilder {
	b.descriptor.Name = name
	return b
}

// WithIconURL sets the icon URL
func (b *DescriptorBuilder) WithIconURL(url string) *DescriptorBuilder {
	b.descriptor.IconURL = url
	return b
}

// AsArchive points the descriptor at a zip bundle
func (b *DescriptorBuilder) AsArchive() *DescriptorBuilder {
	b.descriptor.FileURL = fmt.Sprintf("https://cdn.example.com/plugins/%d.zip", b.descriptor.ID)
	b.descriptor.Type = "bundle"
	return b
}

// Build returns the descriptor
func (b *DescriptorBuilder) Build() plugin.Descriptor {
	return b.descriptor
}

// BuildRecord returns an enabled record derived from the descriptor
func (b *DescriptorBuilder) BuildRecord(installedAt int64) plugin.Record {
	rec := plugin.NewRecord(b.descriptor, fixedTime)
	rec.InstalledAt = installedAt
	return rec
}
