package plugin

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ID is the marketplace identifier of a plugin
type ID int64

// ParseID parses a plugin ID from its decimal string form
func ParseID(value string) (ID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid plugin id %q: %w", value, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid plugin id %q: must be positive", value)
	}
	return ID(n), nil
}

// String implements the Stringer interface
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ScriptElementID returns the document identifier of the script injected for id
func ScriptElementID(id ID) string {
	return "plugin-script-" + id.String()
}

// Descriptor is the marketplace view of a plugin. It is owned by the remote
// service and never persisted locally.
type Descriptor struct {
	ID          ID     `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	FileURL     string `json:"fileUrl"`
	IconURL     string `json:"iconUrl"`
	AuthorName  string `json:"authorName"`
	Downloads   int    `json:"downloads"`
	UpdatedAt   string `json:"updatedAt"`
	Type        string `json:"type"`
}

// Validate checks the descriptor can be keyed in the registry. A missing
// file url is not checked here: the script fails to attach and the plugin
// stays installed.
func (d Descriptor) Validate() error {
	if d.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidDescriptor)
	}
	return nil
}

// Record is the locally persisted snapshot of an installed plugin.
// Descriptor fields are copied at install time and never re-synced.
type Record struct {
	ID          ID     `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	FileURL     string `json:"fileUrl"`
	IconURL     string `json:"iconUrl"`
	AuthorName  string `json:"authorName"`
	IsEnabled   bool   `json:"isEnabled"`
	InstalledAt int64  `json:"installedAt"` // Unix milliseconds
}

// NewRecord derives an enabled record from a descriptor
func NewRecord(d Descriptor, now time.Time) Record {
	return Record{
		ID:          d.ID,
		Slug:        d.Slug,
		Name:        d.Name,
		Description: d.Description,
		Version:     d.Version,
		FileURL:     d.FileURL,
		IconURL:     d.IconURL,
		AuthorName:  d.AuthorName,
		IsEnabled:   true,
		InstalledAt: now.UnixMilli(),
	}
}

// InstalledTime returns InstalledAt as a time
func (r Record) InstalledTime() time.Time {
	return time.UnixMilli(r.InstalledAt)
}

// DisplayName returns the name, falling back to the slug and then the id
func (r Record) DisplayName() string {
	switch {
	case r.Name != "":
		return r.Name
	case r.Slug != "":
		return r.Slug
	default:
		return "plugin " + r.ID.String()
	}
}

// IsArchive reports whether fileURL names a packaged archive. Archives are
// not directly executable and are never injected as scripts.
func IsArchive(fileURL string) bool {
	path := fileURL
	if u, err := url.Parse(fileURL); err == nil && u.Path != "" {
		path = u.Path
	}
	return strings.HasSuffix(strings.ToLower(path), ".zip")
}

// State is the lifecycle state of a plugin id
type State string

const (
	StateUninstalled State = "uninstalled"
	StateEnabled     State = "enabled"
	StateDisabled    State = "disabled"
)
