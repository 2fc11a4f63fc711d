package registry

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/manifest"
)

// State is the committed install state of an app
type State string

const (
	StateNotInstalled State = "not_installed"
	StateInstalled    State = "installed"
)

// Status tells whether an installed app may be launched
type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
)

// AppRecord is the registry entry of one installed app
type AppRecord struct {
	ID            string             `json:"id"`
	Manifest      *manifest.Manifest `json:"manifest"`
	State         State              `json:"state"`
	Status        Status             `json:"status"`
	ContentPath   string             `json:"content_path"`
	StagedPath    string             `json:"staged_path,omitempty"`
	UpdateURL     string             `json:"update_url,omitempty"`
	Version       string             `json:"version,omitempty"`
	PackageDigest string             `json:"package_digest,omitempty"`
	InstalledSize int64              `json:"installed_size"`
	FileCount     int                `json:"file_count"`
	Removable     bool               `json:"removable"`
	Preloaded     bool               `json:"preloaded"`
	InstalledAt   time.Time          `json:"installed_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Metadata is the non-manifest part of a commit
type Metadata struct {
	UpdateURL     string
	Version       string
	PackageDigest string
	InstalledSize int64
	FileCount     int
	Removable     bool
	Preloaded     bool
}

// MetadataOf extracts the commit metadata of an existing record
func MetadataOf(rec AppRecord) Metadata {
	return Metadata{
		UpdateURL:     rec.UpdateURL,
		Version:       rec.Version,
		PackageDigest: rec.PackageDigest,
		InstalledSize: rec.InstalledSize,
		FileCount:     rec.FileCount,
		Removable:     rec.Removable,
		Preloaded:     rec.Preloaded,
	}
}

// Stats contains registry statistics
type Stats struct {
	TotalApps    int        `json:"total_apps"`
	EnabledApps  int        `json:"enabled_apps"`
	DisabledApps int        `json:"disabled_apps"`
	InFlight     int        `json:"in_flight"`
	LastUpdated  *time.Time `json:"last_updated,omitempty"`
}
