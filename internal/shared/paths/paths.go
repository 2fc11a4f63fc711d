package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Subdirectories of the data root
const (
	RegistryDir  = "registry"
	DownloadsDir = "downloads"
	StagingDir   = "staging"
	InstalledDir = "installed"
)

// Suffixes used while moving content across filesystems
const (
	PartialSuffix    = ".partial"
	ActivatingMarker = ".activating"
	DownloadExt      = ".pkg"
)

// Layout resolves every path below a data root
type Layout struct {
	Root string
}

// New returns the layout rooted at root
func New(root string) Layout {
	return Layout{Root: filepath.Clean(root)}
}

// Registry returns the registry store directory
func (l Layout) Registry() string {
	return filepath.Join(l.Root, RegistryDir)
}

// Downloads returns the package download directory
func (l Layout) Downloads() string {
	return filepath.Join(l.Root, DownloadsDir)
}

// Staging returns the staging root
func (l Layout) Staging() string {
	return filepath.Join(l.Root, StagingDir)
}

// Installed returns the installed content root
func (l Layout) Installed() string {
	return filepath.Join(l.Root, InstalledDir)
}

// DownloadFile returns where the package of a transition is downloaded
func (l Layout) DownloadFile(transitionID string) string {
	return filepath.Join(l.Downloads(), transitionID+DownloadExt)
}

// StagingDir returns the staging directory of one transition
func (l Layout) StagingDir(appID, transitionID string) string {
	return filepath.Join(l.Staging(), appID+"."+transitionID)
}

// AppDir returns the directory holding every content version of an app
func (l Layout) AppDir(appID string) string {
	return filepath.Join(l.Installed(), appID)
}

// ContentDir returns the versioned content directory of one transition
func (l Layout) ContentDir(appID, transitionID string) string {
	return filepath.Join(l.AppDir(appID), transitionID)
}

// Ensure creates the standard directories
func (l Layout) Ensure() error {
	for _, dir := range l.StandardDirectories() {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// StandardDirectories returns all directories that should exist
func (l Layout) StandardDirectories() []string {
	return []string{l.Registry(), l.Downloads(), l.Staging(), l.Installed()}
}

// Contains reports whether path lies strictly inside dir
func Contains(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// ValidateAppID checks if an app ID is valid for path construction
func ValidateAppID(appID string) error {
	if appID == "" {
		return fmt.Errorf("app ID cannot be empty")
	}
	if filepath.IsAbs(appID) {
		return fmt.Errorf("app ID cannot be an absolute path")
	}
	if filepath.Clean(appID) != appID || strings.ContainsAny(appID, `/\`) || appID == ".." {
		return fmt.Errorf("app ID contains invalid path components")
	}
	return nil
}
