// Package paths provides the standardized on-disk layout of the apps service.
//
// # Directory Structure
//
//	<data>/
//	  ├── registry/                          (app records)
//	  ├── downloads/<transition>.pkg         (fetched packages)
//	  ├── staging/<app_id>.<transition>/     (extracted, not yet active)
//	  └── installed/<app_id>/<transition>/   (content of the active version)
//
// A content directory is never rewritten in place: every install or update
// produces a fresh versioned directory and the registry decides which one is
// active.
//
// # Usage
//
//	layout := paths.New(cfg.Storage.DataDir)
//	if err := layout.Ensure(); err != nil { ... }
//	staged := layout.StagingDir("clock", txID)
package paths
