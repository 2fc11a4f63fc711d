// Package installer performs the filesystem half of an app transition.
//
// A package is extracted into a private staging directory, its bundled
// manifest is read, and on success the staging directory is moved into a
// fresh versioned content directory. The previous version stays on disk
// until the registry has committed the new one, so a crash at any point
// leaves the last committed content intact. Leftovers from interrupted
// transitions are removed by CleanupOrphans at boot.
package installer
