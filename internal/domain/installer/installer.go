package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/manifest"
	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/paths"
)

// ErrPackagedManifest is returned when a bundle lacks a readable manifest
var ErrPackagedManifest = errors.New("package manifest missing or invalid")

// Bundle is an extracted package waiting to be activated
type Bundle struct {
	AppID        string
	TransitionID string
	Dir          string
	Manifest     *manifest.Manifest
	Size         int64
	Files        int
}

// Option configures an Installer
type Option func(*Installer)

// WithLimits sets extraction limits
func WithLimits(l Limits) Option {
	return func(i *Installer) { i.limits = l }
}

// WithUnpacker registers an unpacker for a MIME type
func WithUnpacker(mime string, u Unpacker) Option {
	return func(i *Installer) { i.unpackers[mime] = u }
}

// Installer stages, activates and removes app content below a data root
type Installer struct {
	layout    paths.Layout
	limits    Limits
	unpackers map[string]Unpacker
	logger    *zap.Logger
	rename    func(oldpath, newpath string) error
}

// New creates an installer for layout
func New(layout paths.Layout, logger *zap.Logger, opts ...Option) *Installer {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &Installer{
		layout:    layout,
		limits:    DefaultLimits(),
		unpackers: make(map[string]Unpacker),
		logger:    logger,
		rename:    os.Rename,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.registerDefaults()
	return i
}

func (i *Installer) registerDefaults() {
	defaults := map[string]Unpacker{
		"application/zip":    ZipUnpacker{Limits: i.limits},
		"application/x-tar":  TarUnpacker{Limits: i.limits},
		"application/gzip":   TarUnpacker{Compression: CompressionGzip, Limits: i.limits},
		"application/x-gzip": TarUnpacker{Compression: CompressionGzip, Limits: i.limits},
		"application/zstd":   TarUnpacker{Compression: CompressionZstd, Limits: i.limits},
	}
	for mime, u := range defaults {
		if _, ok := i.unpackers[mime]; !ok {
			i.unpackers[mime] = u
		}
	}
}

// Layout returns the directory layout the installer works in
func (i *Installer) Layout() paths.Layout {
	return i.layout
}

// Stage extracts the package at archive into the staging directory of the
// transition and reads the bundled manifest. A failed stage leaves nothing
// behind.
func (i *Installer) Stage(ctx context.Context, appID, transitionID, archive string) (*Bundle, error) {
	if err := paths.ValidateAppID(appID); err != nil {
		return nil, err
	}
	unpacker, err := i.unpackerFor(archive)
	if err != nil {
		return nil, err
	}

	dir := i.layout.StagingDir(appID, transitionID)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("failed to clear staging dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}

	bundle, err := i.stage(ctx, unpacker, appID, transitionID, archive, dir)
	if err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			i.logger.Warn("Failed to remove staging dir", zap.String("dir", dir), zap.Error(rmErr))
		}
		return nil, err
	}

	i.logger.Debug("Package staged",
		zap.String("app_id", appID),
		zap.String("dir", dir),
		zap.Int("files", bundle.Files),
		zap.Int64("size", bundle.Size))
	return bundle, nil
}

func (i *Installer) stage(ctx context.Context, u Unpacker, appID, transitionID, archive, dir string) (*Bundle, error) {
	if err := u.Unpack(ctx, archive, dir); err != nil {
		return nil, fmt.Errorf("failed to extract package: %w", err)
	}

	m, err := manifest.ReadManifest(filepath.Join(dir, manifest.FileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPackagedManifest, err)
	}

	size, files, err := BundleStats(ctx, dir)
	if err != nil {
		return nil, err
	}

	return &Bundle{
		AppID:        appID,
		TransitionID: transitionID,
		Dir:          dir,
		Manifest:     m,
		Size:         size,
		Files:        files,
	}, nil
}

func (i *Installer) unpackerFor(archive string) (Unpacker, error) {
	mtype, err := mimetype.DetectFile(archive)
	if err != nil {
		return nil, fmt.Errorf("failed to read package: %w", err)
	}
	for m := mtype; m != nil; m = m.Parent() {
		if u, ok := i.unpackers[m.String()]; ok {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, mtype.String())
}

// Activate moves a staged bundle into its versioned content directory and
// returns that directory. Across filesystems the bundle is copied into a
// partial directory first and renamed into place once complete.
func (i *Installer) Activate(ctx context.Context, b *Bundle) (string, error) {
	target := i.layout.ContentDir(b.AppID, b.TransitionID)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create app dir: %w", err)
	}

	err := i.rename(b.Dir, target)
	if err == nil {
		return target, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", fmt.Errorf("failed to activate bundle: %w", err)
	}

	i.logger.Debug("Staging on another filesystem, copying bundle", zap.String("app_id", b.AppID))
	if err := i.copyActivate(ctx, b.Dir, target); err != nil {
		return "", err
	}
	if err := os.RemoveAll(b.Dir); err != nil {
		i.logger.Warn("Failed to remove staged copy", zap.String("dir", b.Dir), zap.Error(err))
	}
	return target, nil
}

func (i *Installer) copyActivate(ctx context.Context, src, target string) error {
	partial := target + paths.PartialSuffix
	if err := os.RemoveAll(partial); err != nil {
		return err
	}
	if err := os.MkdirAll(partial, 0755); err != nil {
		return err
	}
	marker := filepath.Join(partial, paths.ActivatingMarker)
	if err := os.WriteFile(marker, nil, 0644); err != nil {
		return err
	}

	if err := copyTree(ctx, src, partial); err != nil {
		os.RemoveAll(partial)
		return fmt.Errorf("failed to copy bundle: %w", err)
	}
	if err := os.Remove(marker); err != nil {
		os.RemoveAll(partial)
		return err
	}
	if err := os.Rename(partial, target); err != nil {
		os.RemoveAll(partial)
		return fmt.Errorf("failed to activate bundle: %w", err)
	}
	return nil
}

// Discard removes a staged bundle
func (i *Installer) Discard(b *Bundle) error {
	if b == nil {
		return nil
	}
	return i.DiscardDir(b.Dir)
}

// DiscardDir removes a staging directory left by an earlier attempt
func (i *Installer) DiscardDir(dir string) error {
	if dir == "" {
		return nil
	}
	if !paths.Contains(i.layout.Staging(), dir) {
		return fmt.Errorf("refusing to discard %s outside staging", dir)
	}
	return os.RemoveAll(dir)
}

// Release removes a content directory that is no longer referenced.
// Content outside the managed layout, such as preloaded apps, is left alone.
func (i *Installer) Release(appID, contentPath string) error {
	if contentPath == "" {
		return nil
	}
	if !paths.Contains(i.layout.AppDir(appID), contentPath) {
		i.logger.Debug("Not releasing unmanaged content", zap.String("app_id", appID), zap.String("path", contentPath))
		return nil
	}
	return os.RemoveAll(contentPath)
}

// RemoveApp deletes every content version of an app
func (i *Installer) RemoveApp(appID string) error {
	if err := paths.ValidateAppID(appID); err != nil {
		return err
	}
	return os.RemoveAll(i.layout.AppDir(appID))
}

// RemoveDownload deletes the downloaded package of a transition
func (i *Installer) RemoveDownload(transitionID string) error {
	err := os.Remove(i.layout.DownloadFile(transitionID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// BundleStats returns the total size and number of regular files below dir
func BundleStats(ctx context.Context, dir string) (int64, int, error) {
	var size atomic.Int64
	var files atomic.Int64

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size.Add(info.Size())
		files.Add(1)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to scan bundle: %w", err)
	}
	return size.Load(), int(files.Load()), nil
}

func copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(p, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
