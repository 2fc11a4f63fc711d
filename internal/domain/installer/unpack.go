package installer

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/paths"
)

var (
	ErrUnsafePath    = errors.New("archive entry escapes destination")
	ErrLimitExceeded = errors.New("archive exceeds extraction limits")
	ErrUnsupported   = errors.New("unsupported package format")
)

// Limits bound what a single package may extract
type Limits struct {
	MaxFiles int
	MaxBytes int64
}

// DefaultLimits returns limits generous enough for web apps
func DefaultLimits() Limits {
	return Limits{MaxFiles: 20000, MaxBytes: 1 << 30}
}

// Unpacker extracts a package archive into a directory
type Unpacker interface {
	Unpack(ctx context.Context, archive, dest string) error
}

// ZipUnpacker extracts zip packages
type ZipUnpacker struct {
	Limits Limits
}

// Unpack implements Unpacker
func (u ZipUnpacker) Unpack(ctx context.Context, archive, dest string) error {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("open failed: %w", err)
	}
	defer reader.Close()

	budget := newBudget(u.Limits)
	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		destPath, err := entryPath(dest, file.Name)
		if err != nil {
			return err
		}

		info := file.FileInfo()
		if info.IsDir() {
			if err := os.MkdirAll(destPath, 0755); err != nil {
				return err
			}
			continue
		}
		if !info.Mode().IsRegular() {
			// Symlinks and devices are never installed
			continue
		}
		if err := budget.add(int64(file.UncompressedSize64)); err != nil {
			return err
		}

		src, err := file.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", file.Name, err)
		}
		err = writeFile(destPath, src, int64(file.UncompressedSize64))
		src.Close()
		if err != nil {
			return fmt.Errorf("extract %s: %w", file.Name, err)
		}
	}
	return nil
}

// Compression of a tar package
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
)

// TarUnpacker extracts tar packages, optionally gzip or zstd compressed
type TarUnpacker struct {
	Compression Compression
	Limits      Limits
}

// Unpack implements Unpacker
func (u TarUnpacker) Unpack(ctx context.Context, archive, dest string) error {
	file, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("open failed: %w", err)
	}
	defer file.Close()

	var r io.Reader = file
	switch u.Compression {
	case CompressionGzip:
		gz, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("gzip failed: %w", err)
		}
		defer gz.Close()
		r = gz
	case CompressionZstd:
		zr, err := zstd.NewReader(file)
		if err != nil {
			return fmt.Errorf("zstd failed: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	tr := tar.NewReader(r)
	budget := newBudget(u.Limits)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}

		destPath, err := entryPath(dest, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(destPath, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := budget.add(header.Size); err != nil {
				return err
			}
			if err := writeFile(destPath, tr, header.Size); err != nil {
				return fmt.Errorf("extract %s: %w", header.Name, err)
			}
		}
	}
}

type budget struct {
	limits Limits
	files  int
	bytes  int64
}

func newBudget(l Limits) *budget {
	if l.MaxFiles <= 0 && l.MaxBytes <= 0 {
		l = DefaultLimits()
	}
	return &budget{limits: l}
}

func (b *budget) add(size int64) error {
	b.files++
	b.bytes += size
	if b.limits.MaxFiles > 0 && b.files > b.limits.MaxFiles {
		return fmt.Errorf("%w: more than %d files", ErrLimitExceeded, b.limits.MaxFiles)
	}
	if b.limits.MaxBytes > 0 && b.bytes > b.limits.MaxBytes {
		return fmt.Errorf("%w: more than %d bytes", ErrLimitExceeded, b.limits.MaxBytes)
	}
	return nil
}

// entryPath resolves an archive entry below dest, rejecting zip-slip names
func entryPath(dest, name string) (string, error) {
	clean := filepath.Clean(dest)
	destPath := filepath.Join(clean, filepath.FromSlash(name))
	if filepath.IsAbs(filepath.FromSlash(name)) || !paths.Contains(clean, destPath) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return destPath, nil
}

func writeFile(path string, src io.Reader, size int64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	// Copy one byte past the declared size to catch lying headers
	n, err := io.Copy(out, io.LimitReader(src, size+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n > size {
		return fmt.Errorf("%w: entry larger than declared", ErrLimitExceeded)
	}
	return nil
}
