package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/utils"
)

// Store persists app records
type Store interface {
	List(ctx context.Context) ([]*AppRecord, error)
	Put(ctx context.Context, rec *AppRecord) error
	Delete(ctx context.Context, appID string) error
	Close() error
}

const recordExt = ".json"

// FileStore keeps one JSON document per app in a directory
type FileStore struct {
	dir     string
	logger  *zap.Logger
	dirSync func(dir string) error
}

// NewFileStore creates a file store rooted at dir
func NewFileStore(dir string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: dir, logger: logger, dirSync: syncDir}
}

// List loads every record in the store directory
func (s *FileStore) List(ctx context.Context) ([]*AppRecord, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry dir: %w", err)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list registry dir: %w", err)
	}

	var records []*AppRecord
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != recordExt {
			continue
		}
		path := filepath.Join(s.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read record %s: %w", name, err)
		}
		var rec AppRecord
		if err := sonic.Unmarshal(data, &rec); err != nil || rec.ID == "" {
			// A corrupt record is skipped so one bad file cannot block boot
			s.logger.Warn("Skipping unreadable app record", zap.String("path", path), zap.Error(err))
			continue
		}
		if rec.ID != strings.TrimSuffix(name, recordExt) {
			s.logger.Warn("App record id does not match file name", zap.String("path", path), zap.String("app_id", rec.ID))
			continue
		}
		records = append(records, &rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// Put writes a record atomically: temp file, fsync, rename, directory fsync.
// Once the rename has landed the record is current, so a failed directory
// fsync is logged rather than returned.
func (s *FileStore) Put(ctx context.Context, rec *AppRecord) error {
	if err := utils.ValidateID(rec.ID, "app id", true); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create registry dir: %w", err)
	}

	data, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+rec.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp record: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close record: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(rec.ID)); err != nil {
		return fmt.Errorf("failed to replace record: %w", err)
	}
	s.syncAfter("put", rec.ID)
	return nil
}

// Delete removes a record; deleting a missing record is not an error
func (s *FileStore) Delete(ctx context.Context, appID string) error {
	if err := utils.ValidateID(appID, "app id", true); err != nil {
		return err
	}
	if err := os.Remove(s.path(appID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	s.syncAfter("delete", appID)
	return nil
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) path(appID string) string {
	return filepath.Join(s.dir, appID+recordExt)
}

func (s *FileStore) syncAfter(op, appID string) {
	if err := s.dirSync(s.dir); err != nil {
		s.logger.Warn("Registry dir sync failed",
			zap.String("op", op), zap.String("app_id", appID), zap.Error(err))
	}
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open registry dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync registry dir: %w", err)
	}
	return nil
}
