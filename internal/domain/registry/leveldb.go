package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/utils"
)

const levelKeyPrefix = "app/"

// LevelStore keeps records in a goleveldb database
type LevelStore struct {
	db     *leveldb.DB
	logger *zap.Logger
}

// OpenLevelStore opens or creates a database at path
func OpenLevelStore(path string, logger *zap.Logger) (*LevelStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}
	return &LevelStore{db: db, logger: logger}, nil
}

// List loads every record. Undecodable records are skipped with a warning,
// as FileStore does.
func (s *LevelStore) List(ctx context.Context) ([]*AppRecord, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(levelKeyPrefix)), nil)
	defer iter.Release()

	var records []*AppRecord
	for iter.Next() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		key := string(iter.Key())
		var rec AppRecord
		if err := sonic.Unmarshal(iter.Value(), &rec); err != nil || rec.ID == "" {
			s.logger.Warn("Skipping unreadable app record", zap.String("key", key), zap.Error(err))
			continue
		}
		if rec.ID != strings.TrimPrefix(key, levelKeyPrefix) {
			s.logger.Warn("App record id does not match key", zap.String("key", key), zap.String("app_id", rec.ID))
			continue
		}
		records = append(records, &rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// Put writes a record with a synced write
func (s *LevelStore) Put(ctx context.Context, rec *AppRecord) error {
	if err := utils.ValidateID(rec.ID, "app id", true); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return s.db.Put(levelKey(rec.ID), data, &opt.WriteOptions{Sync: true})
}

// Delete removes a record
func (s *LevelStore) Delete(ctx context.Context, appID string) error {
	if err := utils.ValidateID(appID, "app id", true); err != nil {
		return err
	}
	return s.db.Delete(levelKey(appID), &opt.WriteOptions{Sync: true})
}

// Close closes the database
func (s *LevelStore) Close() error {
	return s.db.Close()
}

func levelKey(appID string) []byte {
	return []byte(levelKeyPrefix + appID)
}
