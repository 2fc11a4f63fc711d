package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(t *testing.T, appID string) *AppRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return &AppRecord{
		ID:            appID,
		Manifest:      mustManifest(t, `{"name":"`+appID+`","b2g_features":{"developer":{"name":"Acme"}}}`),
		State:         StateInstalled,
		Status:        StatusEnabled,
		ContentPath:   "/data/installed/" + appID + "/tx",
		Version:       "1.0.0",
		InstalledSize: 42,
		FileCount:     3,
		Removable:     true,
		InstalledAt:   now,
		UpdatedAt:     now,
	}
}

func testStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, sampleRecord(t, "clock")))
	require.NoError(t, store.Put(ctx, sampleRecord(t, "notes")))

	updated := sampleRecord(t, "clock")
	updated.ContentPath = "/data/installed/clock/tx2"
	require.NoError(t, store.Put(ctx, updated))

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byID := map[string]*AppRecord{}
	for _, rec := range records {
		byID[rec.ID] = rec
	}
	assert.Equal(t, "/data/installed/clock/tx2", byID["clock"].ContentPath)
	assert.Equal(t, "clock", byID["clock"].Manifest.Name())
	features, ok := byID["clock"].Manifest.B2GFeatures()
	require.True(t, ok)
	_, hasDev := features.Developer()
	assert.True(t, hasDev)
	assert.Equal(t, int64(42), byID["notes"].InstalledSize)

	require.NoError(t, store.Delete(ctx, "notes"))
	records, err = store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	assert.Error(t, store.Put(ctx, &AppRecord{ID: "../escape"}))
	assert.Error(t, store.Delete(ctx, "../escape"))
	require.NoError(t, store.Close())
}

func TestFileStore(t *testing.T) {
	testStoreContract(t, NewFileStore(t.TempDir(), nil))
}

func TestLevelStore(t *testing.T) {
	store, err := OpenLevelStore(filepath.Join(t.TempDir(), "registry.db"), nil)
	require.NoError(t, err)
	testStoreContract(t, store)
}

func TestLevelStoreSkipsCorruptRecords(t *testing.T) {
	store, err := OpenLevelStore(filepath.Join(t.TempDir(), "registry.db"), nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(context.Background(), sampleRecord(t, "clock")))
	require.NoError(t, store.db.Put(levelKey("broken"), []byte("{not json"), nil))

	records, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "clock", records[0].ID)
}

func TestFileStorePutSurvivesDirSyncFailure(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, nil)
	store.dirSync = func(string) error { return errors.New("sync failed") }

	require.NoError(t, store.Put(context.Background(), sampleRecord(t, "clock")))
	records, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, store.Delete(context.Background(), "clock"))
	assert.NoFileExists(t, filepath.Join(dir, "clock.json"))
}

func TestFileStoreSkipsCorruptRecords(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, nil)
	require.NoError(t, store.Put(context.Background(), sampleRecord(t, "clock")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0644))

	records, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "clock", records[0].ID)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, nil)
	require.NoError(t, store.Put(context.Background(), sampleRecord(t, "clock")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "clock.json", entries[0].Name())
}

func TestRegistryReopenFromFileStore(t *testing.T) {
	dir := t.TempDir()
	reg := openRegistry(t, NewFileStore(dir, nil))
	install(t, reg, "clock", "/c1")
	require.NoError(t, reg.Close())

	reopened := openRegistry(t, NewFileStore(dir, nil))
	got, ok := reopened.Get("clock")
	require.True(t, ok)
	assert.Equal(t, "/c1", got.ContentPath)
	assert.True(t, got.Removable)
}
