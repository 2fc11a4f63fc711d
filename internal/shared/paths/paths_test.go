package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout(t *testing.T) {
	l := New("/data/apps/")

	assert.Equal(t, "/data/apps/registry", l.Registry())
	assert.Equal(t, "/data/apps/downloads/tx_1.pkg", l.DownloadFile("tx_1"))
	assert.Equal(t, "/data/apps/staging/clock.tx_1", l.StagingDir("clock", "tx_1"))
	assert.Equal(t, "/data/apps/installed/clock/tx_1", l.ContentDir("clock", "tx_1"))
}

func TestEnsure(t *testing.T) {
	l := New(t.TempDir())
	require.NoError(t, l.Ensure())
	for _, dir := range l.StandardDirectories() {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestContains(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"/a", "/a/b", true},
		{"/a", "/a/b/../c", true},
		{"/a", "/a", false},
		{"/a", "/a/../b", false},
		{"/a", "/ab", false},
		{"/a", filepath.Join("/a", "..", "a", "x"), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Contains(tt.dir, tt.path), "%s in %s", tt.path, tt.dir)
	}
}

func TestValidateAppID(t *testing.T) {
	assert.NoError(t, ValidateAppID("clock"))
	assert.Error(t, ValidateAppID(""))
	assert.Error(t, ValidateAppID("/etc"))
	assert.Error(t, ValidateAppID("a/b"))
	assert.Error(t, ValidateAppID(".."))
}
