package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zip"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/manifest"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/planner"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/apps/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/apps/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/paths"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.RegistryBackend = backend
	cfg.Update.CheckEnabled = false
	cfg.RateLimit.Enabled = false
	return cfg
}

func newServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(context.Background(), cfg, Options{Logger: logging.NewNop(), Version: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// publishClock writes a package and its update manifest under dir and
// returns the file url of the manifest
func publishClock(t *testing.T, dir, version string) string {
	t.Helper()
	archive := filepath.Join(dir, "clock-"+version+".zip")
	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range map[string]string{
		manifest.FileName: `{"name":"Clock","start_url":"/index.html"}`,
		"index.html":      "<html></html>",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(archive)
	require.NoError(t, err)
	doc := fmt.Sprintf(`{"name":"Clock","version":%q,"package_path":%q,"package_hash":%q}`,
		version, "file://"+archive, digest.FromBytes(data).String())
	updatePath := filepath.Join(dir, "clock.webmanifest")
	require.NoError(t, os.WriteFile(updatePath, []byte(doc), 0644))
	return "file://" + updatePath
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		data, err := sonic.Marshal(body)
		require.NoError(t, err)
		buf.Write(data)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServerLifecycleOverHTTP(t *testing.T) {
	for _, backend := range []string{config.BackendFile, config.BackendLevelDB} {
		t.Run(backend, func(t *testing.T) {
			s := newServer(t, testConfig(t, backend))
			h := s.Handler()
			updateURL := publishClock(t, t.TempDir(), "1.0.0")

			w := do(t, h, http.MethodPost, "/apps", map[string]string{"update_url": updateURL})
			require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

			var res planner.Result
			require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &res))
			assert.Equal(t, "clock", res.Record.ID)
			assert.Equal(t, "1.0.0", res.Record.Version)

			w = do(t, h, http.MethodGet, "/apps/clock", nil)
			assert.Equal(t, http.StatusOK, w.Code)

			w = do(t, h, http.MethodPost, "/apps/clock/update", nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &res))
			assert.True(t, res.UpToDate)

			w = do(t, h, http.MethodPost, "/apps", map[string]string{"update_url": updateURL})
			assert.Equal(t, http.StatusConflict, w.Code)

			w = do(t, h, http.MethodDelete, "/apps/clock", nil)
			assert.Equal(t, http.StatusOK, w.Code)
			w = do(t, h, http.MethodGet, "/apps/clock", nil)
			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestServerExposesMetrics(t *testing.T) {
	s := newServer(t, testConfig(t, config.BackendFile))
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "apps_http_requests_total")

	w = do(t, h, http.MethodPost, "/updates/check", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, h, http.MethodGet, "/log/level", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "level")
}

func TestBootRemovesInterruptedTransitions(t *testing.T) {
	cfg := testConfig(t, config.BackendFile)
	layout := paths.New(cfg.Storage.DataDir)
	require.NoError(t, layout.Ensure())

	staging := layout.StagingDir("clock", "01HX")
	require.NoError(t, os.MkdirAll(staging, 0755))
	download := layout.DownloadFile("01HX")
	require.NoError(t, os.WriteFile(download, []byte("partial"), 0644))
	content := layout.ContentDir("clock", "01HX")
	require.NoError(t, os.MkdirAll(content, 0755))

	newServer(t, cfg)

	assert.NoDirExists(t, staging)
	assert.NoFileExists(t, download)
	assert.NoDirExists(t, content)
}

func TestBootDropsRecordsWithoutContent(t *testing.T) {
	cfg := testConfig(t, config.BackendFile)
	layout := paths.New(cfg.Storage.DataDir)
	require.NoError(t, layout.Ensure())

	store := registry.NewFileStore(layout.Registry(), nil)
	kept := layout.ContentDir("notes", "01HY")
	require.NoError(t, os.MkdirAll(kept, 0755))
	for appID, content := range map[string]string{
		"clock": layout.ContentDir("clock", "01HX"),
		"notes": kept,
	} {
		m, err := manifest.ParseManifest([]byte(`{"name":"` + appID + `"}`))
		require.NoError(t, err)
		require.NoError(t, store.Put(context.Background(), &registry.AppRecord{
			ID:          appID,
			Manifest:    m,
			State:       registry.StateInstalled,
			Status:      registry.StatusEnabled,
			ContentPath: content,
			Version:     "1.0.0",
		}))
	}

	h := newServer(t, cfg).Handler()

	w := do(t, h, http.MethodGet, "/apps/clock", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, h, http.MethodGet, "/apps/notes", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.DirExists(t, kept)
	assert.NoFileExists(t, filepath.Join(layout.Registry(), "clock.json"))
}

func TestUnknownBackend(t *testing.T) {
	cfg := testConfig(t, "etcd")
	_, err := New(context.Background(), cfg, Options{Logger: logging.NewNop()})
	assert.Error(t, err)
}

func TestServerSeedsPreloadedApps(t *testing.T) {
	cfg := testConfig(t, config.BackendFile)
	cfg.Storage.SystemDir = t.TempDir()
	appDir := filepath.Join(cfg.Storage.SystemDir, "dialer")
	require.NoError(t, os.MkdirAll(appDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, manifest.FileName), []byte(`{"name":"Dialer"}`), 0644))

	s := newServer(t, cfg)
	w := do(t, s.Handler(), http.MethodGet, "/apps/dialer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"preloaded":true`)

	w = do(t, s.Handler(), http.MethodDelete, "/apps/dialer", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
