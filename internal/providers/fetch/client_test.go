package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/manifest"
	"github.com/GriffinCanCode/AgentOS/apps/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/apps/internal/infrastructure/tracing"
)

const updateDoc = `{"name":"Clock","version":"1.0.0","package_path":"https://example.com/clock.zip"}`

func testClient() *Client {
	cfg := DefaultConfig()
	cfg.ManifestRetries = 0
	return New(cfg, nil)
}

func TestFetchManifestHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AgentOS-Apps/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte(updateDoc))
	}))
	defer srv.Close()

	update, err := testClient().FetchManifest(context.Background(), srv.URL+"/update.webmanifest")
	require.NoError(t, err)
	assert.Equal(t, "Clock", update.Name())
	assert.Equal(t, "1.0.0", update.Version())
}

func TestRequestsCarryTraceContext(t *testing.T) {
	var traces []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traces = append(traces, r.Header.Get(tracing.TraceHeader))
		w.Write([]byte(updateDoc))
	}))
	defer srv.Close()

	tracer := tracing.New("apps", nil)
	defer tracer.Close()
	cfg := DefaultConfig()
	cfg.ManifestRetries = 0
	cfg.Tracer = tracer
	client := New(cfg, nil)

	span, ctx := tracer.StartSpan(context.Background(), "update")
	defer span.End(nil)

	_, err := client.FetchManifest(ctx, srv.URL+"/update.webmanifest")
	require.NoError(t, err)
	_, err = client.Download(ctx, srv.URL+"/clock.zip", filepath.Join(t.TempDir(), "clock.pkg"), 0)
	require.NoError(t, err)

	require.Len(t, traces, 2)
	for _, got := range traces {
		assert.Equal(t, string(span.TraceID), got)
	}
}

func TestFetchManifestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.webmanifest")
	require.NoError(t, os.WriteFile(path, []byte(updateDoc), 0644))

	update, err := testClient().FetchManifest(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "Clock", update.Name())
}

func TestFetchManifestErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/broken":
			w.Write([]byte(`{"name":`))
		}
	}))
	defer srv.Close()

	c := testClient()

	_, err := c.FetchManifest(context.Background(), srv.URL+"/missing")
	var status *StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusNotFound, status.StatusCode)
	assert.True(t, IsPermanent(err))

	_, err = c.FetchManifest(context.Background(), srv.URL+"/broken")
	var perr *manifest.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, srv.URL+"/broken", perr.Source)

	_, err = c.FetchManifest(context.Background(), "/relative/path")
	assert.True(t, IsPermanent(err))

	_, err = c.FetchManifest(context.Background(), "ftp://example.com/x")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestDownloadHTTP(t *testing.T) {
	payload := strings.Repeat("z", 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "downloads", "tx.pkg")
	dl, err := testClient().Download(context.Background(), srv.URL+"/clock.zip", dest, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), dl.Size)
	assert.Equal(t, "application/zip", dl.ContentType)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
	assert.NoFileExists(t, dest+".part")
}

func TestDownloadEnforcesLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("z", 100)))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "tx.pkg")
	_, err := testClient().Download(context.Background(), srv.URL, dest, 10)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.True(t, IsPermanent(err))
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".part")
}

func TestDownloadServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "tx.pkg")
	_, err := testClient().Download(context.Background(), srv.URL, dest, 0)
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
	assert.NoFileExists(t, dest)
}

func TestDownloadFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "clock.zip")
	require.NoError(t, os.WriteFile(src, []byte("PK"), 0644))

	dest := filepath.Join(t.TempDir(), "tx.pkg")
	dl, err := testClient().Download(context.Background(), "file://"+src, dest, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), dl.Size)

	_, err = testClient().Download(context.Background(), "file:///does/not/exist.zip", dest, 0)
	assert.True(t, IsPermanent(err))
}

func TestBreakerOpensForFailingHost(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient()
	dest := filepath.Join(t.TempDir(), "tx.pkg")
	for i := 0; i < 6; i++ {
		_, _ = c.Download(context.Background(), srv.URL, dest, 0)
	}

	_, err := c.Download(context.Background(), srv.URL, dest, 0)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(5), hits.Load())
}

func TestStatusErrorPermanence(t *testing.T) {
	tests := []struct {
		code      int
		permanent bool
	}{
		{http.StatusNotFound, true},
		{http.StatusForbidden, true},
		{http.StatusTooManyRequests, false},
		{http.StatusRequestTimeout, false},
		{http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		err := &StatusError{URL: "https://example.com", StatusCode: tt.code}
		assert.Equal(t, tt.permanent, err.Permanent(), "status %d", tt.code)
	}
}
