package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestInstallPrintsVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/apps", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"record":{"id":"clock","version":"1.0.0","manifest":{"name":"Clock"}},"transition_id":"01HX"}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "install", "https://apps.example.com/clock/update.webmanifest")
	require.NoError(t, err)
	assert.Contains(t, out, "Installed clock 1.0.0")
}

func TestErrorsCarryKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"transition in progress","kind":"conflict","app_id":"clock"}`))
	}))
	defer srv.Close()

	_, err := runCLI(t, srv, "update", "clock")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "conflict", apiErr.Body.Kind)
}

func TestListPrintsTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"apps":[{"id":"clock","version":"2.0.0","state":"installed","status":"enabled","manifest":{"name":"Clock"}}],"stats":{}}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "clock")
	assert.Contains(t, out, "Clock")
	assert.Contains(t, out, "2.0.0")
}

func TestDisableSendsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/apps/clock/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"clock","status":"disabled","manifest":{"name":"Clock"}}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "disable", "clock")
	require.NoError(t, err)
	assert.Contains(t, out, "clock is disabled")
}
