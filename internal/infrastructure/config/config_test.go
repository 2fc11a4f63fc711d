package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Storage config
	assert.Equal(t, "/var/lib/apps", cfg.Storage.DataDir)
	assert.Equal(t, BackendFile, cfg.Storage.RegistryBackend)

	// Update config
	assert.Equal(t, 4, cfg.Update.DownloadAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Update.BackoffInitial)
	assert.Equal(t, 24*time.Hour, cfg.Update.CheckInterval)
	assert.False(t, cfg.Update.AutoUpdate)

	require.NoError(t, cfg.Validate())
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                   "9000",
		"HOST":                   "127.0.0.1",
		"LOG_LEVEL":              "debug",
		"LOG_DEV":                "true",
		"RATE_LIMIT_RPS":         "500",
		"RATE_LIMIT_ENABLED":     "false",
		"APPS_DATA_DIR":          "/tmp/apps",
		"APPS_REGISTRY_BACKEND":  "leveldb",
		"APPS_DOWNLOAD_ATTEMPTS": "2",
		"APPS_BACKOFF_INITIAL":   "1s",
		"APPS_CHECK_INTERVAL":    "1h",
		"APPS_AUTO_UPDATE":       "true",
		"APPS_USER_AGENT":        "test-agent",
		"APPS_HTTP_RPS":          "2.5",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "/tmp/apps", cfg.Storage.DataDir)
	assert.Equal(t, BackendLevelDB, cfg.Storage.RegistryBackend)
	assert.Equal(t, 2, cfg.Update.DownloadAttempts)
	assert.Equal(t, time.Second, cfg.Update.BackoffInitial)
	assert.Equal(t, time.Hour, cfg.Update.CheckInterval)
	assert.True(t, cfg.Update.AutoUpdate)
	assert.Equal(t, "test-agent", cfg.HTTP.UserAgent)
	assert.Equal(t, 2.5, cfg.HTTP.RequestsPerSec)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown backend", "APPS_REGISTRY_BACKEND", "sqlite"},
		{"zero attempts", "APPS_DOWNLOAD_ATTEMPTS", "0"},
		{"bad duration", "APPS_FETCH_TIMEOUT", "soon"},
		{"zero concurrency", "APPS_CHECK_CONCURRENCY", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)

			cfg := LoadOrDefault()
			assert.Equal(t, Default(), cfg)
		})
	}
}

func TestServerConfig(t *testing.T) {
	tests := []struct {
		name     string
		port     string
		host     string
		wantPort string
		wantHost string
	}{
		{"default values", "", "", "8000", "0.0.0.0"},
		{"custom port", "9000", "", "9000", "0.0.0.0"},
		{"custom host", "", "localhost", "8000", "localhost"},
		{"custom port and host", "3000", "127.0.0.1", "3000", "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.port != "" {
				t.Setenv("PORT", tt.port)
			}
			if tt.host != "" {
				t.Setenv("HOST", tt.host)
			}

			cfg := LoadOrDefault()
			assert.Equal(t, tt.wantPort, cfg.Server.Port)
			assert.Equal(t, tt.wantHost, cfg.Server.Host)
		})
	}
}
