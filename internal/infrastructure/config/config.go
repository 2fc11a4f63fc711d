package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Registry backends
const (
	BackendFile    = "file"
	BackendLevelDB = "leveldb"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	Update    UpdateConfig
	HTTP      HTTPConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// StorageConfig holds on-disk locations.
type StorageConfig struct {
	DataDir         string `envconfig:"APPS_DATA_DIR" default:"/var/lib/apps"`
	RegistryBackend string `envconfig:"APPS_REGISTRY_BACKEND" default:"file"`

	// SystemDir holds preloaded apps; empty disables seeding
	SystemDir            string `envconfig:"APPS_SYSTEM_DIR"`
	AllowRemovePreloaded bool   `envconfig:"APPS_ALLOW_REMOVE_PRELOADED" default:"false"`
}

// UpdateConfig holds transition and scheduler tuning.
type UpdateConfig struct {
	DownloadAttempts int           `envconfig:"APPS_DOWNLOAD_ATTEMPTS" default:"4"`
	BackoffInitial   time.Duration `envconfig:"APPS_BACKOFF_INITIAL" default:"500ms"`
	BackoffMax       time.Duration `envconfig:"APPS_BACKOFF_MAX" default:"10s"`
	FetchTimeout     time.Duration `envconfig:"APPS_FETCH_TIMEOUT" default:"30s"`
	DownloadTimeout  time.Duration `envconfig:"APPS_DOWNLOAD_TIMEOUT" default:"5m"`
	VerifyTimeout    time.Duration `envconfig:"APPS_VERIFY_TIMEOUT" default:"1m"`
	CommitAttempts   int           `envconfig:"APPS_COMMIT_ATTEMPTS" default:"5"`
	CheckInterval    time.Duration `envconfig:"APPS_CHECK_INTERVAL" default:"24h"`
	CheckEnabled     bool          `envconfig:"APPS_CHECK_ENABLED" default:"true"`
	AutoUpdate       bool          `envconfig:"APPS_AUTO_UPDATE" default:"false"`
	CheckConcurrency int           `envconfig:"APPS_CHECK_CONCURRENCY" default:"4"`
}

// HTTPConfig holds outbound transport configuration.
type HTTPConfig struct {
	UserAgent      string  `envconfig:"APPS_USER_AGENT" default:"AgentOS-Apps/1.0"`
	RequestsPerSec float64 `envconfig:"APPS_HTTP_RPS" default:"0"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.RegistryBackend {
	case BackendFile, BackendLevelDB:
	default:
		return fmt.Errorf("unknown registry backend %q", c.Storage.RegistryBackend)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	if c.Update.DownloadAttempts < 1 {
		return fmt.Errorf("download attempts must be at least 1")
	}
	if c.Update.CommitAttempts < 1 {
		return fmt.Errorf("commit attempts must be at least 1")
	}
	if c.Update.CheckConcurrency < 1 {
		return fmt.Errorf("check concurrency must be at least 1")
	}
	if c.Update.CheckEnabled && c.Update.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Storage: StorageConfig{
			DataDir:         "/var/lib/apps",
			RegistryBackend: BackendFile,
		},
		Update: UpdateConfig{
			DownloadAttempts: 4,
			BackoffInitial:   500 * time.Millisecond,
			BackoffMax:       10 * time.Second,
			FetchTimeout:     30 * time.Second,
			DownloadTimeout:  5 * time.Minute,
			VerifyTimeout:    time.Minute,
			CommitAttempts:   5,
			CheckInterval:    24 * time.Hour,
			CheckEnabled:     true,
			AutoUpdate:       false,
			CheckConcurrency: 4,
		},
		HTTP: HTTPConfig{
			UserAgent: "AgentOS-Apps/1.0",
		},
	}
}
