// Package config provides 12-factor configuration management for the apps service.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Storage: Data directory and registry backend
//   - Update: Transition timeouts, retry policy and the update scheduler
//   - HTTP: Outbound transport used for manifests and packages
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Apps data in %s\n", cfg.Storage.DataDir)
//
// Environment Variables:
//   - PORT, HOST
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - APPS_DATA_DIR, APPS_REGISTRY_BACKEND
//   - APPS_DOWNLOAD_ATTEMPTS, APPS_BACKOFF_INITIAL, APPS_BACKOFF_MAX
//   - APPS_FETCH_TIMEOUT, APPS_DOWNLOAD_TIMEOUT, APPS_VERIFY_TIMEOUT
//   - APPS_COMMIT_ATTEMPTS, APPS_CHECK_INTERVAL, APPS_CHECK_ENABLED
//   - APPS_AUTO_UPDATE, APPS_CHECK_CONCURRENCY
//   - APPS_USER_AGENT, APPS_HTTP_RPS
package config
