// Package middleware provides the gin middleware of the apps daemon API.
//
// Middleware stack:
//   - RequestID: propagates or assigns X-Request-ID
//   - Logger: one structured zap line per request
//   - Recovery: panic recovery with a JSON 500
//   - CORS: cross-origin resource sharing
//   - RateLimit: per-IP token bucket with idle client eviction
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.Logger(logger))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
