/*
Package monitoring provides Prometheus metrics for the apps service.

# Overview

Metrics are registered against an injected prometheus.Registerer so that
tests and embedded uses can build isolated instances. A nil *Metrics is valid
and records nothing.

# Metrics

  - apps_transitions_total{op,result}: finished transitions by outcome kind
  - apps_transition_duration_seconds{op}: wall time of transitions
  - apps_download_attempts_total{result}: package download attempts
  - apps_installed: number of registered apps
  - apps_update_checks_total{result}: scheduled and manual update checks
  - apps_http_requests_total{method,path,status}: API requests
  - apps_ws_connections: open event stream connections

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
