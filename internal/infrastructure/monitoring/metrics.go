package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Transition metrics
	Transitions        *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	DownloadAttempts   *prometheus.CounterVec
	UpdateChecks       *prometheus.CounterVec
	InstalledApps      prometheus.Gauge

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	startTime time.Time
	mu        sync.RWMutex
	snapshot  Snapshot
}

// Snapshot holds current values for the JSON health endpoint
type Snapshot struct {
	TotalRequests      int64   `json:"total_requests"`
	TotalErrors        int64   `json:"total_errors"`
	TransitionsOK      int64   `json:"transitions_ok"`
	TransitionsFailed  int64   `json:"transitions_failed"`
	InstalledApps      int64   `json:"installed_apps"`
	ActiveConnections  int64   `json:"active_connections"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
	AvgRequestDuration float64 `json:"avg_request_duration_seconds"`

	requestSeconds float64
}

// NewMetrics registers all collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		startTime: time.Now(),

		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apps_transitions_total",
				Help: "Finished app transitions by operation and result",
			},
			[]string{"op", "result"},
		),
		TransitionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apps_transition_duration_seconds",
				Help:    "App transition duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"op"},
		),
		DownloadAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apps_download_attempts_total",
				Help: "Package download attempts by result",
			},
			[]string{"result"},
		),
		UpdateChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apps_update_checks_total",
				Help: "Update checks by result",
			},
			[]string{"result"},
		),
		InstalledApps: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "apps_installed",
				Help: "Number of installed apps",
			},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apps_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apps_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "apps_ws_connections",
				Help: "Open event stream connections",
			},
		),
	}
}

// Transition results other than error kinds
const (
	ResultSuccess   = "success"
	ResultUpToDate  = "up_to_date"
	ResultUnchanged = "unchanged"
)

// RecordTransition records a finished transition; result is one of the
// Result constants or an error kind
func (m *Metrics) RecordTransition(op, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(op, result).Inc()
	m.TransitionDuration.WithLabelValues(op).Observe(duration.Seconds())

	m.mu.Lock()
	switch result {
	case ResultSuccess, ResultUpToDate, ResultUnchanged:
		m.snapshot.TransitionsOK++
	default:
		m.snapshot.TransitionsFailed++
	}
	m.mu.Unlock()
}

// RecordDownloadAttempt records one package download attempt
func (m *Metrics) RecordDownloadAttempt(result string) {
	if m == nil {
		return
	}
	m.DownloadAttempts.WithLabelValues(result).Inc()
}

// RecordUpdateCheck records the result of an update check
func (m *Metrics) RecordUpdateCheck(result string) {
	if m == nil {
		return
	}
	m.UpdateChecks.WithLabelValues(result).Inc()
}

// SetInstalledApps sets the number of registered apps
func (m *Metrics) SetInstalledApps(count int) {
	if m == nil {
		return
	}
	m.InstalledApps.Set(float64(count))
	m.mu.Lock()
	m.snapshot.InstalledApps = int64(count)
	m.mu.Unlock()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.requestSeconds += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns current values for JSON reporting
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	if s.TotalRequests > 0 {
		s.AvgRequestDuration = s.requestSeconds / float64(s.TotalRequests)
	}
	return s
}
