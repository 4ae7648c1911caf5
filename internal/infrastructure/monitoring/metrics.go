package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated *prometheus.CounterVec
	SessionExits    *prometheus.CounterVec

	// Bridge metrics
	OutputBytes   prometheus.Counter
	OutputBatches prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// tmux discovery metrics
	TmuxPolls        *prometheus.CounterVec
	TmuxSessions     prometheus.Gauge
	TmuxPollInterval *prometheus.GaugeVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON health endpoint
type Snapshot struct {
	ActiveSessions    int64 `json:"active_sessions"`
	ActiveConnections int64 `json:"active_connections"`
	TotalSessions     int64 `json:"total_sessions"`
}

// NewMetrics creates a metrics collector backed by its own registry, so
// several collectors can coexist in one process (tests, embedded servers).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trex_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trex_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "trex_sessions_active",
				Help: "Number of registered terminal sessions",
			},
		),
		SessionsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trex_sessions_created_total",
				Help: "Total number of sessions created",
			},
			[]string{"kind"},
		),
		SessionExits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trex_session_exits_total",
				Help: "Total number of sessions torn down, by reason",
			},
			[]string{"reason"},
		),

		OutputBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "trex_output_bytes_total",
				Help: "Bytes forwarded from pseudo-terminals to clients",
			},
		),
		OutputBatches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "trex_output_batches_total",
				Help: "Output messages emitted after batching",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "trex_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trex_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		TmuxPolls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trex_tmux_polls_total",
				Help: "tmux discovery queries, by query and outcome",
			},
			[]string{"query", "status"},
		),
		TmuxSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "trex_tmux_sessions",
				Help: "Number of tmux sessions seen by the last successful poll",
			},
		),
		TmuxPollInterval: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trex_tmux_poll_interval_seconds",
				Help: "Current tmux poll interval, including back-off",
			},
			[]string{"query"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "trex_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler returns the Prometheus exposition handler for this collector
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SessionCreated records a new session of the given kind
func (m *Metrics) SessionCreated(kind string) {
	m.SessionsCreated.WithLabelValues(kind).Inc()
	m.mu.Lock()
	m.snapshot.TotalSessions++
	m.mu.Unlock()
}

// SessionExited records a session teardown
func (m *Metrics) SessionExited(reason string) {
	m.SessionExits.WithLabelValues(reason).Inc()
}

// SetSessionsActive sets the number of registered sessions
func (m *Metrics) SetSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(count)
	m.mu.Unlock()
}

// RecordOutput records one flushed output batch
func (m *Metrics) RecordOutput(bytes int) {
	m.OutputBatches.Inc()
	m.OutputBytes.Add(float64(bytes))
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// RecordTmuxPoll records one discovery query outcome
func (m *Metrics) RecordTmuxPoll(query string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.TmuxPolls.WithLabelValues(query, status).Inc()
}

// SetTmuxSessions sets the number of known tmux sessions
func (m *Metrics) SetTmuxSessions(count int) {
	m.TmuxSessions.Set(float64(count))
}

// SetTmuxPollInterval publishes the effective poll interval for a query
func (m *Metrics) SetTmuxPollInterval(query string, interval time.Duration) {
	m.TmuxPollInterval.WithLabelValues(query).Set(interval.Seconds())
}

// Snapshot returns a copy of the tracked values
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// UptimeDuration returns time since the collector was created
func (m *Metrics) UptimeDuration() time.Duration {
	return time.Since(m.startTime)
}
