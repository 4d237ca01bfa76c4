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

// Evaluation outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFault    = "fault"
	OutcomeCanceled = "canceled"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Execution context metrics
	ContextsActive     prometheus.Gauge
	ContextsTotal      *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	SlotWait           prometheus.Histogram
	FaultsTotal        prometheus.Counter
	MessagesDropped    prometheus.Counter
	BreakerState       prometheus.Gauge

	// Request metrics
	HostCalls        *prometheus.CounterVec
	HostCallDuration *prometheus.HistogramVec
	ContextCalls     *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the JSON API
type Snapshot struct {
	TotalRequests  int64   `json:"total_requests"`
	TotalErrors    int64   `json:"total_errors"`
	ActiveContexts int64   `json:"active_contexts"`
	TotalContexts  int64   `json:"total_contexts"`
	TotalFaults    int64   `json:"total_faults"`
	AvgLatencyMS   float64 `json:"avg_latency_ms"`
	UptimeSeconds  float64 `json:"uptime_seconds"`

	totalDuration float64
}

// NewMetrics creates a metrics collector on its own registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.NewRegistry())
}

// NewMetricsWith registers every metric on reg
func NewMetricsWith(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scripthost_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scripthost_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scripthost_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		ContextsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scripthost_contexts_active",
			Help: "Number of live execution contexts",
		}),
		ContextsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_contexts_total",
				Help: "Execution contexts by evaluation outcome",
			},
			[]string{"outcome"},
		),
		EvaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scripthost_evaluation_duration_seconds",
			Help:    "Time from spawn to settled evaluation",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30, 60},
		}),
		SlotWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scripthost_slot_wait_seconds",
			Help:    "Time spent waiting for a context slot",
			Buckets: []float64{.0001, .001, .01, .1, .5, 1, 5},
		}),
		FaultsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "scripthost_faults_total",
			Help: "Fault messages received from execution contexts",
		}),
		MessagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "scripthost_messages_dropped_total",
			Help: "Inbound messages dropped by full pre-ready buffers",
		}),
		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scripthost_breaker_state",
			Help: "Spawn breaker state (0 closed, 1 half-open, 2 open)",
		}),

		HostCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_host_calls_total",
				Help: "Requests from execution contexts serviced by the host",
			},
			[]string{"method", "status"},
		),
		HostCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scripthost_host_call_duration_seconds",
				Help:    "Host method duration in seconds",
				Buckets: []float64{.0001, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"method"},
		),
		ContextCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_context_calls_total",
				Help: "Requests sent to execution contexts",
			},
			[]string{"status"},
		),

		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scripthost_ws_connections",
			Help: "Number of active WebSocket connections",
		}),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "scripthost_uptime_seconds",
		Help: "Uptime in seconds",
	}, func() float64 { return time.Since(m.startTime).Seconds() })

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// ContextStarted records a spawned execution context
func (m *Metrics) ContextStarted() {
	m.ContextsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveContexts++
	m.snapshot.TotalContexts++
	m.mu.Unlock()
}

// ContextClosed records a released execution context
func (m *Metrics) ContextClosed() {
	m.ContextsActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveContexts--
	m.mu.Unlock()
}

// RecordEvaluation records a settled evaluation
func (m *Metrics) RecordEvaluation(outcome string, duration time.Duration) {
	m.ContextsTotal.WithLabelValues(outcome).Inc()
	m.EvaluationDuration.Observe(duration.Seconds())
}

// RecordFault records a fault message
func (m *Metrics) RecordFault() {
	m.FaultsTotal.Inc()
	m.mu.Lock()
	m.snapshot.TotalFaults++
	m.mu.Unlock()
}

// RecordDropped records messages lost to a full pre-ready buffer
func (m *Metrics) RecordDropped(n int) {
	if n > 0 {
		m.MessagesDropped.Add(float64(n))
	}
}

// RecordHostCall records a host method invocation
func (m *Metrics) RecordHostCall(method, status string, duration time.Duration) {
	m.HostCalls.WithLabelValues(method, status).Inc()
	m.HostCallDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordContextCall records a request sent to a context
func (m *Metrics) RecordContextCall(status string) {
	m.ContextCalls.WithLabelValues(status).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// Snapshot returns current values for the JSON API
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	if s.TotalRequests > 0 {
		s.AvgLatencyMS = s.totalDuration / float64(s.TotalRequests) * 1000
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
