// Package metric provides Prometheus metrics registration and the metrics
// HTTP server for botapi.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics (not request-specific state)
type Metrics struct {
	// Façade metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	StreamClients   prometheus.Gauge

	// Bot engine metrics
	BotRepliesTotal *prometheus.CounterVec
	BotLatency      *prometheus.HistogramVec

	// Store metrics
	StoreOpsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "botapi",
				Subsystem: "requests",
				Name:      "total",
				Help:      "Total number of API requests",
			},
			[]string{"facade", "operation", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "botapi",
				Subsystem: "requests",
				Name:      "duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"facade", "operation"},
		),

		StreamClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "botapi",
				Subsystem: "stream",
				Name:      "clients",
				Help:      "Currently connected message stream clients",
			},
		),

		BotRepliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "botapi",
				Subsystem: "bot",
				Name:      "replies_total",
				Help:      "Total bot engine invocations by outcome (ok, silent, error)",
			},
			[]string{"engine", "outcome"},
		),

		BotLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "botapi",
				Subsystem: "bot",
				Name:      "latency_seconds",
				Help:      "Bot engine response latency in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"engine"},
		),

		StoreOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "botapi",
				Subsystem: "store",
				Name:      "ops_total",
				Help:      "Total store operations by backend and status",
			},
			[]string{"backend", "operation", "status"},
		),
	}
}

// ObserveRequest records one API request with its duration
func (m *Metrics) ObserveRequest(facade, operation, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(facade, operation, status).Inc()
	m.RequestDuration.WithLabelValues(facade, operation).Observe(duration.Seconds())
}

// ObserveBotReply records one bot engine invocation
func (m *Metrics) ObserveBotReply(engine, outcome string, duration time.Duration) {
	m.BotRepliesTotal.WithLabelValues(engine, outcome).Inc()
	m.BotLatency.WithLabelValues(engine).Observe(duration.Seconds())
}

// ObserveStoreOp records one store call by backend and outcome
func (m *Metrics) ObserveStoreOp(backend, operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreOpsTotal.WithLabelValues(backend, operation, status).Inc()
}

// collectors returns every metric for registration
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RequestsTotal,
		m.RequestDuration,
		m.StreamClients,
		m.BotRepliesTotal,
		m.BotLatency,
		m.StoreOpsTotal,
	}
}
