package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for stack operations. A nil or
// disabled Metrics records nothing, so callers never guard their calls.
type Metrics struct {
	config MetricsConfig

	operations   *prometheus.CounterVec
	opErrors     *prometheus.CounterVec
	saveDuration prometheus.Histogram

	// bulkDeleteFallbacks counts bulk deletes silently downgraded to
	// per-instance removal on memory-only stores.
	bulkDeleteFallbacks prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of facade operations by type",
			},
			[]string{"op"},
		),
		opErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_errors_total",
				Help:      "Total number of failed facade operations by type",
			},
			[]string{"op"},
		),
		saveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "save_duration_seconds",
				Help:      "Duration of context saves in seconds",
				Buckets:   buckets,
			},
		),
		bulkDeleteFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_delete_fallbacks_total",
				Help:      "Bulk deletes that fell back to per-instance removal",
			},
		),
	}

	registry.MustRegister(m.operations, m.opErrors, m.saveDuration, m.bulkDeleteFallbacks)

	return m, nil
}

// RecordOperation counts one facade operation and, when err is non-nil,
// one failure.
func (m *Metrics) RecordOperation(op string, err error) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(op).Inc()
	if err != nil {
		m.opErrors.WithLabelValues(op).Inc()
	}
}

// ObserveSaveDuration records how long a context save took.
func (m *Metrics) ObserveSaveDuration(d time.Duration) {
	if m == nil || m.saveDuration == nil {
		return
	}
	m.saveDuration.Observe(d.Seconds())
}

// RecordBulkDeleteFallback counts one silent bulk-delete fallback.
func (m *Metrics) RecordBulkDeleteFallback() {
	if m == nil || m.bulkDeleteFallbacks == nil {
		return
	}
	m.bulkDeleteFallbacks.Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
