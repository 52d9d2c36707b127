package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes gateway metrics.
type Metrics interface {
	ObserveRequest(model, outcome string, latency time.Duration)
	IncAuditWriteFailure()
	HTTPHandler() http.Handler
}

// PrometheusMetrics implements Metrics with a dedicated registry so tests can
// run several instances side by side.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	auditWriteFailures prometheus.Counter
}

// NewPrometheusMetrics creates and registers the gateway metrics.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Chat requests by model and admission outcome.",
		}, []string{"model", "outcome"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "End-to-end chat request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
		auditWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_audit_write_failures_total",
			Help: "Settlements that returned a response but failed to commit their audit records.",
		}),
	}

	registry.MustRegister(m.requestsTotal, m.requestLatency, m.auditWriteFailures)
	return m
}

// ObserveRequest records one finished chat request
func (m *PrometheusMetrics) ObserveRequest(model, outcome string, latency time.Duration) {
	m.requestsTotal.WithLabelValues(model, outcome).Inc()
	m.requestLatency.WithLabelValues(model).Observe(latency.Seconds())
}

// IncAuditWriteFailure counts a settlement whose audit trail was lost
func (m *PrometheusMetrics) IncAuditWriteFailure() {
	m.auditWriteFailures.Inc()
}

// HTTPHandler returns the scrape endpoint handler
func (m *PrometheusMetrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (m *NoopMetrics) ObserveRequest(_, _ string, _ time.Duration) {}

func (m *NoopMetrics) IncAuditWriteFailure() {}

func (m *NoopMetrics) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}
