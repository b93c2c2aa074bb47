package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const subsystem = "billing"

// Metrics implements billing.Metrics using Prometheus. Every series carries a
// provider label so several processors can share a registry.
type Metrics struct {
	events     *prometheus.CounterVec
	processing *prometheus.HistogramVec
	rejected   *prometheus.CounterVec
	tiers      *prometheus.CounterVec
	calls      *prometheus.CounterVec
	callTime   *prometheus.HistogramVec
}

// NewMetrics registers the billing series on reg under namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		}, append([]string{"provider"}, labels...))
	}
	histogram := func(name, help string, labels ...string) *prometheus.HistogramVec {
		return factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
			Buckets: prometheus.DefBuckets,
		}, append([]string{"provider"}, labels...))
	}

	return &Metrics{
		events: counter("webhook_events_total",
			"Verified payment events by reconciler outcome.", "event_type", "outcome"),
		processing: histogram("webhook_processing_duration_seconds",
			"Time spent reconciling a verified payment event.", "event_type"),
		rejected: counter("webhook_errors_total",
			"Webhook requests rejected before reconciliation.", "error_type"),
		tiers: counter("tiers_applied_total",
			"Tiers written to entitlements by payment events.", "tier"),
		calls: counter("api_calls_total",
			"Outbound payment processor calls by status.", "endpoint", "status"),
		callTime: histogram("api_call_duration_seconds",
			"Latency of outbound payment processor calls.", "endpoint"),
	}
}

func (m *Metrics) RecordWebhookEvent(provider, eventType, outcome string) {
	m.events.WithLabelValues(provider, eventType, outcome).Inc()
}

func (m *Metrics) RecordWebhookProcessingDuration(provider, eventType string, d time.Duration) {
	m.processing.WithLabelValues(provider, eventType).Observe(d.Seconds())
}

func (m *Metrics) RecordWebhookError(provider, errorType string) {
	m.rejected.WithLabelValues(provider, errorType).Inc()
}

func (m *Metrics) RecordTierApplied(provider, tier string) {
	m.tiers.WithLabelValues(provider, tier).Inc()
}

func (m *Metrics) RecordAPICall(provider, endpoint, status string) {
	m.calls.WithLabelValues(provider, endpoint, status).Inc()
}

func (m *Metrics) RecordAPICallDuration(provider, endpoint string, d time.Duration) {
	m.callTime.WithLabelValues(provider, endpoint).Observe(d.Seconds())
}

// DefaultMetrics registers on the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
