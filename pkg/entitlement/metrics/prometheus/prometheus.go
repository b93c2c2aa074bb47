// Package prommetrics implements entitlement.Metrics with Prometheus.
package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

// Metrics implements entitlement.Metrics using Prometheus.
type Metrics struct {
	loadsTotal                 *prometheus.CounterVec
	periodResetsTotal          *prometheus.CounterVec
	admissionsTotal            *prometheus.CounterVec
	readingsTotal              *prometheus.CounterVec
	tierChangesTotal           *prometheus.CounterVec
	storeOpsDuration           *prometheus.HistogramVec
	storeOpsErrors             *prometheus.CounterVec
	circuitBreakerStateChanges *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		loadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_loads_total",
			Help:      "Total number of entitlement loads.",
		}, []string{"tier"}),

		periodResetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_period_resets_total",
			Help:      "Total number of usage periods reset on load.",
		}, []string{"tier"}),

		admissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reading_admissions_total",
			Help:      "Total number of reading admission decisions.",
		}, []string{"tier", "allowed"}),

		readingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_recorded_total",
			Help:      "Total number of completed readings recorded.",
		}, []string{"tier"}),

		tierChangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_changes_total",
			Help:      "Total number of tier changes.",
		}, []string{"from", "to", "source"}),

		storeOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Latency of profile store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storeOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operation_errors_total",
			Help:      "Total number of profile store errors.",
		}, []string{"operation"}),

		circuitBreakerStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of circuit breaker state changes.",
		}, []string{"state"}),
	}
}

func (m *Metrics) RecordLoad(tier entitlement.Tier, reset bool) {
	m.loadsTotal.WithLabelValues(string(tier)).Inc()
	if reset {
		m.periodResetsTotal.WithLabelValues(string(tier)).Inc()
	}
}

func (m *Metrics) RecordAdmission(tier entitlement.Tier, allowed bool) {
	m.admissionsTotal.WithLabelValues(string(tier), strconv.FormatBool(allowed)).Inc()
}

func (m *Metrics) RecordUsage(tier entitlement.Tier) {
	m.readingsTotal.WithLabelValues(string(tier)).Inc()
}

func (m *Metrics) RecordTierChange(from, to entitlement.Tier, source string) {
	m.tierChangesTotal.WithLabelValues(string(from), string(to), source).Inc()
}

func (m *Metrics) RecordStoreOperation(operation string, duration time.Duration, err error) {
	m.storeOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storeOpsErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) RecordCircuitBreakerStateChange(state string) {
	m.circuitBreakerStateChanges.WithLabelValues(state).Inc()
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
