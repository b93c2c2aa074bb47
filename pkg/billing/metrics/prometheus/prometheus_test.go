package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/mihaimyh/arcana/pkg/billing"
)

var _ billing.Metrics = (*Metrics)(nil)

func TestMetrics_Webhook(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordWebhookEvent("stripe", "checkout.session.completed", "applied")
	m.RecordWebhookEvent("stripe", "invoice.paid", "ignored")
	m.RecordWebhookError("stripe", "auth_failed")
	m.RecordWebhookProcessingDuration("stripe", "checkout.session.completed", 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("stripe", "invoice.paid", "ignored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("stripe", "auth_failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.processing))
}

func TestMetrics_TierAndAPI(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordTierApplied("stripe", "premium")
	m.RecordTierApplied("stripe", "premium")
	m.RecordAPICall("stripe", "/checkout/sessions", "success")
	m.RecordAPICallDuration("stripe", "/checkout/sessions", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tiers.WithLabelValues("stripe", "premium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("stripe", "/checkout/sessions", "success")))
}
