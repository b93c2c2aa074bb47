package billing

import "time"

// Metrics defines the interface for tracking billing provider operations.
type Metrics interface {
	// RecordWebhookEvent records a webhook event and how it was handled.
	// outcome: "applied", "ignored", "skipped", "stale" or "error"
	RecordWebhookEvent(provider, eventType, outcome string)

	// RecordWebhookProcessingDuration records how long it took to process a webhook.
	RecordWebhookProcessingDuration(provider, eventType string, duration time.Duration)

	// RecordWebhookError records a webhook rejected before processing.
	// errorType: e.g. "auth_failed", "invalid_payload", "payload_too_large"
	RecordWebhookError(provider, errorType string)

	// RecordTierApplied records a tier written by a payment event.
	RecordTierApplied(provider, tier string)

	// RecordAPICall records an outbound API call and its status.
	RecordAPICall(provider, endpoint, status string)

	// RecordAPICallDuration records how long an API call took.
	RecordAPICallDuration(provider, endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_, _ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_, _ string)                               {}
func (n *NoopMetrics) RecordTierApplied(_, _ string)                                {}
func (n *NoopMetrics) RecordAPICall(_, _, _ string)                                 {}
func (n *NoopMetrics) RecordAPICallDuration(_, _ string, _ time.Duration)           {}
