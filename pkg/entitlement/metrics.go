package entitlement

import "time"

// Metrics defines the interface for tracking entitlement operations.
type Metrics interface {
	// RecordLoad records an entitlement load and whether a period reset happened.
	RecordLoad(tier Tier, reset bool)

	// RecordAdmission records an admission decision.
	RecordAdmission(tier Tier, allowed bool)

	// RecordUsage records a completed reading.
	RecordUsage(tier Tier)

	// RecordTierChange records a tier transition and whether usage was reset.
	RecordTierChange(from, to Tier, source string)

	// RecordStoreOperation records the duration and status of a store call.
	RecordStoreOperation(operation string, duration time.Duration, err error)

	// RecordCircuitBreakerStateChange records a circuit breaker state change.
	RecordCircuitBreakerStateChange(state string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordLoad(tier Tier, reset bool)                                         {}
func (n *NoopMetrics) RecordAdmission(tier Tier, allowed bool)                                  {}
func (n *NoopMetrics) RecordUsage(tier Tier)                                                    {}
func (n *NoopMetrics) RecordTierChange(from, to Tier, source string)                            {}
func (n *NoopMetrics) RecordStoreOperation(operation string, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(state string)                             {}
