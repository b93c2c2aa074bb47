package entitlement

import "time"

// Status values mirrored from the payment processor.
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusCanceled = "canceled"
)

// Entitlement is the per-user record governing reading admission.
type Entitlement struct {
	UserID       string    `json:"userId"`
	Tier         Tier      `json:"tier"`
	ReadingsUsed int       `json:"readingsUsed"`
	PeriodStart  time.Time `json:"periodStart"`
	PeriodEnd    time.Time `json:"periodEnd"`

	// Billing state written by the payment reconciler.
	Status         string    `json:"status,omitempty"`
	CustomerID     string    `json:"-"`
	SubscriptionID string    `json:"-"`
	BillingEventAt time.Time `json:"-"`
}

// ReadingsLimit returns the cap for the record's tier, or Unlimited.
func (e *Entitlement) ReadingsLimit(plans Plans) int {
	return plans.Limit(e.Tier)
}

// Remaining returns the readings left in the current period, or Unlimited.
func (e *Entitlement) Remaining(plans Plans) int {
	limit := e.ReadingsLimit(plans)
	if limit == Unlimited {
		return Unlimited
	}
	if e.ReadingsUsed >= limit {
		return 0
	}
	return limit - e.ReadingsUsed
}

// NullableLimit returns n, or nil when n is Unlimited. JSON bodies encode
// an uncapped limit or remaining count as null.
func NullableLimit(n int) *int {
	if n == Unlimited {
		return nil
	}
	return &n
}

// Stale reports whether the usage window has passed.
func (e *Entitlement) Stale(now time.Time) bool {
	return !e.PeriodEnd.IsZero() && now.After(e.PeriodEnd)
}

// BillingChange is an absolute update produced by a payment event.
type BillingChange struct {
	Tier           Tier
	ResetUsage     bool
	Status         string
	CustomerID     string
	SubscriptionID string

	// EventAt orders changes. Changes older than the last applied one are rejected.
	EventAt time.Time
}
