package entitlement

import "context"

// Attribute names in the profile store.
const (
	AttrTier           = "custom:subscription_tier"
	AttrReadingsUsed   = "custom:readings_used"
	AttrPeriodStart    = "custom:subscription_period_start"
	AttrPeriodEnd      = "custom:subscription_period_end"
	AttrStatus         = "custom:subscription_status"
	AttrCustomerID     = "custom:stripe_customer_id"
	AttrSubscriptionID = "custom:stripe_subscription_id"
	AttrBillingEventAt = "custom:billing_event_at"
)

// Attributes is a flat bag of string-typed profile attributes.
type Attributes map[string]string

// AttributeStore is the identity/profile store holding entitlement attributes.
type AttributeStore interface {
	// GetAttributes returns every attribute for the user. Unknown users yield
	// an empty bag, not an error.
	GetAttributes(ctx context.Context, userID string) (Attributes, error)

	// SetAttributes merges attrs into the user's attributes.
	SetAttributes(ctx context.Context, userID string, attrs Attributes) error
}

// Incrementer is implemented by stores that can add to a numeric attribute
// server side. The new value is returned.
type Incrementer interface {
	IncrementAttribute(ctx context.Context, userID, name string, delta int) (int, error)
}
