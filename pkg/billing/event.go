package billing

import "time"

// EventType classifies processor events the reconciler understands.
type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout_completed"
	EventSubscriptionUpdated EventType = "subscription_updated"
	EventSubscriptionDeleted EventType = "subscription_deleted"
	EventIgnored             EventType = "ignored"
)

// PaymentEvent is a verified processor event reduced to what reconciliation needs.
type PaymentEvent struct {
	// ID is the processor-assigned event id.
	ID   string
	Type EventType

	// RawType is the processor's own event name.
	RawType string

	UserID             string
	Tier               string // metadata tier, unparsed
	SubscriptionStatus string
	CustomerID         string
	SubscriptionID     string

	// Created is when the processor emitted the event.
	Created time.Time
}
