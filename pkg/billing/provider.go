package billing

import (
	"context"
	"net/http"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

// Provider is the interface a payment processor backend implements.
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that verifies and reconciles
	// processor events.
	WebhookHandler() http.Handler

	// CreateCheckout starts a subscription checkout for a paid tier and returns
	// the URL the user should be redirected to.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error)
}

// CheckoutRequest identifies who is buying which tier.
type CheckoutRequest struct {
	UserID string
	Email  string
	Tier   entitlement.Tier
}
