package billing

import (
	"context"
	"net/http"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

// EntitlementApplier receives the absolute state produced by a payment event.
// *entitlement.Service implements it.
type EntitlementApplier interface {
	ApplyBillingChange(ctx context.Context, userID string, change entitlement.BillingChange) (*entitlement.Entitlement, error)
}

// Config defines the standard configuration all providers accept
type Config struct {
	// Entitlements is updated by the webhook handler.
	Entitlements EntitlementApplier

	// WebhookSecret verifies incoming webhook signatures.
	WebhookSecret string

	// APIKey is used for outbound API calls (checkout sessions).
	APIKey string

	// HTTPClient is an optional HTTP client for API calls.
	HTTPClient *http.Client

	// Logger defaults to a no-op logger.
	Logger entitlement.Logger

	// Metrics defaults to a no-op collector.
	Metrics Metrics
}
