package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/arcana/pkg/billing"
)

const checkoutEndpoint = "/checkout/sessions"

// CreateCheckout creates a subscription Checkout Session for a paid tier and
// returns its URL. The user id and tier travel as metadata on both the session
// and the subscription so every later webhook can be reconciled.
func (p *Provider) CreateCheckout(ctx context.Context, req billing.CheckoutRequest) (string, error) {
	if p.sessions == nil {
		return "", billing.ErrProviderNotConfigured
	}
	if !req.Tier.Paid() {
		return "", fmt.Errorf("%w: %s", billing.ErrTierNotPurchasable, req.Tier)
	}
	priceID := p.priceIDs[req.Tier]
	if priceID == "" {
		p.metrics.RecordAPICall(providerName, checkoutEndpoint, "tier_not_found")
		return "", fmt.Errorf("%w: no price configured for %s", billing.ErrTierNotPurchasable, req.Tier)
	}

	metadata := map[string]string{
		"userId": req.UserID,
		"tier":   string(req.Tier),
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(p.appURL + "/subscription/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(p.appURL + "/subscription"),
		ClientReferenceID: stripe.String(req.UserID),
		Metadata:          metadata,
		SubscriptionData: &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	startTime := time.Now()
	session, err := p.sessions.Create(ctx, params)
	p.metrics.RecordAPICallDuration(providerName, checkoutEndpoint, time.Since(startTime))
	if err != nil {
		p.metrics.RecordAPICall(providerName, checkoutEndpoint, "error")
		return "", fmt.Errorf("%w: failed to create checkout session: %w", billing.ErrProviderAPIError, err)
	}

	p.metrics.RecordAPICall(providerName, checkoutEndpoint, "success")
	return session.URL, nil
}
