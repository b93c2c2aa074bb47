package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/arcana/internal/httputil"
	"github.com/mihaimyh/arcana/pkg/billing"
	"github.com/mihaimyh/arcana/pkg/entitlement"
)

const signatureHeader = "Stripe-Signature"

// VerifyAndParse checks the Stripe signature over body and reduces the event
// to a billing.PaymentEvent. Nothing is returned for an unverified payload.
func VerifyAndParse(body []byte, signature, secret string) (*billing.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(body, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrInvalidSignature, err)
	}
	return parseEvent(&event)
}

func parseEvent(event *stripe.Event) (*billing.PaymentEvent, error) {
	ev := &billing.PaymentEvent{
		ID:      event.ID,
		RawType: string(event.Type),
		Type:    billing.EventIgnored,
		Created: time.Unix(event.Created, 0).UTC(),
	}
	if event.Data == nil {
		return ev, nil
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("%w: failed to decode checkout session: %v", billing.ErrInvalidWebhookPayload, err)
		}
		ev.Type = billing.EventCheckoutCompleted
		ev.UserID = userIDFrom(session.Metadata)
		if ev.UserID == "" {
			ev.UserID = session.ClientReferenceID
		}
		ev.Tier = session.Metadata["tier"]
		ev.SubscriptionStatus = entitlement.StatusActive
		if session.Customer != nil {
			ev.CustomerID = session.Customer.ID
		}
		if session.Subscription != nil {
			ev.SubscriptionID = session.Subscription.ID
		}

	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: failed to decode subscription: %v", billing.ErrInvalidWebhookPayload, err)
		}
		ev.Type = billing.EventSubscriptionUpdated
		if event.Type == "customer.subscription.deleted" {
			ev.Type = billing.EventSubscriptionDeleted
		}
		ev.UserID = userIDFrom(sub.Metadata)
		ev.Tier = sub.Metadata["tier"]
		ev.SubscriptionStatus = string(sub.Status)
		ev.SubscriptionID = sub.ID
		if sub.Customer != nil {
			ev.CustomerID = sub.Customer.ID
		}
	}

	return ev, nil
}

func userIDFrom(metadata map[string]string) string {
	if id := metadata["userId"]; id != "" {
		return id
	}
	return metadata["user_id"]
}

// handleWebhook processes incoming Stripe webhook events
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	httputil.SetSecurityHeaders(w)

	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if p.webhookSecret == "" {
		httputil.WriteError(w, http.StatusServiceUnavailable, "webhook not configured")
		return
	}

	body, err := httputil.ReadBodyStrict(w, r, httputil.MaxWebhookBody)
	if err != nil {
		if errors.Is(err, httputil.ErrPayloadTooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			httputil.WriteError(w, http.StatusBadRequest, "invalid payload")
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	ev, err := VerifyAndParse(body, r.Header.Get(signatureHeader), p.webhookSecret)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			p.logger.Warn("stripe webhook rejected", entitlement.Field{Key: "error", Value: err})
			httputil.WriteError(w, http.StatusForbidden, "invalid signature")
			p.metrics.RecordWebhookError(providerName, "auth_failed")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "invalid payload")
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		return
	}

	outcome, err := p.reconciler.Handle(r.Context(), ev)
	p.metrics.RecordWebhookProcessingDuration(providerName, ev.RawType, time.Since(startTime))
	if err != nil {
		p.logger.Error("stripe webhook processing failed",
			entitlement.Field{Key: "eventId", Value: ev.ID},
			entitlement.Field{Key: "type", Value: ev.RawType},
			entitlement.Field{Key: "error", Value: err},
		)
		// non-2xx makes Stripe redeliver
		httputil.WriteError(w, http.StatusInternalServerError, "failed to process webhook")
		p.metrics.RecordWebhookEvent(providerName, ev.RawType, "error")
		return
	}

	p.metrics.RecordWebhookEvent(providerName, ev.RawType, string(outcome))
	_ = httputil.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
