package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

// Outcome describes what Handle did with an event.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeIgnored Outcome = "ignored"
	OutcomeSkipped Outcome = "skipped"
	OutcomeStale   Outcome = "stale"
)

// Reconciler translates verified payment events into entitlement changes.
// Every change is absolute, so replays of one delivery are harmless.
type Reconciler struct {
	provider     string
	entitlements EntitlementApplier
	logger       entitlement.Logger
	metrics      Metrics
}

// NewReconciler creates a reconciler writing to entitlements.
func NewReconciler(provider string, entitlements EntitlementApplier, logger entitlement.Logger, metrics Metrics) (*Reconciler, error) {
	if entitlements == nil {
		return nil, ErrProviderNotConfigured
	}
	if logger == nil {
		logger = &entitlement.NoopLogger{}
	}
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &Reconciler{
		provider:     provider,
		entitlements: entitlements,
		logger:       logger,
		metrics:      metrics,
	}, nil
}

// Handle applies ev. Unknown event types and events without a user are
// skipped without error.
func (r *Reconciler) Handle(ctx context.Context, ev *PaymentEvent) (Outcome, error) {
	change, ok := r.changeFor(ev)
	if !ok {
		return OutcomeIgnored, nil
	}
	if ev.UserID == "" {
		r.logger.Debug("payment event without user id, skipping",
			entitlement.Field{Key: "eventId", Value: ev.ID},
			entitlement.Field{Key: "type", Value: ev.RawType},
		)
		return OutcomeSkipped, nil
	}

	_, err := r.entitlements.ApplyBillingChange(ctx, ev.UserID, change)
	switch {
	case errors.Is(err, entitlement.ErrStaleEvent):
		r.logger.Info("out of order payment event, skipping",
			entitlement.Field{Key: "eventId", Value: ev.ID},
			entitlement.Field{Key: "userId", Value: ev.UserID},
		)
		return OutcomeStale, nil
	case err != nil:
		return "", fmt.Errorf("failed to apply %s for user %s: %w", ev.Type, ev.UserID, err)
	}

	r.metrics.RecordTierApplied(r.provider, string(change.Tier))
	r.logger.Info("payment event applied",
		entitlement.Field{Key: "eventId", Value: ev.ID},
		entitlement.Field{Key: "type", Value: ev.Type},
		entitlement.Field{Key: "userId", Value: ev.UserID},
		entitlement.Field{Key: "tier", Value: change.Tier},
	)
	return OutcomeApplied, nil
}

func (r *Reconciler) changeFor(ev *PaymentEvent) (entitlement.BillingChange, bool) {
	change := entitlement.BillingChange{
		CustomerID:     ev.CustomerID,
		SubscriptionID: ev.SubscriptionID,
		EventAt:        ev.Created,
	}

	switch ev.Type {
	case EventCheckoutCompleted:
		change.Tier = metadataTier(ev.Tier)
		change.ResetUsage = true
		change.Status = entitlement.StatusActive
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		change.Status = ev.SubscriptionStatus
		if ev.SubscriptionStatus == entitlement.StatusActive {
			change.Tier = metadataTier(ev.Tier)
		} else {
			change.Tier = entitlement.TierFree
		}
	default:
		return entitlement.BillingChange{}, false
	}
	return change, true
}

// metadataTier reads the tier carried in checkout metadata, defaulting to basic.
func metadataTier(s string) entitlement.Tier {
	t, err := entitlement.ParseTier(s)
	if err != nil {
		return entitlement.TierBasic
	}
	return t
}
