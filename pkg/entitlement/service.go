package entitlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// Config holds Service dependencies. Zero values get defaults.
type Config struct {
	// Plans is the tier to plan table. Defaults to DefaultPlans().
	Plans Plans

	Logger  Logger
	Metrics Metrics

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Service is the sole authority on reading admission and on usage and tier
// state. It holds no per-user state; everything durable lives in the store.
type Service struct {
	store   AttributeStore
	plans   Plans
	logger  Logger
	metrics Metrics
	now     func() time.Time

	loads singleflight.Group
}

// NewService creates an entitlement service backed by store.
func NewService(store AttributeStore, config Config) (*Service, error) {
	if store == nil {
		return nil, ErrIdentityUnavailable
	}
	if config.Plans == nil {
		config.Plans = DefaultPlans()
	}
	if err := config.Plans.Validate(); err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Service{
		store:   store,
		plans:   config.Plans,
		logger:  config.Logger,
		metrics: config.Metrics,
		now:     config.Now,
	}, nil
}

// Plans returns the plan table the service enforces.
func (s *Service) Plans() Plans {
	return s.plans
}

// Load fetches the user's entitlement, initializing the usage window when absent
// and resetting it when it has passed. Resets are persisted before returning.
func (s *Service) Load(ctx context.Context, userID string) (*Entitlement, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	// The shared load must not fail because the caller that started it gave up.
	ch := s.loads.DoChan(userID, func() (interface{}, error) {
		return s.load(context.WithoutCancel(ctx), userID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Coalesced callers share the result; hand each one its own copy.
		ent := *res.Val.(*Entitlement)
		return &ent, nil
	}
}

func (s *Service) load(ctx context.Context, userID string) (*Entitlement, error) {
	attrs, err := s.getAttributes(ctx, userID)
	if err != nil {
		return nil, err
	}

	ent, decodeErr := decode(userID, attrs)
	if decodeErr != nil {
		s.logger.Warn("malformed entitlement attributes, using defaults",
			Field{"userId", userID},
			Field{"error", decodeErr.Error()},
		)
	}

	now := s.now().UTC()
	persist, reset := false, false
	switch {
	case ent.PeriodStart.IsZero() || ent.PeriodEnd.IsZero():
		ent.PeriodStart, ent.PeriodEnd = nextPeriod(now)
		persist = true
	case ent.Stale(now):
		ent.ReadingsUsed = 0
		ent.PeriodStart, ent.PeriodEnd = nextPeriod(now)
		persist, reset = true, true
	}

	if persist {
		if err := s.setAttributes(ctx, userID, encodePeriod(ent)); err != nil {
			return nil, err
		}
		if reset {
			s.logger.Info("usage period reset",
				Field{"userId", userID},
				Field{"periodEnd", ent.PeriodEnd},
			)
		}
	}

	s.metrics.RecordLoad(ent.Tier, reset)
	return ent, nil
}

// CanDoReading reports whether ent allows starting a new reading. It does not
// re-fetch the record.
func (s *Service) CanDoReading(ent *Entitlement) bool {
	if ent == nil {
		return false
	}
	limit := ent.ReadingsLimit(s.plans)
	allowed := limit == Unlimited || ent.ReadingsUsed < limit
	s.metrics.RecordAdmission(ent.Tier, allowed)
	return allowed
}

// RecordUsage adds one completed reading to the user's counter. Call it only
// after the reading was generated.
func (s *Service) RecordUsage(ctx context.Context, userID string) (*Entitlement, error) {
	ent, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if inc, ok := s.store.(Incrementer); ok {
		start := time.Now()
		n, err := inc.IncrementAttribute(ctx, userID, AttrReadingsUsed, 1)
		s.metrics.RecordStoreOperation("increment", time.Since(start), err)
		switch {
		case err == nil:
			ent.ReadingsUsed = n
			s.metrics.RecordUsage(ent.Tier)
			return ent, nil
		case !errors.Is(err, ErrIncrementUnsupported):
			return nil, fmt.Errorf("%w: failed to increment usage: %w", ErrIdentityUnavailable, err)
		}
	}

	// Read-modify-write against the value just loaded. Concurrent callers can
	// lose an update here.
	ent.ReadingsUsed++
	attrs := Attributes{AttrReadingsUsed: strconv.Itoa(ent.ReadingsUsed)}
	if err := s.setAttributes(ctx, userID, attrs); err != nil {
		return nil, err
	}

	s.metrics.RecordUsage(ent.Tier)
	return ent, nil
}

// UpdateTier sets the user's tier. Usage is reset unless the new tier is Free.
func (s *Service) UpdateTier(ctx context.Context, userID string, tier Tier) (*Entitlement, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}

	ent, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	from := ent.Tier
	ent.Tier = tier
	attrs := Attributes{AttrTier: string(tier)}
	if tier != TierFree {
		ent.ReadingsUsed = 0
		attrs[AttrReadingsUsed] = "0"
	}

	if err := s.setAttributes(ctx, userID, attrs); err != nil {
		return nil, err
	}

	s.metrics.RecordTierChange(from, tier, "manual")
	s.logger.Info("tier updated",
		Field{"userId", userID},
		Field{"from", from},
		Field{"to", tier},
	)
	return ent, nil
}

// ApplyBillingChange writes the absolute state carried by a payment event.
// Applying the same change twice yields the same record.
func (s *Service) ApplyBillingChange(ctx context.Context, userID string, change BillingChange) (*Entitlement, error) {
	if !change.Tier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, change.Tier)
	}

	ent, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !change.EventAt.IsZero() && change.EventAt.Before(ent.BillingEventAt) {
		return ent, fmt.Errorf("%w: event at %s, last applied %s",
			ErrStaleEvent, change.EventAt.Format(time.RFC3339), ent.BillingEventAt.Format(time.RFC3339))
	}

	from := ent.Tier
	ent.Tier = change.Tier
	attrs := Attributes{AttrTier: string(change.Tier)}
	if change.ResetUsage {
		ent.ReadingsUsed = 0
		attrs[AttrReadingsUsed] = "0"
	}
	if change.Status != "" {
		ent.Status = change.Status
		attrs[AttrStatus] = change.Status
	}
	if change.CustomerID != "" {
		ent.CustomerID = change.CustomerID
		attrs[AttrCustomerID] = change.CustomerID
	}
	if change.SubscriptionID != "" {
		ent.SubscriptionID = change.SubscriptionID
		attrs[AttrSubscriptionID] = change.SubscriptionID
	}
	if !change.EventAt.IsZero() {
		ent.BillingEventAt = change.EventAt.UTC()
		attrs[AttrBillingEventAt] = encodeTime(ent.BillingEventAt)
	}

	if err := s.setAttributes(ctx, userID, attrs); err != nil {
		return nil, err
	}

	s.metrics.RecordTierChange(from, change.Tier, "billing")
	return ent, nil
}

func (s *Service) getAttributes(ctx context.Context, userID string) (Attributes, error) {
	start := time.Now()
	attrs, err := s.store.GetAttributes(ctx, userID)
	s.metrics.RecordStoreOperation("get", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get attributes: %w", ErrIdentityUnavailable, err)
	}
	if attrs == nil {
		attrs = Attributes{}
	}
	return attrs, nil
}

func (s *Service) setAttributes(ctx context.Context, userID string, attrs Attributes) error {
	start := time.Now()
	err := s.store.SetAttributes(ctx, userID, attrs)
	s.metrics.RecordStoreOperation("set", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("%w: failed to set attributes: %w", ErrIdentityUnavailable, err)
	}
	return nil
}
