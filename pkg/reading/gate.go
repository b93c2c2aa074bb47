package reading

import (
	"context"
	"fmt"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

// Gate admits readings and records completed ones.
type Gate interface {
	// Check returns a *RefusalError when no reading is allowed.
	Check(ctx context.Context) error
	// Record counts a successfully displayed reading.
	Record(ctx context.Context) error
}

// Entitlements is the part of the entitlement service a gate needs.
type Entitlements interface {
	Load(ctx context.Context, userID string) (*entitlement.Entitlement, error)
	CanDoReading(ent *entitlement.Entitlement) bool
	RecordUsage(ctx context.Context, userID string) (*entitlement.Entitlement, error)
}

// EntitlementGate admits signed in users by their tier and usage.
type EntitlementGate struct {
	entitlements Entitlements
	userID       string
}

// NewEntitlementGate creates a gate for one user.
func NewEntitlementGate(entitlements Entitlements, userID string) *EntitlementGate {
	return &EntitlementGate{entitlements: entitlements, userID: userID}
}

func (g *EntitlementGate) Check(ctx context.Context) error {
	ent, err := g.entitlements.Load(ctx, g.userID)
	if err != nil {
		return fmt.Errorf("failed to load entitlement: %w", err)
	}
	if !g.entitlements.CanDoReading(ent) {
		return &RefusalError{
			Reason:      RefusalUpgrade,
			Message:     "reading limit reached for this period, upgrade for unlimited readings",
			Entitlement: ent,
		}
	}
	return nil
}

func (g *EntitlementGate) Record(ctx context.Context) error {
	if _, err := g.entitlements.RecordUsage(ctx, g.userID); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// FlagStore persists boolean markers by key.
type FlagStore interface {
	HasFlag(ctx context.Context, key string) (bool, error)
	SetFlag(ctx context.Context, key string) error
}

// GuestFlagPrefix prefixes the per-guest completion flag key.
const GuestFlagPrefix = "guest_reading_completed:"

// GuestGate allows a guest exactly one reading.
type GuestGate struct {
	flags FlagStore
	key   string
}

// NewGuestGate creates a gate for the guest identified by guestID.
func NewGuestGate(flags FlagStore, guestID string) *GuestGate {
	return &GuestGate{flags: flags, key: GuestFlagPrefix + guestID}
}

func (g *GuestGate) Check(ctx context.Context) error {
	done, err := g.flags.HasFlag(ctx, g.key)
	if err != nil {
		return fmt.Errorf("failed to read guest flag: %w", err)
	}
	if done {
		return &RefusalError{
			Reason:  RefusalSignup,
			Message: "sign up to get more readings",
		}
	}
	return nil
}

func (g *GuestGate) Record(ctx context.Context) error {
	if err := g.flags.SetFlag(ctx, g.key); err != nil {
		return fmt.Errorf("failed to set guest flag: %w", err)
	}
	return nil
}
