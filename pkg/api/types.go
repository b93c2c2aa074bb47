package api

import (
	"time"

	"github.com/mihaimyh/arcana/pkg/entitlement"
	"github.com/mihaimyh/arcana/pkg/reading"
)

// ReadingRequest is the body of POST /reading
type ReadingRequest struct {
	Question string              `json:"question" validate:"max=500"`
	Cards    []reading.DrawnCard `json:"cards" validate:"len=3,dive"`
}

// TierRequest is the body of the checkout and update routes
type TierRequest struct {
	Tier string `json:"tier" validate:"required,max=20"`
}

// SubscriptionResponse describes the caller's tier and usage
type SubscriptionResponse struct {
	UserID        string           `json:"userId"`
	Tier          entitlement.Tier `json:"tier"`
	Status        string           `json:"status,omitempty"`
	ReadingsUsed  int              `json:"readingsUsed"`
	ReadingsLimit *int             `json:"readingsLimit"` // null for unlimited
	Remaining     *int             `json:"remaining"`     // null for unlimited
	PeriodStart   time.Time        `json:"periodStart"`
	PeriodEnd     time.Time        `json:"periodEnd"`
	Plan          entitlement.Plan `json:"plan"`
}

// CheckoutResponse carries the payment page URL
type CheckoutResponse struct {
	CheckoutURL string `json:"checkoutUrl"`
}

// UpdateResponse confirms a tier update
type UpdateResponse struct {
	Success      bool                 `json:"success"`
	Subscription SubscriptionResponse `json:"subscription"`
}

func newSubscriptionResponse(ent *entitlement.Entitlement, plans entitlement.Plans) SubscriptionResponse {
	return SubscriptionResponse{
		UserID:        ent.UserID,
		Tier:          ent.Tier,
		Status:        ent.Status,
		ReadingsUsed:  ent.ReadingsUsed,
		ReadingsLimit: entitlement.NullableLimit(ent.ReadingsLimit(plans)),
		Remaining:     entitlement.NullableLimit(ent.Remaining(plans)),
		PeriodStart:   ent.PeriodStart,
		PeriodEnd:     ent.PeriodEnd,
		Plan:          plans[ent.Tier],
	}
}
