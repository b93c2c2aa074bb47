package entitlement

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier is a subscription level.
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

// Unlimited marks a plan without a reading cap.
const Unlimited = -1

// Tiers lists every defined tier in upgrade order.
var Tiers = []Tier{TierFree, TierBasic, TierPremium}

// ParseTier converts a string to a Tier. Matching ignores case and surrounding whitespace.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
	return t, nil
}

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierPremium:
		return true
	}
	return false
}

// Paid reports whether the tier is sold through checkout.
func (t Tier) Paid() bool {
	return t == TierBasic || t == TierPremium
}

func (t Tier) String() string {
	return string(t)
}

// Plan describes what a tier costs and grants.
type Plan struct {
	Tier          Tier     `json:"tier"`
	Name          string   `json:"name"`
	Price         int64    `json:"price"` // monthly, in cents
	ReadingsLimit int      `json:"readingsLimit"`
	Features      []string `json:"features"`
	Description   string   `json:"description"`

	// PriceID is the payment processor price identifier. Empty for free plans.
	PriceID string `json:"-"`
}

// Unlimited reports whether the plan has no reading cap.
func (p Plan) Unlimited() bool {
	return p.ReadingsLimit == Unlimited
}

type planJSON struct {
	Tier          Tier     `json:"tier"`
	Name          string   `json:"name"`
	Price         int64    `json:"price"`
	ReadingsLimit *int     `json:"readingsLimit"`
	Features      []string `json:"features"`
	Description   string   `json:"description"`
}

// MarshalJSON encodes an unlimited plan's readingsLimit as null.
func (p Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(planJSON{
		Tier:          p.Tier,
		Name:          p.Name,
		Price:         p.Price,
		ReadingsLimit: NullableLimit(p.ReadingsLimit),
		Features:      p.Features,
		Description:   p.Description,
	})
}

// UnmarshalJSON reads a null readingsLimit as Unlimited.
func (p *Plan) UnmarshalJSON(data []byte) error {
	var v planJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	limit := Unlimited
	if v.ReadingsLimit != nil {
		limit = *v.ReadingsLimit
	}
	*p = Plan{
		Tier:          v.Tier,
		Name:          v.Name,
		Price:         v.Price,
		ReadingsLimit: limit,
		Features:      v.Features,
		Description:   v.Description,
	}
	return nil
}

// Plans is the static tier to plan table.
type Plans map[Tier]Plan

// DefaultPlans returns the built-in plan table.
func DefaultPlans() Plans {
	return Plans{
		TierFree: {
			Tier:          TierFree,
			Name:          "Free",
			Price:         0,
			ReadingsLimit: 5,
			Description:   "Perfect for casual users exploring tarot",
			Features: []string{
				"5 tarot readings per month",
				"Basic card interpretations",
				"Question-based readings",
				"General readings",
			},
		},
		TierBasic: {
			Tier:          TierBasic,
			Name:          "Basic",
			Price:         500,
			ReadingsLimit: Unlimited,
			Description:   "For frequent users who want unlimited access",
			Features: []string{
				"Unlimited tarot readings",
				"All reading types",
				"Save your readings",
				"Reading history",
			},
		},
		TierPremium: {
			Tier:          TierPremium,
			Name:          "Premium",
			Price:         1000,
			ReadingsLimit: Unlimited,
			Description:   "For enthusiasts and aspiring tarot readers",
			Features: []string{
				"Unlimited tarot readings",
				"All reading types",
				"Save your readings",
				"Reading history",
				"Card library with detailed meanings",
				"Interactive flashcards",
				"Educational resources",
				"Advanced interpretations",
			},
		},
	}
}

// Validate checks that every tier has a plan with a sane limit.
func (p Plans) Validate() error {
	for _, t := range Tiers {
		plan, ok := p[t]
		if !ok {
			return fmt.Errorf("%w: missing plan for tier %q", ErrInvalidPlans, t)
		}
		if plan.ReadingsLimit < Unlimited {
			return fmt.Errorf("%w: negative readings limit for tier %q", ErrInvalidPlans, t)
		}
	}
	return nil
}

// Limit returns the reading cap for a tier. Unknown tiers get the free limit.
func (p Plans) Limit(t Tier) int {
	if plan, ok := p[t]; ok {
		return plan.ReadingsLimit
	}
	return p[TierFree].ReadingsLimit
}

// Ordered returns the plans in upgrade order.
func (p Plans) Ordered() []Plan {
	out := make([]Plan, 0, len(Tiers))
	for _, t := range Tiers {
		if plan, ok := p[t]; ok {
			out = append(out, plan)
		}
	}
	return out
}

// WithPriceIDs returns a copy of the table with processor price ids filled in.
func (p Plans) WithPriceIDs(ids map[Tier]string) Plans {
	out := make(Plans, len(p))
	for t, plan := range p {
		if id, ok := ids[t]; ok {
			plan.PriceID = id
		}
		out[t] = plan
	}
	return out
}
