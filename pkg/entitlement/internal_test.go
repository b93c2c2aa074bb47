package entitlement

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMonthsSafe(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC), time.Date(2025, 2, 15, 8, 0, 0, 0, time.UTC)},
		{time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in.Format("2006-01-02"), func(t *testing.T) {
			assert.Equal(t, tt.want, addMonthsSafe(tt.in, 1))
		})
	}
}

func TestDecode(t *testing.T) {
	ent, err := decode("user1", Attributes{
		AttrTier:           "Premium",
		AttrReadingsUsed:   "3",
		AttrPeriodStart:    "2025-03-01T00:00:00Z",
		AttrPeriodEnd:      "2025-04-01T00:00:00Z",
		AttrStatus:         "active",
		AttrCustomerID:     "cus_1",
		AttrBillingEventAt: "2025-03-02T10:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, TierPremium, ent.Tier)
	assert.Equal(t, 3, ent.ReadingsUsed)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), ent.PeriodEnd)
	assert.Equal(t, "cus_1", ent.CustomerID)
	assert.False(t, ent.BillingEventAt.IsZero())
}

func TestDecode_Empty(t *testing.T) {
	ent, err := decode("user1", Attributes{})
	require.NoError(t, err)
	assert.Equal(t, TierFree, ent.Tier)
	assert.Zero(t, ent.ReadingsUsed)
	assert.True(t, ent.PeriodStart.IsZero())
}

func TestDecode_IsolatesFieldErrors(t *testing.T) {
	ent, err := decode("user1", Attributes{
		AttrTier:         "basic",
		AttrReadingsUsed: "-2",
		AttrPeriodStart:  "yesterday",
		AttrPeriodEnd:    "2025-04-01T00:00:00Z",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), AttrReadingsUsed)
	assert.Contains(t, err.Error(), AttrPeriodStart)

	assert.Equal(t, TierBasic, ent.Tier)
	assert.Zero(t, ent.ReadingsUsed)
	assert.True(t, ent.PeriodStart.IsZero())
	assert.False(t, ent.PeriodEnd.IsZero())
}

func TestEncodeDecode(t *testing.T) {
	in := &Entitlement{
		UserID:         "user1",
		Tier:           TierBasic,
		ReadingsUsed:   8,
		PeriodStart:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		Status:         StatusActive,
		SubscriptionID: "sub_1",
	}

	attrs := encodePeriod(in)
	attrs[AttrTier] = string(in.Tier)
	attrs[AttrStatus] = in.Status
	attrs[AttrSubscriptionID] = in.SubscriptionID

	out, err := decode("user1", attrs)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncodePeriod_OmitsTier(t *testing.T) {
	attrs := encodePeriod(&Entitlement{Tier: TierPremium, ReadingsUsed: 1})
	assert.NotContains(t, attrs, AttrTier)
	assert.Equal(t, "1", attrs[AttrReadingsUsed])
}

func TestParseTier(t *testing.T) {
	for _, s := range []string{"free", "BASIC", " premium "} {
		_, err := ParseTier(s)
		assert.NoError(t, err, s)
	}
	for _, s := range []string{"", "gold", "pro"} {
		_, err := ParseTier(s)
		assert.ErrorIs(t, err, ErrInvalidTier, s)
	}
}

func TestDefaultPlans(t *testing.T) {
	plans := DefaultPlans()
	require.NoError(t, plans.Validate())

	assert.Equal(t, 5, plans.Limit(TierFree))
	assert.Equal(t, Unlimited, plans.Limit(TierBasic))
	assert.Equal(t, Unlimited, plans.Limit(TierPremium))
	assert.Equal(t, int64(500), plans[TierBasic].Price)
	assert.Equal(t, int64(1000), plans[TierPremium].Price)
	assert.Equal(t, "Perfect for casual users exploring tarot", plans[TierFree].Description)
	assert.Equal(t, []string{
		"5 tarot readings per month",
		"Basic card interpretations",
		"Question-based readings",
		"General readings",
	}, plans[TierFree].Features)
	assert.Subset(t, plans[TierPremium].Features, plans[TierBasic].Features)
	assert.Len(t, plans[TierPremium].Features, 8)

	ordered := plans.Ordered()
	require.Len(t, ordered, 3)
	assert.Equal(t, TierFree, ordered[0].Tier)
	assert.Equal(t, TierPremium, ordered[2].Tier)

	withIDs := plans.WithPriceIDs(map[Tier]string{TierBasic: "price_basic"})
	assert.Equal(t, "price_basic", withIDs[TierBasic].PriceID)
	assert.Empty(t, plans[TierBasic].PriceID, "original table untouched")
}

func TestEntitlement_Remaining(t *testing.T) {
	plans := DefaultPlans()
	assert.Equal(t, 2, (&Entitlement{Tier: TierFree, ReadingsUsed: 3}).Remaining(plans))
	assert.Equal(t, 0, (&Entitlement{Tier: TierFree, ReadingsUsed: 7}).Remaining(plans))
	assert.Equal(t, Unlimited, (&Entitlement{Tier: TierBasic, ReadingsUsed: 7}).Remaining(plans))
}

func TestPlan_JSON(t *testing.T) {
	plans := DefaultPlans()

	data, err := json.Marshal(plans[TierPremium])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"readingsLimit":null`)
	assert.NotContains(t, string(data), "PriceID")

	data, err = json.Marshal(plans[TierFree])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"readingsLimit":5`)

	var back Plan
	require.NoError(t, json.Unmarshal([]byte(`{"tier":"basic","readingsLimit":null}`), &back))
	assert.Equal(t, Unlimited, back.ReadingsLimit)
	assert.True(t, back.Unlimited())
}

func TestNullableLimit(t *testing.T) {
	assert.Nil(t, NullableLimit(Unlimited))
	require.NotNil(t, NullableLimit(0))
	assert.Equal(t, 3, *NullableLimit(3))
}
