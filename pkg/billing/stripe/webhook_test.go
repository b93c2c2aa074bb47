package stripe

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/arcana/pkg/billing"
	"github.com/mihaimyh/arcana/pkg/entitlement"
	"github.com/mihaimyh/arcana/storage/memory"
)

const (
	testSecret = "whsec_test_secret"
	testUserID = "user_123"
)

func newTestProvider(t *testing.T) (*Provider, *entitlement.Service) {
	t.Helper()
	svc, err := entitlement.NewService(memory.New(), entitlement.Config{})
	require.NoError(t, err)

	p, err := NewProvider(Config{
		Config: billing.Config{
			Entitlements:  svc,
			WebhookSecret: testSecret,
		},
		PriceIDs: map[entitlement.Tier]string{
			entitlement.TierBasic:   "price_basic",
			entitlement.TierPremium: "price_premium",
		},
		AppURL: "https://tarot.example.com/",
	})
	require.NoError(t, err)
	return p, svc
}

func eventJSON(t *testing.T, eventType string, created time.Time, object map[string]interface{}) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":      "evt_" + eventType,
		"object":  "event",
		"type":    eventType,
		"created": created.Unix(),
		"data":    map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return payload
}

func signedRequest(t *testing.T, secret string, payload []byte) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/subscription/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func checkoutObject(tier string) map[string]interface{} {
	return map[string]interface{}{
		"id":           "cs_test_1",
		"object":       "checkout.session",
		"customer":     "cus_1",
		"subscription": "sub_1",
		"metadata":     map[string]string{"userId": testUserID, "tier": tier},
	}
}

func TestVerifyAndParse_CheckoutCompleted(t *testing.T) {
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	payload := eventJSON(t, "checkout.session.completed", created, checkoutObject("premium"))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload, Secret: testSecret, Timestamp: time.Now(), Scheme: "v1",
	})

	ev, err := VerifyAndParse(signed.Payload, signed.Header, testSecret)
	require.NoError(t, err)

	assert.Equal(t, billing.EventCheckoutCompleted, ev.Type)
	assert.Equal(t, testUserID, ev.UserID)
	assert.Equal(t, "premium", ev.Tier)
	assert.Equal(t, "cus_1", ev.CustomerID)
	assert.Equal(t, "sub_1", ev.SubscriptionID)
	assert.Equal(t, created, ev.Created)
}

func TestVerifyAndParse_Subscription(t *testing.T) {
	tests := []struct {
		eventType string
		want      billing.EventType
	}{
		{"customer.subscription.updated", billing.EventSubscriptionUpdated},
		{"customer.subscription.deleted", billing.EventSubscriptionDeleted},
		{"invoice.paid", billing.EventIgnored},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			payload := eventJSON(t, tt.eventType, time.Now(), map[string]interface{}{
				"id":       "sub_1",
				"object":   "subscription",
				"status":   "active",
				"customer": "cus_1",
				"metadata": map[string]string{"user_id": testUserID, "tier": "basic"},
			})
			signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
				Payload: payload, Secret: testSecret, Timestamp: time.Now(), Scheme: "v1",
			})

			ev, err := VerifyAndParse(signed.Payload, signed.Header, testSecret)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Type)
			if tt.want != billing.EventIgnored {
				assert.Equal(t, testUserID, ev.UserID)
				assert.Equal(t, "active", ev.SubscriptionStatus)
			}
		})
	}
}

func TestVerifyAndParse_InvalidSignature(t *testing.T) {
	payload := eventJSON(t, "checkout.session.completed", time.Now(), checkoutObject("premium"))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload, Secret: "whsec_other", Timestamp: time.Now(), Scheme: "v1",
	})

	_, err := VerifyAndParse(signed.Payload, signed.Header, testSecret)
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)

	_, err = VerifyAndParse(payload, "", testSecret)
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)
}

func TestWebhookHandler_CheckoutCompleted(t *testing.T) {
	p, svc := newTestProvider(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := svc.RecordUsage(ctx, testUserID)
		require.NoError(t, err)
	}

	payload := eventJSON(t, "checkout.session.completed", time.Now(), checkoutObject("premium"))
	w := httptest.NewRecorder()
	p.WebhookHandler().ServeHTTP(w, signedRequest(t, testSecret, payload))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	ent, err := svc.Load(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierPremium, ent.Tier)
	assert.Equal(t, 0, ent.ReadingsUsed)
}

func TestWebhookHandler_Replay(t *testing.T) {
	p, svc := newTestProvider(t)
	payload := eventJSON(t, "checkout.session.completed", time.Now(), checkoutObject("basic"))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		p.WebhookHandler().ServeHTTP(w, signedRequest(t, testSecret, payload))
		require.Equal(t, http.StatusOK, w.Code)
	}

	ent, err := svc.Load(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierBasic, ent.Tier)
	assert.Equal(t, 0, ent.ReadingsUsed)
}

func TestWebhookHandler_InvalidSignatureLeavesStateUntouched(t *testing.T) {
	p, svc := newTestProvider(t)
	ctx := context.Background()
	_, err := svc.RecordUsage(ctx, testUserID)
	require.NoError(t, err)

	payload := eventJSON(t, "checkout.session.completed", time.Now(), checkoutObject("premium"))
	w := httptest.NewRecorder()
	p.WebhookHandler().ServeHTTP(w, signedRequest(t, "whsec_forged", payload))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "invalid signature")

	ent, err := svc.Load(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierFree, ent.Tier)
	assert.Equal(t, 1, ent.ReadingsUsed)
}

func TestWebhookHandler_Rejections(t *testing.T) {
	p, _ := newTestProvider(t)

	t.Run("method", func(t *testing.T) {
		w := httptest.NewRecorder()
		p.WebhookHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/subscription/webhook", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		w := httptest.NewRecorder()
		p.WebhookHandler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/subscription/webhook", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("too large", func(t *testing.T) {
		body := bytes.Repeat([]byte("x"), 300*1024)
		w := httptest.NewRecorder()
		p.WebhookHandler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/subscription/webhook", bytes.NewReader(body)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		svc, err := entitlement.NewService(memory.New(), entitlement.Config{})
		require.NoError(t, err)
		unconfigured, err := NewProvider(Config{Config: billing.Config{Entitlements: svc}})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		unconfigured.WebhookHandler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{}"))))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestWebhookHandler_IgnoresUnknownEvents(t *testing.T) {
	p, _ := newTestProvider(t)
	payload := eventJSON(t, "invoice.paid", time.Now(), map[string]interface{}{"id": "in_1", "object": "invoice"})

	w := httptest.NewRecorder()
	p.WebhookHandler().ServeHTTP(w, signedRequest(t, testSecret, payload))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookHandler_RateLimited(t *testing.T) {
	svc, err := entitlement.NewService(memory.New(), entitlement.Config{})
	require.NoError(t, err)
	p, err := NewProvider(Config{
		Config:    billing.Config{Entitlements: svc, WebhookSecret: testSecret},
		RateLimit: 1,
	})
	require.NoError(t, err)

	payload := eventJSON(t, "invoice.paid", time.Now(), map[string]interface{}{"id": "in_1"})
	handler := p.WebhookHandler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, signedRequest(t, testSecret, payload))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, signedRequest(t, testSecret, payload))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestNewProvider_RequiresEntitlements(t *testing.T) {
	_, err := NewProvider(Config{})
	assert.ErrorIs(t, err, billing.ErrProviderNotConfigured)
}
