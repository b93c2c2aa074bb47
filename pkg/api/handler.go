package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/mihaimyh/arcana/internal/httputil"
	httpmw "github.com/mihaimyh/arcana/middleware/http"
	"github.com/mihaimyh/arcana/pkg/auth"
	"github.com/mihaimyh/arcana/pkg/billing"
	"github.com/mihaimyh/arcana/pkg/entitlement"
	"github.com/mihaimyh/arcana/pkg/reading"
)

const (
	maxRequestBody = 64 * 1024
	maxGuestIDLen  = 128

	// GuestIDHeader identifies an anonymous client across requests.
	GuestIDHeader = "X-Guest-ID"
)

// Handler serves the reading and subscription endpoints
type Handler struct {
	config   Config
	reader   *reading.Reader
	validate *validator.Validate
}

// Routes returns the router with every endpoint mounted
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.recoverer)
	r.Use(securityHeaders)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.config.Metrics != nil {
		r.Handle("/metrics", h.config.Metrics)
	}
	r.Get("/plans", h.GetPlans)

	r.With(httpmw.Authenticate(h.config.Verifier, false)).Post("/reading", h.PostReading)

	r.Route("/subscription", func(r chi.Router) {
		r.Handle("/webhook", h.webhookHandler())

		r.Group(func(r chi.Router) {
			r.Use(httpmw.Authenticate(h.config.Verifier, true))
			r.Get("/", h.GetSubscription)
			r.Post("/checkout", h.PostCheckout)
			if h.config.AllowTierUpdate {
				r.Post("/update", h.PostUpdate)
			}
		})
	})

	return r
}

// PostReading generates a reading for three drawn cards. Signed in users are
// admitted by their entitlement, guests get one reading.
func (h *Handler) PostReading(w http.ResponseWriter, r *http.Request) {
	var req ReadingRequest
	if !h.decode(w, r, &req) {
		return
	}

	var gate reading.Gate
	if claims, ok := auth.ClaimsFrom(r.Context()); ok {
		gate = reading.NewEntitlementGate(h.config.Entitlements, claims.Subject)
	} else {
		gate = reading.NewGuestGate(h.config.GuestFlags, guestID(r))
	}

	var cards [3]reading.DrawnCard
	copy(cards[:], req.Cards)

	result, err := h.reader.Perform(r.Context(), gate, req.Question, cards)
	if err != nil {
		h.writeReadingError(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) writeReadingError(w http.ResponseWriter, err error) {
	if refusal, ok := reading.IsRefusal(err); ok {
		switch refusal.Reason {
		case reading.RefusalSignup:
			_ = httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: refusal.Message, Signup: true})
		default:
			_ = httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorResponse{Error: refusal.Message, Upgrade: true})
		}
		return
	}

	switch {
	case errors.Is(err, reading.ErrGenerationFailed):
		httputil.WriteError(w, http.StatusBadGateway, "failed to generate reading")
	case errors.Is(err, entitlement.ErrIdentityUnavailable):
		h.config.Logger.Error("Entitlement store unavailable", entitlement.Field{Key: "error", Value: err})
		httputil.WriteError(w, http.StatusServiceUnavailable, "subscription service unavailable")
	default:
		h.config.Logger.Error("Reading failed", entitlement.Field{Key: "error", Value: err})
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

// GetPlans lists the plans in upgrade order
func (h *Handler) GetPlans(w http.ResponseWriter, _ *http.Request) {
	_ = httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"plans": h.config.Entitlements.Plans().Ordered(),
	})
}

// GetSubscription returns the caller's tier and usage
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())
	ent, err := h.config.Entitlements.Load(r.Context(), claims.Subject)
	if err != nil {
		h.writeEntitlementError(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, newSubscriptionResponse(ent, h.config.Entitlements.Plans()))
}

// PostCheckout starts a payment checkout for a paid tier
func (h *Handler) PostCheckout(w http.ResponseWriter, r *http.Request) {
	var req TierRequest
	if !h.decode(w, r, &req) {
		return
	}
	tier, err := entitlement.ParseTier(req.Tier)
	if err != nil || !tier.Paid() {
		httputil.WriteError(w, http.StatusBadRequest, "tier must be basic or premium")
		return
	}
	if h.config.Billing == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "payments are not configured")
		return
	}

	claims, _ := auth.ClaimsFrom(r.Context())
	url, err := h.config.Billing.CreateCheckout(r.Context(), billing.CheckoutRequest{
		UserID: claims.Subject,
		Email:  claims.Email,
		Tier:   tier,
	})
	switch {
	case err == nil:
		_ = httputil.WriteJSON(w, http.StatusOK, CheckoutResponse{CheckoutURL: url})
	case errors.Is(err, billing.ErrTierNotPurchasable):
		httputil.WriteError(w, http.StatusBadRequest, "tier is not purchasable")
	case errors.Is(err, billing.ErrProviderNotConfigured):
		httputil.WriteError(w, http.StatusServiceUnavailable, "payments are not configured")
	default:
		h.config.Logger.Error("Checkout failed",
			entitlement.Field{Key: "userId", Value: claims.Subject},
			entitlement.Field{Key: "error", Value: err})
		httputil.WriteError(w, http.StatusBadGateway, "failed to create checkout session")
	}
}

// PostUpdate sets the caller's tier directly
func (h *Handler) PostUpdate(w http.ResponseWriter, r *http.Request) {
	var req TierRequest
	if !h.decode(w, r, &req) {
		return
	}
	tier, err := entitlement.ParseTier(req.Tier)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid tier")
		return
	}

	claims, _ := auth.ClaimsFrom(r.Context())
	ent, err := h.config.Entitlements.UpdateTier(r.Context(), claims.Subject, tier)
	if err != nil {
		h.writeEntitlementError(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, UpdateResponse{
		Success:      true,
		Subscription: newSubscriptionResponse(ent, h.config.Entitlements.Plans()),
	})
}

func (h *Handler) writeEntitlementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entitlement.ErrInvalidTier), errors.Is(err, entitlement.ErrInvalidUserID):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, entitlement.ErrUserNotFound):
		httputil.WriteError(w, http.StatusNotFound, "user not found")
	default:
		h.config.Logger.Error("Entitlement request failed", entitlement.Field{Key: "error", Value: err})
		httputil.WriteError(w, http.StatusServiceUnavailable, "subscription service unavailable")
	}
}

func (h *Handler) webhookHandler() http.Handler {
	if h.config.Billing == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			httputil.WriteError(w, http.StatusServiceUnavailable, "payments are not configured")
		})
	}
	return h.config.Billing.WebhookHandler()
}

// decode reads a size-limited JSON body into v and validates it. It writes
// the 400 response itself and reports whether the caller may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	if fe.Field() == "Cards" && fe.Tag() == "len" {
		return "exactly three cards are required"
	}
	return fmt.Sprintf("invalid field %s: failed %s", fe.Namespace(), fe.Tag())
}

func guestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(GuestIDHeader)); id != "" && len(id) <= maxGuestIDLen {
		return id
	}
	return httputil.ClientIP(r)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.SetSecurityHeaders(w)
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.config.Logger.Error("Panic serving request",
					entitlement.Field{Key: "path", Value: r.URL.Path},
					entitlement.Field{Key: "requestId", Value: middleware.GetReqID(r.Context())},
					entitlement.Field{Key: "panic", Value: fmt.Sprint(rec)})
				httputil.WriteError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
