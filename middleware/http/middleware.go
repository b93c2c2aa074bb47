// Package http provides net/http middleware for authentication and reading admission
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/mihaimyh/arcana/internal/httputil"
	"github.com/mihaimyh/arcana/pkg/auth"
	"github.com/mihaimyh/arcana/pkg/entitlement"
)

// UserIDExtractor extracts the user ID from an HTTP request
// Return empty string if user is not authenticated
type UserIDExtractor func(r *http.Request) string

// Entitlements is the part of the entitlement service admission needs
type Entitlements interface {
	Load(ctx context.Context, userID string) (*entitlement.Entitlement, error)
	CanDoReading(ent *entitlement.Entitlement) bool
	Plans() entitlement.Plans
}

// TokenVerifier validates a bearer token
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Config holds admission middleware configuration
type Config struct {
	// Entitlements is the entitlement service (required)
	Entitlements Entitlements

	// GetUserID extracts user ID from request. Default: FromClaims()
	GetUserID UserIDExtractor

	// OnExhausted is called when the user has no readings left
	// If nil, returns 429 JSON with upgrade: true
	OnExhausted func(w http.ResponseWriter, r *http.Request, ent *entitlement.Entitlement)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 JSON
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when the entitlement cannot be loaded
	// If nil, returns 503 JSON
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// ExhaustedResponse is the default body for an exhausted user
type ExhaustedResponse struct {
	httputil.ErrorResponse
	Tier          entitlement.Tier `json:"tier"`
	ReadingsUsed  int              `json:"readingsUsed"`
	ReadingsLimit *int             `json:"readingsLimit"`
}

// Admission loads the caller's entitlement into the request context and
// rejects users without readings left. It does not record usage; that
// happens once a reading has been produced.
func Admission(config Config) func(http.Handler) http.Handler {
	if config.Entitlements == nil {
		panic("arcana/middleware/http: Config.Entitlements is required")
	}
	if config.GetUserID == nil {
		config.GetUserID = FromClaims()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := config.GetUserID(r)
			if userID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
				}
				return
			}

			ent, err := config.Entitlements.Load(r.Context(), userID)
			if err != nil {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					httputil.WriteError(w, http.StatusServiceUnavailable, "entitlement unavailable")
				}
				return
			}

			if !config.Entitlements.CanDoReading(ent) {
				if config.OnExhausted != nil {
					config.OnExhausted(w, r, ent)
				} else {
					_ = httputil.WriteJSON(w, http.StatusTooManyRequests, ExhaustedResponse{
						ErrorResponse: httputil.ErrorResponse{Error: "reading limit reached", Upgrade: true},
						Tier:          ent.Tier,
						ReadingsUsed:  ent.ReadingsUsed,
						ReadingsLimit: entitlement.NullableLimit(ent.ReadingsLimit(config.Entitlements.Plans())),
					})
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithEntitlement(r.Context(), ent)))
		})
	}
}

// Authenticate verifies the bearer token and stores its claims in the request
// context. With required set, requests without a token get 401; otherwise
// they pass through anonymously. A present but invalid token is always 401.
func Authenticate(verifier TokenVerifier, required bool) func(http.Handler) http.Handler {
	if verifier == nil {
		panic("arcana/middleware/http: verifier is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if errors.Is(err, auth.ErrMissingToken) && !required {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				httputil.WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				httputil.WriteError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

// ContextKey is a type for context keys
type ContextKey string

const (
	// EntitlementKey is the context key for the admitted entitlement
	EntitlementKey ContextKey = "arcana:entitlement"
)

// WithEntitlement adds the entitlement to ctx
func WithEntitlement(ctx context.Context, ent *entitlement.Entitlement) context.Context {
	return context.WithValue(ctx, EntitlementKey, ent)
}

// EntitlementFrom returns the entitlement stored by Admission
func EntitlementFrom(ctx context.Context) (*entitlement.Entitlement, bool) {
	ent, ok := ctx.Value(EntitlementKey).(*entitlement.Entitlement)
	return ent, ok && ent != nil
}

// FromClaims returns an UserIDExtractor that uses the verified token subject
func FromClaims() UserIDExtractor {
	return func(r *http.Request) string {
		if claims, ok := auth.ClaimsFrom(r.Context()); ok {
			return claims.Subject
		}
		return ""
	}
}

// FromHeader returns an UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}
