// Package echo provides Echo middleware for reading admission
package echo

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

// EntitlementKey is the Echo context key holding the admitted entitlement
const EntitlementKey = "arcana.entitlement"

// UserIDExtractor extracts the user ID from an Echo context
// Return empty string if user is not authenticated
type UserIDExtractor func(c echo.Context) string

// Entitlements is the part of the entitlement service admission needs
type Entitlements interface {
	Load(ctx context.Context, userID string) (*entitlement.Entitlement, error)
	CanDoReading(ent *entitlement.Entitlement) bool
	Plans() entitlement.Plans
}

// Config holds middleware configuration
type Config struct {
	// Entitlements is the entitlement service (required)
	Entitlements Entitlements

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// OnExhausted is called when the user has no readings left
	// If nil, returns 429 JSON with upgrade: true
	OnExhausted func(c echo.Context, ent *entitlement.Entitlement) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error

	// OnError is called when the entitlement cannot be loaded
	// If nil, returns 503 Service Unavailable
	OnError func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that rejects users without readings left
func Middleware(cfg Config) echo.MiddlewareFunc {
	if cfg.Entitlements == nil {
		panic("arcana/echo: Config.Entitlements is required")
	}
	if cfg.GetUserID == nil {
		panic("arcana/echo: Config.GetUserID is required")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := cfg.GetUserID(c)
			if userID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}

			ent, err := cfg.Entitlements.Load(c.Request().Context(), userID)
			if err != nil {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "entitlement unavailable"})
			}

			if !cfg.Entitlements.CanDoReading(ent) {
				if cfg.OnExhausted != nil {
					return cfg.OnExhausted(c, ent)
				}
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":         "reading limit reached",
					"upgrade":       true,
					"readingsUsed":  ent.ReadingsUsed,
					"readingsLimit": entitlement.NullableLimit(ent.ReadingsLimit(cfg.Entitlements.Plans())),
				})
			}

			c.Set(EntitlementKey, ent)
			return next(c)
		}
	}
}

// EntitlementFrom returns the entitlement stored by Middleware
func EntitlementFrom(c echo.Context) (*entitlement.Entitlement, bool) {
	ent, ok := c.Get(EntitlementKey).(*entitlement.Entitlement)
	return ent, ok
}

// FromContext returns a UserIDExtractor that gets user ID from Echo context values
func FromContext(key string) UserIDExtractor {
	return func(c echo.Context) string {
		if val := c.Get(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}
