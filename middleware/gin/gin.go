// Package gin provides Gin middleware for reading admission
package gin

import (
	"context"
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

// EntitlementKey is the Gin context key holding the admitted entitlement
const EntitlementKey = "arcana.entitlement"

// UserIDExtractor extracts the user ID from a Gin context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *gongin.Context) string

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
	OnExhausted func(c *gongin.Context, ent *entitlement.Entitlement)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when the entitlement cannot be loaded
	// If nil, returns 503 Service Unavailable
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that rejects users without readings left
func Middleware(cfg Config) gongin.HandlerFunc {
	if cfg.Entitlements == nil {
		panic("arcana/gin: Config.Entitlements is required")
	}
	if cfg.GetUserID == nil {
		panic("arcana/gin: Config.GetUserID is required")
	}

	return func(c *gongin.Context) {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.JSON(http.StatusUnauthorized, gongin.H{"error": "unauthorized"})
			}
			c.Abort()
			return
		}

		ent, err := cfg.Entitlements.Load(c.Request.Context(), userID)
		if err != nil {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				c.JSON(http.StatusServiceUnavailable, gongin.H{"error": "entitlement unavailable"})
			}
			c.Abort()
			return
		}

		if !cfg.Entitlements.CanDoReading(ent) {
			if cfg.OnExhausted != nil {
				cfg.OnExhausted(c, ent)
			} else {
				c.JSON(http.StatusTooManyRequests, gongin.H{
					"error":         "reading limit reached",
					"upgrade":       true,
					"readingsUsed":  ent.ReadingsUsed,
					"readingsLimit": entitlement.NullableLimit(ent.ReadingsLimit(cfg.Entitlements.Plans())),
				})
			}
			c.Abort()
			return
		}

		c.Set(EntitlementKey, ent)
		c.Next()
	}
}

// EntitlementFrom returns the entitlement stored by Middleware
func EntitlementFrom(c *gongin.Context) (*entitlement.Entitlement, bool) {
	if val, exists := c.Get(EntitlementKey); exists {
		ent, ok := val.(*entitlement.Entitlement)
		return ent, ok
	}
	return nil, false
}

// FromContext returns a UserIDExtractor that gets user ID from Gin context values
// set by an upstream auth middleware via c.Set(key, userID)
func FromContext(key string) UserIDExtractor {
	return func(c *gongin.Context) string {
		if val, exists := c.Get(key); exists {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}
