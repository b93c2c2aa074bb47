// Package fiber provides Fiber middleware for reading admission
package fiber

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

// EntitlementKey is the Fiber locals key holding the admitted entitlement
const EntitlementKey = "arcana.entitlement"

// UserIDExtractor extracts the user ID from a Fiber context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *fiber.Ctx) string

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
	OnExhausted func(c *fiber.Ctx, ent *entitlement.Entitlement) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when the entitlement cannot be loaded
	// If nil, returns 503 Service Unavailable
	OnError func(c *fiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that rejects users without readings left
func Middleware(cfg Config) fiber.Handler {
	if cfg.Entitlements == nil {
		panic("arcana/fiber: Config.Entitlements is required")
	}
	if cfg.GetUserID == nil {
		panic("arcana/fiber: Config.GetUserID is required")
	}

	return func(c *fiber.Ctx) error {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}

		ent, err := cfg.Entitlements.Load(c.UserContext(), userID)
		if err != nil {
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "entitlement unavailable"})
		}

		if !cfg.Entitlements.CanDoReading(ent) {
			if cfg.OnExhausted != nil {
				return cfg.OnExhausted(c, ent)
			}
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":         "reading limit reached",
				"upgrade":       true,
				"readingsUsed":  ent.ReadingsUsed,
				"readingsLimit": entitlement.NullableLimit(ent.ReadingsLimit(cfg.Entitlements.Plans())),
			})
		}

		c.Locals(EntitlementKey, ent)
		return c.Next()
	}
}

// EntitlementFrom returns the entitlement stored by Middleware
func EntitlementFrom(c *fiber.Ctx) (*entitlement.Entitlement, bool) {
	ent, ok := c.Locals(EntitlementKey).(*entitlement.Entitlement)
	return ent, ok
}

// FromLocals returns a UserIDExtractor that gets user ID from Fiber locals
// set by an upstream auth middleware via c.Locals(key, userID)
func FromLocals(key string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		if val := c.Locals(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
// Fiber v2 uses c.Get() for headers (not c.GetHeader())
func FromHeader(headerName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}
