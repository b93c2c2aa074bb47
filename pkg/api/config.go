package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	httpmw "github.com/mihaimyh/arcana/middleware/http"
	"github.com/mihaimyh/arcana/pkg/billing"
	"github.com/mihaimyh/arcana/pkg/entitlement"
	"github.com/mihaimyh/arcana/pkg/generation"
	"github.com/mihaimyh/arcana/pkg/reading"
)

// Entitlements is the entitlement service surface the API uses
type Entitlements interface {
	reading.Entitlements
	UpdateTier(ctx context.Context, userID string, tier entitlement.Tier) (*entitlement.Entitlement, error)
	Plans() entitlement.Plans
}

// Config holds configuration for the API handler
type Config struct {
	// Entitlements is the entitlement service (required)
	Entitlements Entitlements

	// Generator produces reading text (required)
	Generator generation.Generator

	// GuestFlags remembers which guests used their free reading (required)
	GuestFlags reading.FlagStore

	// Verifier validates bearer tokens (required)
	Verifier httpmw.TokenVerifier

	// Billing handles checkout and the payment webhook
	// If nil, those routes answer 503
	Billing billing.Provider

	// Metrics is served at /metrics when set
	Metrics http.Handler

	// AllowTierUpdate enables POST /subscription/update, which sets a tier
	// without payment
	AllowTierUpdate bool

	Logger entitlement.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	var errs []error
	if c.Entitlements == nil {
		errs = append(errs, errors.New("entitlements is required"))
	}
	if c.Generator == nil {
		errs = append(errs, errors.New("generator is required"))
	}
	if c.GuestFlags == nil {
		errs = append(errs, errors.New("guest flags store is required"))
	}
	if c.Verifier == nil {
		errs = append(errs, errors.New("verifier is required"))
	}
	return errors.Join(errs...)
}

// NewHandler creates a new API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = &entitlement.NoopLogger{}
	}
	return &Handler{
		config:   config,
		reader:   reading.NewReader(config.Generator, config.Logger),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}
