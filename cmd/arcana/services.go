package main

import (
	"github.com/rs/zerolog"

	"github.com/mihaimyh/arcana/internal/config"
	"github.com/mihaimyh/arcana/pkg/entitlement"
	entzerolog "github.com/mihaimyh/arcana/pkg/entitlement/logger/zerolog"
	"github.com/mihaimyh/arcana/pkg/generation"
)

// newEntitlementService wraps the store in a circuit breaker and builds the
// service with the configured Stripe price ids.
func newEntitlementService(cfg *config.Config, store entitlement.AttributeStore, logger zerolog.Logger,
	metrics entitlement.Metrics) (*entitlement.Service, error) {
	if metrics == nil {
		metrics = &entitlement.NoopMetrics{}
	}

	breaker := entitlement.NewDefaultCircuitBreaker(cfg.Breaker.Failures, cfg.Breaker.ResetTimeout,
		func(state entitlement.CircuitBreakerState) {
			logger.Warn().Str("state", string(state)).Msg("profile store circuit breaker changed state")
			metrics.RecordCircuitBreakerStateChange(string(state))
		})

	plans := entitlement.DefaultPlans().WithPriceIDs(priceIDs(cfg))

	return entitlement.NewService(entitlement.NewCircuitBreakerStore(store, breaker), entitlement.Config{
		Plans:   plans,
		Logger:  entzerolog.NewLogger(logger.With().Str("service", "entitlement").Logger()),
		Metrics: metrics,
	})
}

func priceIDs(cfg *config.Config) map[entitlement.Tier]string {
	return map[entitlement.Tier]string{
		entitlement.TierBasic:   cfg.Stripe.PriceBasic,
		entitlement.TierPremium: cfg.Stripe.PricePremium,
	}
}

func newGenerator(cfg *config.Config, logger zerolog.Logger) *generation.OpenAI {
	if cfg.OpenAI.APIKey == "" {
		logger.Warn().Msg("OPENAI_API_KEY is empty, readings will fail upstream")
	}
	return generation.NewOpenAI(generation.OpenAIConfig{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
	})
}
