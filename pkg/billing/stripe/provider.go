package stripe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/arcana/internal/httputil"
	"github.com/mihaimyh/arcana/pkg/billing"
	"github.com/mihaimyh/arcana/pkg/entitlement"
)

const (
	providerName             = "stripe"
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config

	// PriceIDs maps paid tiers to Stripe Price IDs used for checkout.
	PriceIDs map[entitlement.Tier]string

	// AppURL is the public base URL checkout redirects back to.
	AppURL string

	// RateLimit caps webhook requests per client IP per RateLimitWindow.
	RateLimit       int
	RateLimitWindow time.Duration
}

// sessionCreator is the slice of the Stripe client used for checkout.
type sessionCreator interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
}

// Provider implements billing.Provider for Stripe
type Provider struct {
	reconciler    *billing.Reconciler
	rateLimiter   *httputil.RateLimiter
	sessions      sessionCreator
	webhookSecret string
	priceIDs      map[entitlement.Tier]string
	appURL        string
	logger        entitlement.Logger
	metrics       billing.Metrics
}

// NewProvider creates a new Stripe billing provider. An empty APIKey disables
// checkout; an empty WebhookSecret makes the webhook answer 503.
func NewProvider(config Config) (*Provider, error) {
	if config.Entitlements == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	logger := config.Logger
	if logger == nil {
		logger = &entitlement.NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	reconciler, err := billing.NewReconciler(providerName, config.Entitlements, logger, metrics)
	if err != nil {
		return nil, err
	}

	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimitRequests
	}
	if config.RateLimitWindow <= 0 {
		config.RateLimitWindow = defaultRateLimitWindow
	}

	p := &Provider{
		reconciler:    reconciler,
		rateLimiter:   httputil.NewRateLimiter(config.RateLimit, config.RateLimitWindow),
		webhookSecret: strings.TrimSpace(config.WebhookSecret),
		priceIDs:      make(map[entitlement.Tier]string, len(config.PriceIDs)),
		appURL:        strings.TrimRight(config.AppURL, "/"),
		logger:        logger,
		metrics:       metrics,
	}
	for tier, id := range config.PriceIDs {
		if id = strings.TrimSpace(id); id != "" {
			p.priceIDs[tier] = id
		}
	}

	if apiKey := strings.TrimSpace(config.APIKey); apiKey != "" {
		var client *stripe.Client
		if config.HTTPClient != nil {
			backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{HTTPClient: config.HTTPClient})
			client = stripe.NewClient(apiKey, stripe.WithBackends(backends))
		} else {
			client = stripe.NewClient(apiKey)
		}
		p.sessions = client.V1CheckoutSessions
	}

	return p, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the rate limited HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}

var _ billing.Provider = (*Provider)(nil)
