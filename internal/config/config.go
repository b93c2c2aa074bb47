// Package config loads the arcana process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends selectable with STORE.
const (
	StoreMemory    = "memory"
	StoreRedis     = "redis"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
	StoreCognito   = "cognito"
	StoreTiered    = "tiered"
)

// Config is the full process configuration.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"console"`

	// AllowTierUpdate exposes POST /subscription/update. Leave off in production.
	AllowTierUpdate bool `env:"ALLOW_TIER_UPDATE" envDefault:"false"`

	Store     StoreConfig     `envPrefix:"STORE_"`
	Breaker   BreakerConfig   `envPrefix:"BREAKER_"`
	Auth      AuthConfig      `envPrefix:"AUTH_"`
	OpenAI    OpenAIConfig    `envPrefix:"OPENAI_"`
	Stripe    StripeConfig    `envPrefix:"STRIPE_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
}

// StoreConfig selects and configures the profile store.
type StoreConfig struct {
	Backend string `env:"BACKEND" envDefault:"memory"`

	RedisURL       string `env:"REDIS_URL"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"arcana:"`

	PostgresDSN string `env:"POSTGRES_DSN"`

	FirestoreProject string `env:"FIRESTORE_PROJECT"`

	CognitoUserPoolID string `env:"COGNITO_USER_POOL_ID"`
	AWSRegion         string `env:"AWS_REGION"`

	// FlagTTL bounds how long a guest's free reading is remembered. Zero keeps it forever.
	FlagTTL time.Duration `env:"FLAG_TTL" envDefault:"0s"`
}

// BreakerConfig configures the circuit breaker around the profile store.
type BreakerConfig struct {
	Failures     int           `env:"FAILURES" envDefault:"5"`
	ResetTimeout time.Duration `env:"RESET_TIMEOUT" envDefault:"30s"`
}

// AuthConfig configures bearer token verification. The server requires one
// of JWKSURL, Issuer or HMACSecret.
type AuthConfig struct {
	Issuer     string `env:"ISSUER"`
	Audience   string `env:"AUDIENCE"`
	JWKSURL    string `env:"JWKS_URL"`
	HMACSecret string `env:"HMAC_SECRET"`
}

// OpenAIConfig configures the text generator.
type OpenAIConfig struct {
	APIKey  string `env:"API_KEY"`
	Model   string `env:"MODEL" envDefault:"gpt-4"`
	BaseURL string `env:"BASE_URL"`
}

// StripeConfig configures billing. An empty SecretKey disables checkout.
type StripeConfig struct {
	SecretKey     string `env:"SECRET_KEY"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	PriceBasic    string `env:"PRICE_BASIC"`
	PricePremium  string `env:"PRICE_PREMIUM"`
	AppURL        string `env:"APP_URL" envDefault:"http://localhost:3000"`
}

// RateLimitConfig caps requests per client IP on the public API.
type RateLimitConfig struct {
	Requests int           `env:"REQUESTS" envDefault:"60"`
	Window   time.Duration `env:"WINDOW" envDefault:"1m"`
}

// Load reads an optional .env file, then parses the environment into a Config
// and validates it. Variables already set in the environment win over .env.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the backend-specific settings.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat))
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Store.RedisURL == "" {
			errs = append(errs, errors.New("STORE_REDIS_URL is required for the redis store"))
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("STORE_POSTGRES_DSN is required for the postgres store"))
		}
	case StoreFirestore:
		if c.Store.FirestoreProject == "" {
			errs = append(errs, errors.New("STORE_FIRESTORE_PROJECT is required for the firestore store"))
		}
	case StoreCognito:
		if c.Store.CognitoUserPoolID == "" {
			errs = append(errs, errors.New("STORE_COGNITO_USER_POOL_ID is required for the cognito store"))
		}
	case StoreTiered:
		if c.Store.RedisURL == "" || c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("the tiered store needs STORE_REDIS_URL and STORE_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}

	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive"))
	}

	return errors.Join(errs...)
}
