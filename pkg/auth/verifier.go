// Package auth verifies bearer tokens from the identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

var (
	// ErrMissingToken is returned when no bearer token is present.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidConfig is returned when neither a JWKS URL nor a secret is set.
	ErrInvalidConfig = errors.New("invalid auth config")
)

// Config selects how tokens are verified. JWKSURL takes precedence over
// HMACSecret. Issuer and Audience are checked when set.
type Config struct {
	Issuer   string
	Audience string

	// JWKSURL serves the RS256 signing keys. For Cognito this is
	// <issuer>/.well-known/jwks.json and is derived when empty.
	JWKSURL string

	// HMACSecret verifies HS256 tokens. Intended for development.
	HMACSecret string
}

// Verifier validates JWTs and extracts Claims.
type Verifier struct {
	keyfunc jwt.Keyfunc
	parser  *jwt.Parser
}

// NewVerifier builds a verifier from config. The context bounds the JWKS
// background refresh.
func NewVerifier(ctx context.Context, config Config) (*Verifier, error) {
	jwksURL := strings.TrimSpace(config.JWKSURL)
	issuer := strings.TrimRight(strings.TrimSpace(config.Issuer), "/")
	if jwksURL == "" && config.HMACSecret == "" && issuer != "" {
		jwksURL = issuer + "/.well-known/jwks.json"
	}

	switch {
	case jwksURL != "":
		kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
		if err != nil {
			return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
		}
		return newVerifier(config, kf.Keyfunc,
			jwt.SigningMethodRS256.Name, jwt.SigningMethodRS384.Name, jwt.SigningMethodRS512.Name), nil
	case config.HMACSecret != "":
		secret := []byte(config.HMACSecret)
		kf := func(*jwt.Token) (interface{}, error) { return secret, nil }
		return newVerifier(config, kf, jwt.SigningMethodHS256.Name), nil
	default:
		return nil, fmt.Errorf("%w: a JWKS URL, issuer or HMAC secret is required", ErrInvalidConfig)
	}
}

func newVerifier(config Config, kf jwt.Keyfunc, methods ...string) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	return &Verifier{keyfunc: kf, parser: jwt.NewParser(opts...)}
}

// Verify parses and validates a token.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := v.parser.Parse(tokenString, v.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims := &Claims{
		Subject: readString(mapClaims, "sub"),
		Email:   readString(mapClaims, "email"),
		Issuer:  readString(mapClaims, "iss"),
		Raw:     mapClaims,
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token missing sub", ErrInvalidToken)
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: malformed authorization header", ErrInvalidToken)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}
