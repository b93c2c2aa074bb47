package auth

import "context"

type ctxKey int

const claimsKey ctxKey = iota

// Claims are the verified token details the app uses.
type Claims struct {
	Subject string
	Email   string
	Issuer  string
	Raw     map[string]any
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFrom returns the claims stored in ctx.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}
