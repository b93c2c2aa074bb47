package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/arcana/pkg/auth"
)

const (
	testIssuer   = "https://cognito-idp.eu-west-1.amazonaws.com/eu-west-1_test"
	testAudience = "client-123"
)

func jwksServer(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()
	payload := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(server.Close)
	return server
}

func claims(issuer string, exp time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   issuer,
		"aud":   testAudience,
		"sub":   "user-123",
		"email": "seeker@example.com",
		"exp":   exp.Unix(),
		"iat":   time.Now().Unix(),
	}
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, c jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	token.Header["kid"] = kid
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestVerifier_JWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server := jwksServer(t, key, "k1")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	v, err := auth.NewVerifier(ctx, auth.Config{Issuer: testIssuer, Audience: testAudience, JWKSURL: server.URL})
	require.NoError(t, err)

	got, err := v.Verify(signRS256(t, key, "k1", claims(testIssuer, time.Now().Add(time.Hour))))
	require.NoError(t, err)
	assert.Equal(t, "user-123", got.Subject)
	assert.Equal(t, "seeker@example.com", got.Email)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong key", signRS256(t, other, "k1", claims(testIssuer, time.Now().Add(time.Hour)))},
		{"wrong issuer", signRS256(t, key, "k1", claims("https://evil.example", time.Now().Add(time.Hour)))},
		{"expired", signRS256(t, key, "k1", claims(testIssuer, time.Now().Add(-time.Hour)))},
		{"garbage", "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestVerifier_HMAC(t *testing.T) {
	v, err := auth.NewVerifier(context.Background(), auth.Config{HMACSecret: "dev-secret"})
	require.NoError(t, err)

	sign := func(secret string, c jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}

	got, err := v.Verify(sign("dev-secret", claims("local", time.Now().Add(time.Hour))))
	require.NoError(t, err)
	assert.Equal(t, "user-123", got.Subject)

	_, err = v.Verify(sign("other", claims("local", time.Now().Add(time.Hour))))
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	noSub := claims("local", time.Now().Add(time.Hour))
	delete(noSub, "sub")
	_, err = v.Verify(sign("dev-secret", noSub))
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestNewVerifier_RequiresKeySource(t *testing.T) {
	_, err := auth.NewVerifier(context.Background(), auth.Config{})
	assert.ErrorIs(t, err, auth.ErrInvalidConfig)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		err    error
	}{
		{"Bearer abc", "abc", nil},
		{"bearer  abc ", "abc", nil},
		{"", "", auth.ErrMissingToken},
		{"Bearer ", "", auth.ErrMissingToken},
		{"Token abc", "", auth.ErrInvalidToken},
		{"abc", "", auth.ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := auth.BearerToken(tt.header)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClaimsContext(t *testing.T) {
	_, ok := auth.ClaimsFrom(context.Background())
	assert.False(t, ok)

	ctx := auth.WithClaims(context.Background(), &auth.Claims{Subject: "u1"})
	got, ok := auth.ClaimsFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", got.Subject)
}
