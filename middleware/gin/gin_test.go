package gin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/arcana/pkg/entitlement"
	"github.com/mihaimyh/arcana/storage/memory"
)

func setupRouter(t *testing.T) (*gongin.Engine, *memory.Store) {
	t.Helper()
	gongin.SetMode(gongin.TestMode)

	store := memory.New()
	svc, err := entitlement.NewService(store, entitlement.Config{})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	r := gongin.New()
	r.Use(Middleware(Config{Entitlements: svc, GetUserID: FromHeader("X-User-ID")}))
	r.POST("/reading", func(c *gongin.Context) {
		ent, ok := EntitlementFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, string(ent.Tier))
	})
	return r, store
}

func TestMiddleware(t *testing.T) {
	r, store := setupRouter(t)
	now := time.Now().UTC()
	if err := store.SetAttributes(context.Background(), "spent", entitlement.Attributes{
		entitlement.AttrTier:         "free",
		entitlement.AttrReadingsUsed: "5",
		entitlement.AttrPeriodStart:  now.AddDate(0, 0, -1).Format(time.RFC3339),
		entitlement.AttrPeriodEnd:    now.AddDate(0, 0, 10).Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("Failed to seed: %v", err)
	}

	tests := []struct {
		name   string
		userID string
		want   int
	}{
		{"new user", "fresh", http.StatusOK},
		{"exhausted", "spent", http.StatusTooManyRequests},
		{"anonymous", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/reading", nil)
			if tt.userID != "" {
				req.Header.Set("X-User-ID", tt.userID)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}
