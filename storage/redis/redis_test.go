package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

// setupTestRedis creates a Redis client for testing
// Requires Redis running on localhost:6379
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use DB 15 for testing
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	// Clear test database
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test database: %v", err)
	}

	return client
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		client     redis.UniversalClient
		config     Config
		wantErr    bool
		wantPrefix string
	}{
		{
			name:    "nil client",
			client:  nil,
			config:  DefaultConfig(),
			wantErr: true,
		},
		{
			name:       "default config",
			client:     redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
			config:     DefaultConfig(),
			wantPrefix: "arcana:",
		},
		{
			name:       "custom prefix",
			client:     redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
			config:     Config{KeyPrefix: "test:", FlagTTL: time.Hour},
			wantPrefix: "test:",
		},
		{
			name:       "empty key prefix uses default",
			client:     redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
			config:     Config{},
			wantPrefix: "arcana:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(tt.client, tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && store.config.KeyPrefix != tt.wantPrefix {
				t.Errorf("KeyPrefix = %q, want %q", store.config.KeyPrefix, tt.wantPrefix)
			}
		})
	}
}

func TestStore_Attributes(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store, err := New(client, DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	ctx := context.Background()

	attrs, err := store.GetAttributes(ctx, "missing")
	if err != nil {
		t.Fatalf("GetAttributes() error = %v", err)
	}
	if len(attrs) != 0 {
		t.Errorf("Expected no attributes, got %v", attrs)
	}

	if err := store.SetAttributes(ctx, "user1", entitlement.Attributes{
		entitlement.AttrTier:         "basic",
		entitlement.AttrReadingsUsed: "2",
	}); err != nil {
		t.Fatalf("SetAttributes() error = %v", err)
	}
	if err := store.SetAttributes(ctx, "user1", entitlement.Attributes{entitlement.AttrStatus: "active"}); err != nil {
		t.Fatalf("SetAttributes() error = %v", err)
	}

	attrs, err = store.GetAttributes(ctx, "user1")
	if err != nil {
		t.Fatalf("GetAttributes() error = %v", err)
	}
	if attrs[entitlement.AttrTier] != "basic" || attrs[entitlement.AttrStatus] != "active" {
		t.Errorf("Expected merged attributes, got %v", attrs)
	}

	if _, err := store.GetAttributes(ctx, ""); err != entitlement.ErrInvalidUserID {
		t.Errorf("Expected ErrInvalidUserID, got %v", err)
	}
}

func TestStore_PatchAttributes(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store, err := New(client, DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	ctx := context.Background()

	ok, err := store.PatchAttributes(ctx, "user1", entitlement.Attributes{entitlement.AttrReadingsUsed: "1"})
	if err != nil {
		t.Fatalf("PatchAttributes() error = %v", err)
	}
	if ok {
		t.Error("Expected no patch for a missing hash")
	}
	if n, _ := client.Exists(ctx, "arcana:user:user1").Result(); n != 0 {
		t.Error("Expected patch not to create the hash")
	}

	if err := store.SetAttributes(ctx, "user1", entitlement.Attributes{entitlement.AttrTier: "premium"}); err != nil {
		t.Fatalf("SetAttributes() error = %v", err)
	}
	ok, err = store.PatchAttributes(ctx, "user1", entitlement.Attributes{entitlement.AttrReadingsUsed: "4"})
	if err != nil || !ok {
		t.Fatalf("PatchAttributes() = %v, %v; want true, nil", ok, err)
	}
	attrs, _ := store.GetAttributes(ctx, "user1")
	if attrs[entitlement.AttrTier] != "premium" || attrs[entitlement.AttrReadingsUsed] != "4" {
		t.Errorf("Expected merged attributes, got %v", attrs)
	}

	if err := store.DeleteAttributes(ctx, "user1"); err != nil {
		t.Fatalf("DeleteAttributes() error = %v", err)
	}
	if attrs, _ := store.GetAttributes(ctx, "user1"); len(attrs) != 0 {
		t.Errorf("Expected hash to be deleted, got %v", attrs)
	}
}

func TestStore_IncrementAttributeConcurrent(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store, _ := New(client, DefaultConfig())
	ctx := context.Background()
	_ = store.SetAttributes(ctx, "user1", entitlement.Attributes{entitlement.AttrReadingsUsed: "3"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.IncrementAttribute(ctx, "user1", entitlement.AttrReadingsUsed, 1); err != nil {
				t.Errorf("IncrementAttribute() error = %v", err)
			}
		}()
	}
	wg.Wait()

	attrs, _ := store.GetAttributes(ctx, "user1")
	if attrs[entitlement.AttrReadingsUsed] != "13" {
		t.Errorf("Expected 13 readings used, got %s", attrs[entitlement.AttrReadingsUsed])
	}
}

func TestStore_Flags(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store, _ := New(client, Config{FlagTTL: time.Minute})
	ctx := context.Background()

	ok, err := store.HasFlag(ctx, "guest_reading_completed:g1")
	if err != nil || ok {
		t.Fatalf("HasFlag() = %v, %v; want false, nil", ok, err)
	}
	if err := store.SetFlag(ctx, "guest_reading_completed:g1"); err != nil {
		t.Fatalf("SetFlag() error = %v", err)
	}
	if err := store.SetFlag(ctx, "guest_reading_completed:g1"); err != nil {
		t.Fatalf("SetFlag() twice error = %v", err)
	}
	ok, _ = store.HasFlag(ctx, "guest_reading_completed:g1")
	if !ok {
		t.Error("Expected flag to be set")
	}

	ttl := client.TTL(ctx, "arcana:flag:guest_reading_completed:g1").Val()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("Expected TTL within a minute, got %v", ttl)
	}
}

func TestStore_WithService(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store, _ := New(client, DefaultConfig())
	svc, err := entitlement.NewService(store, entitlement.Config{})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := svc.RecordUsage(ctx, "user1"); err != nil {
			t.Fatalf("RecordUsage() error = %v", err)
		}
	}
	ent, err := svc.Load(ctx, "user1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ent.ReadingsUsed != 2 || ent.Tier != entitlement.TierFree {
		t.Errorf("Unexpected entitlement: %+v", ent)
	}
}
