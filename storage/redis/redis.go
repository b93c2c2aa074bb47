// Package redis provides a Redis implementation of entitlement.AttributeStore.
// Profiles are stored as hashes so usage can be incremented server side.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

// Store implements entitlement.AttributeStore, entitlement.Incrementer and the
// guest flag store using Redis
type Store struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "arcana:")
	KeyPrefix string

	// FlagTTL is the TTL for guest flags (0 = no expiration)
	FlagTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "arcana:",
		FlagTTL:   0,
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "arcana:"
	}
	return &Store{client: client, config: config}, nil
}

// GetAttributes implements entitlement.AttributeStore
func (s *Store) GetAttributes(ctx context.Context, userID string) (entitlement.Attributes, error) {
	if userID == "" {
		return nil, entitlement.ErrInvalidUserID
	}
	values, err := s.client.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get attributes: %w", err)
	}
	return entitlement.Attributes(values), nil
}

// SetAttributes implements entitlement.AttributeStore
func (s *Store) SetAttributes(ctx context.Context, userID string, attrs entitlement.Attributes) error {
	if userID == "" {
		return entitlement.ErrInvalidUserID
	}
	if len(attrs) == 0 {
		return nil
	}

	values := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		values[k] = v
	}
	if err := s.client.HSet(ctx, s.userKey(userID), values).Err(); err != nil {
		return fmt.Errorf("failed to set attributes: %w", err)
	}
	return nil
}

// patchScript runs HSET only when the hash already exists.
var patchScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`)

// PatchAttributes merges attrs into an existing profile hash. It reports
// false and writes nothing when the hash does not exist.
func (s *Store) PatchAttributes(ctx context.Context, userID string, attrs entitlement.Attributes) (bool, error) {
	if userID == "" {
		return false, entitlement.ErrInvalidUserID
	}
	if len(attrs) == 0 {
		return false, nil
	}

	args := make([]interface{}, 0, 2*len(attrs))
	for k, v := range attrs {
		args = append(args, k, v)
	}
	n, err := patchScript.Run(ctx, s.client, []string{s.userKey(userID)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("failed to patch attributes: %w", err)
	}
	return n == 1, nil
}

// DeleteAttributes removes the profile hash.
func (s *Store) DeleteAttributes(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete attributes: %w", err)
	}
	return nil
}

// IncrementAttribute implements entitlement.Incrementer using HINCRBY
func (s *Store) IncrementAttribute(ctx context.Context, userID, name string, delta int) (int, error) {
	if userID == "" {
		return 0, entitlement.ErrInvalidUserID
	}
	n, err := s.client.HIncrBy(ctx, s.userKey(userID), name, int64(delta)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", name, err)
	}
	return int(n), nil
}

// HasFlag reports whether the flag was set
func (s *Store) HasFlag(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.flagKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read flag: %w", err)
	}
	return n > 0, nil
}

// SetFlag sets a flag. Setting an existing flag is a no-op.
func (s *Store) SetFlag(ctx context.Context, key string) error {
	if err := s.client.SetNX(ctx, s.flagKey(key), time.Now().UTC().Format(time.RFC3339), s.config.FlagTTL).Err(); err != nil {
		return fmt.Errorf("failed to set flag: %w", err)
	}
	return nil
}

func (s *Store) userKey(userID string) string {
	return s.config.KeyPrefix + "user:" + userID
}

func (s *Store) flagKey(key string) string {
	return s.config.KeyPrefix + "flag:" + key
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
