// Package postgres provides a PostgreSQL implementation of entitlement.AttributeStore.
// Attributes are stored one row per (user, name), so merges are upserts and
// usage increments are a single atomic UPDATE ... RETURNING.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements entitlement.AttributeStore, entitlement.Incrementer and the
// guest flag store using PostgreSQL
type Store struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// AutoMigrate applies the embedded schema migrations in New
	AutoMigrate bool

	Logger entitlement.Logger
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		AutoMigrate:     true,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if config.Logger == nil {
		config.Logger = &entitlement.NoopLogger{}
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{pool: pool, config: config}
	if config.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// Migrate applies the embedded goose migrations
func (s *Store) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	// goose works on database/sql; share the pool's connections
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		s.config.Logger.Info("applied migration",
			entitlement.Field{Key: "source", Value: r.Source.Path},
			entitlement.Field{Key: "duration", Value: r.Duration.String()},
		)
	}
	return nil
}

// Close closes the PostgreSQL connection pool
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks if the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetAttributes implements entitlement.AttributeStore
func (s *Store) GetAttributes(ctx context.Context, userID string) (entitlement.Attributes, error) {
	if userID == "" {
		return nil, entitlement.ErrInvalidUserID
	}

	rows, err := s.pool.Query(ctx,
		`SELECT name, value FROM user_attributes WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attributes: %w", err)
	}
	defer rows.Close()

	attrs := entitlement.Attributes{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan attribute: %w", err)
		}
		attrs[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read attributes: %w", err)
	}
	return attrs, nil
}

// SetAttributes implements entitlement.AttributeStore
func (s *Store) SetAttributes(ctx context.Context, userID string, attrs entitlement.Attributes) error {
	if userID == "" {
		return entitlement.ErrInvalidUserID
	}
	if len(attrs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for name, value := range attrs {
		batch.Queue(
			`INSERT INTO user_attributes (user_id, name, value, updated_at)
				VALUES ($1, $2, $3, NOW())
				ON CONFLICT (user_id, name) DO UPDATE
				SET value = EXCLUDED.value, updated_at = NOW()`,
			userID, name, value)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("failed to set attributes: %w", err)
	}
	return nil
}

// IncrementAttribute implements entitlement.Incrementer. The row lock taken
// by the upsert serializes concurrent increments of the same attribute.
func (s *Store) IncrementAttribute(ctx context.Context, userID, name string, delta int) (int, error) {
	if userID == "" {
		return 0, entitlement.ErrInvalidUserID
	}

	var value string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO user_attributes (user_id, name, value, updated_at)
			VALUES ($1, $2, $3::text, NOW())
			ON CONFLICT (user_id, name) DO UPDATE
			SET value = (COALESCE(NULLIF(user_attributes.value, ''), '0')::bigint + $4)::text,
				updated_at = NOW()
			RETURNING value`,
		userID, name, strconv.Itoa(delta), delta).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", name, err)
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("attribute %s is not numeric: %w", name, err)
	}
	return n, nil
}

// HasFlag reports whether the flag was set
func (s *Store) HasFlag(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM flags WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to read flag: %w", err)
	}
	return exists, nil
}

// SetFlag sets a flag. Setting an existing flag is a no-op.
func (s *Store) SetFlag(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO flags (key) VALUES ($1) ON CONFLICT (key) DO NOTHING`, key)
	if err != nil {
		return fmt.Errorf("failed to set flag: %w", err)
	}
	return nil
}
