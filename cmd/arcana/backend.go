package main

import (
	"context"
	"errors"
	"fmt"

	gcpfirestore "cloud.google.com/go/firestore"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mihaimyh/arcana/internal/config"
	"github.com/mihaimyh/arcana/pkg/entitlement"
	entzerolog "github.com/mihaimyh/arcana/pkg/entitlement/logger/zerolog"
	"github.com/mihaimyh/arcana/pkg/reading"
	"github.com/mihaimyh/arcana/storage/cognito"
	"github.com/mihaimyh/arcana/storage/firestore"
	"github.com/mihaimyh/arcana/storage/memory"
	"github.com/mihaimyh/arcana/storage/postgres"
	"github.com/mihaimyh/arcana/storage/redis"
	"github.com/mihaimyh/arcana/storage/tiered"
)

// backend is the opened profile store and guest flag store.
type backend struct {
	attrs   entitlement.AttributeStore
	flags   reading.FlagStore
	closers []func() error
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// openBackend connects the store selected by STORE_BACKEND.
func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backend, error) {
	b := &backend{}
	sc := cfg.Store

	switch sc.Backend {
	case config.StoreMemory:
		store := memory.New()
		b.attrs, b.flags = store, store

	case config.StoreRedis:
		store, err := b.openRedis(ctx, sc)
		if err != nil {
			return nil, err
		}
		b.attrs, b.flags = store, store

	case config.StorePostgres:
		store, err := b.openPostgres(ctx, sc, logger)
		if err != nil {
			return nil, err
		}
		b.attrs, b.flags = store, store

	case config.StoreFirestore:
		client, err := gcpfirestore.NewClient(ctx, sc.FirestoreProject)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		store, err := firestore.New(client, firestore.Config{})
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.attrs, b.flags = store, store

	case config.StoreCognito:
		var opts []func(*awsconfig.LoadOptions) error
		if sc.AWSRegion != "" {
			opts = append(opts, awsconfig.WithRegion(sc.AWSRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		store, err := cognito.New(cognitoidentityprovider.NewFromConfig(awsCfg), cognito.Config{UserPoolID: sc.CognitoUserPoolID})
		if err != nil {
			return nil, err
		}
		b.attrs = store

		// Cognito cannot hold guest flags.
		if sc.RedisURL != "" {
			flags, err := b.openRedis(ctx, sc)
			if err != nil {
				return nil, err
			}
			b.flags = flags
		} else {
			logger.Warn().Msg("no STORE_REDIS_URL for guest flags, keeping them in memory")
			b.flags = memory.New()
		}

	case config.StoreTiered:
		hot, err := b.openRedis(ctx, sc)
		if err != nil {
			return nil, err
		}
		cold, err := b.openPostgres(ctx, sc, logger)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		store, err := tiered.New(tiered.Config{
			Hot:            hot,
			Cold:           cold,
			AsyncUsageSync: true,
			AsyncErrorHandler: func(err error) {
				logger.Error().Err(err).Msg("tiered store sync failed")
			},
		})
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.closers = append(b.closers, store.Close)
		b.attrs, b.flags = store, store

	default:
		return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}

	logger.Info().Str("backend", sc.Backend).Msg("profile store ready")
	return b, nil
}

func (b *backend) openRedis(ctx context.Context, sc config.StoreConfig) (*redis.Store, error) {
	opts, err := goredis.ParseURL(sc.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	store, err := redis.New(client, redis.Config{KeyPrefix: sc.RedisKeyPrefix, FlagTTL: sc.FlagTTL})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	b.closers = append(b.closers, client.Close)
	return store, nil
}

func (b *backend) openPostgres(ctx context.Context, sc config.StoreConfig, logger zerolog.Logger) (*postgres.Store, error) {
	pgCfg := postgres.DefaultConfig()
	pgCfg.ConnectionString = sc.PostgresDSN
	pgCfg.Logger = entzerolog.NewLogger(logger.With().Str("store", "postgres").Logger())

	store, err := postgres.New(ctx, pgCfg)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, func() error {
		store.Close()
		return nil
	})
	return store, nil
}
