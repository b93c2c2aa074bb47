package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mihaimyh/arcana/internal/config"
	"github.com/mihaimyh/arcana/internal/httputil"
	"github.com/mihaimyh/arcana/pkg/api"
	"github.com/mihaimyh/arcana/pkg/auth"
	"github.com/mihaimyh/arcana/pkg/billing"
	billprom "github.com/mihaimyh/arcana/pkg/billing/metrics/prometheus"
	"github.com/mihaimyh/arcana/pkg/billing/stripe"
	entzerolog "github.com/mihaimyh/arcana/pkg/entitlement/logger/zerolog"
	entprom "github.com/mihaimyh/arcana/pkg/entitlement/metrics/prometheus"
)

const metricsNamespace = "arcana"

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg, os.Stderr)
	logger.Info().Str("version", Version).Msg("starting arcana")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	entMetrics := entprom.NewMetrics(reg, metricsNamespace)
	billMetrics := billprom.NewMetrics(reg, metricsNamespace)

	verifier, err := auth.NewVerifier(ctx, auth.Config{
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		JWKSURL:    cfg.Auth.JWKSURL,
		HMACSecret: cfg.Auth.HMACSecret,
	})
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close store")
		}
	}()

	svc, err := newEntitlementService(cfg, be.attrs, logger, entMetrics)
	if err != nil {
		return err
	}

	billingLogger := entzerolog.NewLogger(logger.With().Str("service", "billing").Logger())
	provider, err := stripe.NewProvider(stripe.Config{
		Config: billing.Config{
			Entitlements:  svc,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			APIKey:        cfg.Stripe.SecretKey,
			Logger:        billingLogger,
			Metrics:       billMetrics,
		},
		PriceIDs: priceIDs(cfg),
		AppURL:   cfg.Stripe.AppURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create billing provider: %w", err)
	}

	handler, err := api.NewHandler(api.Config{
		Entitlements:    svc,
		Generator:       newGenerator(cfg, logger),
		GuestFlags:      be.flags,
		Verifier:        verifier,
		Billing:         provider,
		Metrics:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		AllowTierUpdate: cfg.AllowTierUpdate,
		Logger:          entzerolog.NewLogger(logger.With().Str("service", "api").Logger()),
	})
	if err != nil {
		return err
	}

	limiter := httputil.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           limiter.Middleware(handler.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(cfg.RateLimit.Window)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				limiter.Cleanup()
			}
		}
	})

	return g.Wait()
}
