package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/weathervane/weathervane/internal/adapter/chain"
	wvhttp "github.com/weathervane/weathervane/internal/adapter/http"
	"github.com/weathervane/weathervane/internal/adapter/meteoblue"
	"github.com/weathervane/weathervane/internal/adapter/natskv"
	"github.com/weathervane/weathervane/internal/adapter/otel"
	"github.com/weathervane/weathervane/internal/adapter/postgres"
	"github.com/weathervane/weathervane/internal/adapter/ristretto"
	"github.com/weathervane/weathervane/internal/adapter/ws"
	"github.com/weathervane/weathervane/internal/config"
	domcache "github.com/weathervane/weathervane/internal/domain/cache"
	"github.com/weathervane/weathervane/internal/logger"
	"github.com/weathervane/weathervane/internal/middleware"
	"github.com/weathervane/weathervane/internal/port/cache"
	"github.com/weathervane/weathervane/internal/resilience"
	"github.com/weathervane/weathervane/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLogger := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer closeLogger.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"strategy", cfg.Cache.Strategy,
		"update_interval_hours", cfg.Cache.UpdateIntervalHrs,
		"memory_tier", cfg.Cache.MemoryTier,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	shutdownOtel, err := otel.Setup(ctx, cfg.Otel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}
	bucket, err := natskv.EnsureBucket(ctx, js, cfg.Cache.KVBucketMaxAge)
	if err != nil {
		return fmt.Errorf("kv bucket: %w", err)
	}
	slog.Info("nats kv ready", "url", cfg.NATS.URL)

	// --- Cache tiers, fastest first ---

	var tiers []cache.Tier
	if cfg.Cache.MemoryTier {
		mem, err := ristretto.New(cfg.Cache.MemoryMaxSizeMB << 20)
		if err != nil {
			return fmt.Errorf("memory tier: %w", err)
		}
		defer mem.Close()
		tiers = append(tiers, mem)
	}
	tiers = append(tiers, natskv.New(bucket))

	tierChain := chain.New(cfg.Cache.PromoteTTL, tiers...)
	store := postgres.NewStore(pool)

	// --- Upstream client ---

	client := meteoblue.NewClient(cfg.Weather.BaseURL, cfg.Weather.APIKey)
	client.SetBreaker(resilience.New(cfg.Breaker.MaxFailures, cfg.Breaker.Cooldown))

	// --- Services ---

	hub := ws.NewHub()
	deriver := domcache.NewKeyDeriver(cfg.Cache.Location())

	weatherSvc := service.NewWeatherService(*cfg, tierChain, store, store, client, deriver, hub, metrics)

	janitorSvc, err := service.NewJanitorService(cfg.Janitor, store, store, hub, metrics)
	if err != nil {
		return fmt.Errorf("janitor: %w", err)
	}
	janitorSvc.Start(ctx)

	refresher := service.NewRefresher(weatherSvc, store, cfg.Cache.UpdateIntervalHrs)
	refresher.Start(ctx)

	// --- HTTP ---

	handlers := wvhttp.NewHandlers(weatherSvc, janitorSvc, hub, *cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(wvhttp.Logger)
	r.Use(wvhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(wvhttp.SecurityHeaders)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	if cfg.Server.RateLimitRPS > 0 {
		limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
		defer limiter.StartCleanup(5*time.Minute, 30*time.Minute)()
		r.Use(limiter.Handler)
	}

	wvhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
