package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/shopcart-backend/internal/cart"
	"github.com/angelmondragon/shopcart-backend/internal/ledger"
	"github.com/angelmondragon/shopcart-backend/internal/maintenance"
	"github.com/angelmondragon/shopcart-backend/pkg/config"
	"github.com/angelmondragon/shopcart-backend/pkg/db"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
	"github.com/angelmondragon/shopcart-backend/pkg/metrics"
	"github.com/angelmondragon/shopcart-backend/pkg/migrate"
	"github.com/angelmondragon/shopcart-backend/pkg/outbox"
	pkgredis "github.com/angelmondragon/shopcart-backend/pkg/redis"
)

const (
	serviceName = "maintenance-worker"
	metricsAddr = ":9103"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	var lock maintenance.Lock = maintenance.NewLocalLock()
	if cfg.Redis.Enabled() {
		redisClient, err := pkgredis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		lock, err = maintenance.NewRedisLock(redisClient, redisClient.LockKey(serviceName, cfg.App.Env), cfg.Maintenance.Interval)
		if err != nil {
			logg.Error(ctx, "failed to create maintenance lock", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(ctx, "redis not configured; maintenance lock is process local")
	}

	registry := prometheus.NewRegistry()
	jobMetrics := metrics.NewJobMetrics(registry)

	stock, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), metrics.NewCommerceMetrics(registry), logg)
	if err != nil {
		logg.Error(ctx, "failed to build stock ledger", err)
		os.Exit(1)
	}
	staleCarts, err := maintenance.NewStaleCartJob(maintenance.StaleCartJobParams{
		Logger:    logg,
		DB:        dbClient,
		Carts:     cart.NewRepository(dbClient.DB()),
		Ledger:    stock,
		Metrics:   jobMetrics,
		HoldTTL:   cfg.Maintenance.CartHoldTTL,
		BatchSize: cfg.Maintenance.BatchSize,
	})
	if err != nil {
		logg.Error(ctx, "failed to build stale cart job", err)
		os.Exit(1)
	}
	outboxRetention, err := maintenance.NewOutboxRetentionJob(maintenance.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Metrics:    jobMetrics,
		Retention:  cfg.Maintenance.OutboxRetention,
	})
	if err != nil {
		logg.Error(ctx, "failed to build outbox retention job", err)
		os.Exit(1)
	}

	service, err := maintenance.NewService(maintenance.ServiceParams{
		Logger:   logg,
		Registry: maintenance.NewRegistry(staleCarts, outboxRetention),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Maintenance.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create maintenance service", err)
		os.Exit(1)
	}

	metricsSrv := &http.Server{
		Addr:              metricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting maintenance worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "maintenance worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "maintenance worker shutting down gracefully")
}
