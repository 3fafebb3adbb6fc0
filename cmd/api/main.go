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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/shopcart-backend/api/routes"
	"github.com/angelmondragon/shopcart-backend/internal/cart"
	"github.com/angelmondragon/shopcart-backend/internal/checkout"
	"github.com/angelmondragon/shopcart-backend/internal/ledger"
	"github.com/angelmondragon/shopcart-backend/internal/orders"
	product "github.com/angelmondragon/shopcart-backend/internal/products"
	"github.com/angelmondragon/shopcart-backend/pkg/config"
	"github.com/angelmondragon/shopcart-backend/pkg/db"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
	"github.com/angelmondragon/shopcart-backend/pkg/metrics"
	"github.com/angelmondragon/shopcart-backend/pkg/migrate"
	"github.com/angelmondragon/shopcart-backend/pkg/outbox"
	"github.com/angelmondragon/shopcart-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
	} else {
		logg.Warn(ctx, "redis not configured; idempotency and rate limits disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	commerceMetrics := metrics.NewCommerceMetrics(registry)

	conn := dbClient.DB()
	stock, err := ledger.NewService(ledger.NewRepository(conn), commerceMetrics, logg)
	if err != nil {
		return err
	}
	publisher := outbox.NewService(outbox.NewRepository(conn), logg)
	productRepo := product.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)

	productService, err := product.NewService(productRepo)
	if err != nil {
		return err
	}
	cartService, err := cart.NewService(cartRepo, productRepo, stock, dbClient, commerceMetrics, logg)
	if err != nil {
		return err
	}
	checkoutService, err := checkout.NewService(cartRepo, orderRepo, stock, publisher, dbClient, commerceMetrics, logg)
	if err != nil {
		return err
	}
	orderService, err := orders.NewService(orderRepo, dbClient, stock, publisher, commerceMetrics, logg)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"db_driver": cfg.DB.Driver,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Gatherer: registry,
			Products: productService,
			Cart:     cartService,
			Checkout: checkoutService,
			Orders:   orderService,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "api server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
