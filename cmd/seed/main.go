package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/shopcart-backend/pkg/auth"
	"github.com/angelmondragon/shopcart-backend/pkg/config"
	"github.com/angelmondragon/shopcart-backend/pkg/db"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
	"github.com/angelmondragon/shopcart-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "seed"})
	_ = godotenv.Load()

	force := flag.Bool("force", false, "insert the demo catalog even when products exist")
	tokenUser := flag.String("token-user", "", "also print a dev access token for this user id")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	if cfg.App.IsProd() {
		fmt.Fprintln(os.Stderr, "refusing to seed a prod environment")
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "seed",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
	})
	ctx := logg.WithField(context.Background(), "env", cfg.App.Env)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	created, err := seedProducts(ctx, dbClient.DB(), *force)
	if err != nil {
		logg.Error(ctx, "seeding products failed", err)
		os.Exit(1)
	}
	logg.Info(logg.WithField(ctx, "created", created), "seed.products")

	if *tokenUser != "" {
		token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: *tokenUser})
		if err != nil {
			logg.Error(ctx, "minting dev token failed", err)
			os.Exit(1)
		}
		fmt.Println(token)
	}
}
