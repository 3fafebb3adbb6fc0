package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/shopcart-backend/pkg/config"
	"github.com/angelmondragon/shopcart-backend/pkg/db"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
	"github.com/angelmondragon/shopcart-backend/pkg/migrate"
)

const serviceName = "migrate"

var errUsage = errors.New("usage")

// options is the parsed command line.
type options struct {
	command       string
	dir           string
	name          string
	target        string
	allowProdDown bool
}

// gooseCommands run against a live postgres connection.
var gooseCommands = map[string]bool{
	"up":      true,
	"down":    true,
	"redo":    true,
	"status":  true,
	"version": true,
}

// rollbacks lose data and are refused in prod without -allow-prod-down.
var rollbacks = map[string]bool{
	"down": true,
	"redo": true,
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.command, "cmd", "up", "up|down|redo|status|version|create|validate")
	fs.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	fs.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	fs.StringVar(&opts.target, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	fs.BoolVar(&opts.allowProdDown, "allow-prod-down", false, "permit down/redo when SHOPCART_APP_ENV=prod")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	switch opts.command {
	case "create":
		if opts.name == "" {
			return options{}, fmt.Errorf("%w: -cmd=create needs -name", errUsage)
		}
	case "validate":
	case "version":
		if opts.target == "" {
			return options{}, fmt.Errorf("%w: -cmd=version needs -version", errUsage)
		}
	default:
		if !gooseCommands[opts.command] {
			return options{}, fmt.Errorf("%w: unknown -cmd %q", errUsage, opts.command)
		}
	}
	return opts, nil
}

// runFileCommand handles the commands that never open a database. It reports
// false when opts needs one.
func runFileCommand(opts options, stdout io.Writer) (bool, error) {
	switch opts.command {
	case "create":
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return true, fmt.Errorf("create migration: %w", err)
		}
		fmt.Fprintln(stdout, "created migration:", path)
		return true, nil
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return true, fmt.Errorf("validate migrations: %w", err)
		}
		fmt.Fprintln(stdout, "migration validation passed")
		return true, nil
	}
	return false, nil
}

func checkRollbackAllowed(opts options, app config.AppConfig) error {
	if rollbacks[opts.command] && app.IsProd() && !opts.allowProdDown {
		return fmt.Errorf("%w: -cmd=%s in prod needs -allow-prod-down", errUsage, opts.command)
	}
	return nil
}

func main() {
	_ = godotenv.Load()

	opts, err := parseOptions(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if done, err := runFileCommand(opts, os.Stdout); done {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := checkRollbackAllowed(opts, cfg.App); err != nil {
		return err
	}

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    opts.command,
		"dir":    opts.dir,
		"driver": cfg.DB.Driver,
	})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "migrate.db_unavailable", err)
		return err
	}
	defer client.Close()

	if cfg.DB.Driver == config.DriverSQLite {
		if opts.command != "up" {
			return fmt.Errorf("%w: sqlite databases only support -cmd=up", errUsage)
		}
		if err := migrate.AutoMigrate(ctx, client); err != nil {
			return fmt.Errorf("sqlite automigrate: %w", err)
		}
		logg.Info(ctx, "migrate.sqlite_synced")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	if opts.command == "version" {
		err = migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.target)
	} else {
		err = migrate.Run(ctx, sqlDB, opts.dir, opts.command)
	}
	if err != nil {
		logg.Error(ctx, "migrate.failed", err)
		return err
	}
	logg.Info(ctx, "migrate.completed")
	return nil
}
