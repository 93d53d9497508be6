package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/workflow-popularity/internal/app"
	"github.com/lueurxax/workflow-popularity/internal/platform/config"
	db "github.com/lueurxax/workflow-popularity/internal/storage"
)

func main() {
	mode := flag.String("mode", "all", "Service mode (scheduler, http, all)")
	once := flag.String("once", "", "Run one job synchronously and exit (daily-collection, weekly-analytics, manual)")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dc := cfg.DatabaseCfg()
	poolOpts := db.PoolOptions{
		MaxConns:          dc.MaxConnections,
		MinConns:          dc.MinConnections,
		MaxConnIdleTime:   dc.MaxConnIdleTime,
		MaxConnLifetime:   dc.MaxConnLifetime,
		HealthCheckPeriod: dc.HealthCheckPeriod,
	}

	database, err := db.NewWithOptions(ctx, dc.PostgresDSN, poolOpts, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	application, err := app.New(ctx, cfg, database, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}

	if err := runMode(ctx, application, *mode, *once); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func runMode(ctx context.Context, application *app.App, mode, once string) error {
	if once != "" {
		return application.RunOnce(ctx, once)
	}

	switch mode {
	case "scheduler":
		return application.RunScheduler(ctx)
	case "http":
		return application.RunHTTP(ctx)
	case "all":
		return application.RunAll(ctx)
	default:
		log.Fatalf("Usage: %s --mode=[scheduler|http|all] [--once=<job>]", os.Args[0])

		return nil
	}
}
