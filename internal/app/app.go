// Package app provides the main application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// different operational modes:
//
//   - Scheduler mode: daily collection and weekly analytics on a UTC calendar
//   - HTTP mode: trigger and query API next to health and metrics
//   - All mode: both in one process
//   - Once: a single synchronous run of one job
//
// Every mode claims runs through storage, so several processes can share one
// database without running two collections at once.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/workflow-popularity/internal/api"
	"github.com/lueurxax/workflow-popularity/internal/platform/config"
	"github.com/lueurxax/workflow-popularity/internal/platform/observability"
	"github.com/lueurxax/workflow-popularity/internal/process/collection"
	"github.com/lueurxax/workflow-popularity/internal/process/novelty"
	db "github.com/lueurxax/workflow-popularity/internal/storage"
)

const (
	logFieldJob    = "job"
	logFieldRunID  = "run_id"
	logFieldStatus = "status"
)

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg          *config.Config
	database     *db.DB
	orchestrator *collection.Orchestrator
	analytics    *novelty.Service
	logger       *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(ctx context.Context, cfg *config.Config, database *db.DB, logger *zerolog.Logger) (*App, error) {
	adapters, err := buildAdapters(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	cc := cfg.CollectionCfg()
	tuning := cfg.Tuning()

	orchestrator := collection.New(database, adapters, tuning, collection.Config{
		AdapterTimeout: cc.AdapterTimeout,
		FetchLimit:     cc.FetchLimit,
		DeepFetchLimit: cc.DeepFetchLimit,
	}, logger)

	return &App{
		cfg:          cfg,
		database:     database,
		orchestrator: orchestrator,
		analytics:    novelty.NewService(database, tuning),
		logger:       logger,
	}, nil
}

// StartHealthServer starts the health check and metrics server. withAPI also
// mounts the trigger and query API.
func (a *App) StartHealthServer(ctx context.Context, withAPI bool) error {
	var srv *observability.Server

	if withAPI {
		handler := api.NewHandler(a.orchestrator, a.analytics, a.database, a.logger)
		srv = observability.NewServerWithAPI(a.database, a.cfg.HTTPPort, handler, a.logger)
	} else {
		srv = observability.NewServer(a.database, a.cfg.HTTPPort, a.logger)
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunHTTP serves the API without the recurring schedule. Triggered runs
// execute in this process.
func (a *App) RunHTTP(ctx context.Context) error {
	a.logger.Info().Msg("Starting HTTP mode")

	return a.StartHealthServer(ctx, true)
}

// RunScheduler runs the recurring jobs and a health server without the API.
func (a *App) RunScheduler(ctx context.Context) error {
	a.logger.Info().Msg("Starting scheduler mode")

	return a.run(ctx, false)
}

// RunAll runs the recurring jobs and serves the API.
func (a *App) RunAll(ctx context.Context) error {
	a.logger.Info().Msg("Starting scheduler and HTTP mode")

	return a.run(ctx, true)
}

func (a *App) run(ctx context.Context, withAPI bool) error {
	sc := a.cfg.ScheduleCfg()

	scheduler := collection.NewScheduler(a.orchestrator, a.database, collection.ScheduleConfig{
		TickInterval:  sc.TickInterval,
		DailyHour:     sc.DailyHour,
		WeeklyDay:     sc.WeeklyDay,
		WeeklyHour:    sc.WeeklyHour,
		CatchUp:       sc.CatchUp,
		StaleRunAfter: sc.StaleRunAfter,
	}, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.StartHealthServer(gctx, withAPI)
	})

	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("scheduler run: %w", err)
	}

	return nil
}

// RunOnce executes one job synchronously and reports its outcome.
func (a *App) RunOnce(ctx context.Context, jobName string) error {
	a.logger.Info().Str(logFieldJob, jobName).Msg("Running job once")

	report, err := a.orchestrator.Run(ctx, jobName)

	if report.Run.ID != "" {
		a.logger.Info().
			Str(logFieldRunID, report.Run.ID).
			Str(logFieldStatus, string(report.Run.Status)).
			Int("snapshots", report.Run.Stats.Snapshots).
			Int("divergent", report.Divergent).
			Str("summary", report.Run.ErrorSummary).
			Msg("run finished")
	}

	if err != nil {
		return fmt.Errorf("run %s: %w", jobName, err)
	}

	return nil
}
