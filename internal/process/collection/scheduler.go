package collection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
	coreerrors "github.com/lueurxax/workflow-popularity/internal/core/errors"
	"github.com/lueurxax/workflow-popularity/internal/core/ports"
	"github.com/lueurxax/workflow-popularity/internal/platform/observability"
	"github.com/lueurxax/workflow-popularity/internal/platform/worker"
)

const (
	defaultTickInterval  = 5 * time.Minute
	defaultStaleRunAfter = 2 * time.Hour
	schedulerName        = "collection-scheduler"
)

// ScheduleConfig places the recurring jobs on the calendar. Hours are UTC.
type ScheduleConfig struct {
	TickInterval  time.Duration
	DailyHour     int
	WeeklyDay     time.Weekday
	WeeklyHour    int
	CatchUp       time.Duration
	StaleRunAfter time.Duration
}

// Runner executes a job synchronously.
type Runner interface {
	Run(ctx context.Context, jobName string) (RunReport, error)
}

// Scheduler drives the daily and weekly jobs from one recurring ticker.
// Correctness does not depend on its in-memory state: every run still goes
// through the storage claim.
type Scheduler struct {
	runner   Runner
	runs     ports.RunRepository
	cfg      ScheduleConfig
	calendar *worker.Scheduler
	logger   *zerolog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(runner Runner, runs ports.RunRepository, cfg ScheduleConfig, logger *zerolog.Logger) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}

	if cfg.StaleRunAfter <= 0 {
		cfg.StaleRunAfter = defaultStaleRunAfter
	}

	s := &Scheduler{
		runner:   runner,
		runs:     runs,
		cfg:      cfg,
		calendar: worker.NewScheduler(logger),
		logger:   logger,
	}

	s.calendar.AddTask(&worker.CalendarTask{
		Name:    domain.JobDailyCollection,
		Hour:    cfg.DailyHour,
		CatchUp: cfg.CatchUp,
		Run:     s.job(domain.JobDailyCollection),
	})

	s.calendar.AddTask(&worker.CalendarTask{
		Name:    domain.JobWeeklyAnalytics,
		Weekly:  true,
		Day:     cfg.WeeklyDay,
		Hour:    cfg.WeeklyHour,
		CatchUp: cfg.CatchUp,
		Run:     s.job(domain.JobWeeklyAnalytics),
	})

	return s
}

// WithClock overrides the calendar clock.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.calendar.WithClock(now)

	return s
}

// Run recovers stale runs, seeds last-run times from storage and ticks until
// ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.RecoverStale(ctx)
	s.Seed(ctx)

	return worker.TickerLoop(ctx, worker.TickerConfig{
		Name:                schedulerName,
		Interval:            s.cfg.TickInterval,
		OnTick:              s.Tick,
		RunOnStart:          true,
		MaintenanceInterval: s.cfg.StaleRunAfter / 2,
		OnMaintenance:       s.RecoverStale,
		Logger:              s.logger,
	})
}

// Tick runs every job whose calendar slot is open.
func (s *Scheduler) Tick(ctx context.Context) {
	s.calendar.CheckAndRun(ctx)
}

// Seed loads the last finished run of each job so a restart does not
// repeat a slot that already ran. A failed run counts, matching Tick, which
// does not retry a slot after a failure.
func (s *Scheduler) Seed(ctx context.Context) {
	for _, job := range []string{domain.JobDailyCollection, domain.JobWeeklyAnalytics} {
		last, err := s.runs.LastRun(ctx, job)
		if err != nil {
			s.logger.Warn().Err(err).Str(logFieldJob, job).Msg("failed to load last run")

			continue
		}

		if last != nil {
			s.calendar.SetLastRun(job, last.StartedAt)
		}
	}
}

// RecoverStale marks runs abandoned by a crashed process as failed.
func (s *Scheduler) RecoverStale(ctx context.Context) {
	n, err := s.runs.RecoverStaleRuns(ctx, s.cfg.StaleRunAfter)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to recover stale runs")

		return
	}

	if n > 0 {
		observability.StaleRunsRecovered.Add(float64(n))
		s.logger.Warn().Int64("count", n).Msg("recovered stale collection runs")
	}
}

// job adapts a run to a calendar task. Only a rejected claim keeps the slot
// open; a run that started counts as attempted even when it failed.
func (s *Scheduler) job(name string) func(ctx context.Context, logger *zerolog.Logger) error {
	return func(ctx context.Context, logger *zerolog.Logger) error {
		report, err := s.runner.Run(ctx, name)

		switch {
		case errors.Is(err, coreerrors.ErrAlreadyRunning):
			logger.Info().Msg("another collection run is active, retrying next tick")

			return err
		case err != nil && report.Run.ID == "":
			return fmt.Errorf("start %s: %w", name, err)
		case err != nil:
			logger.Warn().Err(err).Str(logFieldRunID, report.Run.ID).Msg("scheduled run failed")
		}

		return nil
	}
}
