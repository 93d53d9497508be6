package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	logFieldWorker = "worker"
	logFieldTask   = "task"
)

// TickerConfig configures a loop with a main ticker and an optional
// maintenance ticker.
type TickerConfig struct {
	// Name identifies the loop in logs.
	Name string

	// Interval is the main ticker interval.
	Interval time.Duration

	// OnTick is called when the main ticker fires.
	OnTick func(ctx context.Context)

	// RunOnStart runs OnTick immediately when starting.
	RunOnStart bool

	// MaintenanceInterval enables the maintenance ticker when positive.
	MaintenanceInterval time.Duration

	// OnMaintenance is called when the maintenance ticker fires.
	OnMaintenance func(ctx context.Context)

	Logger *zerolog.Logger
}

// TickerLoop runs until ctx is canceled and returns the wrapped context error.
// Callbacks run on the loop goroutine, so a slow tick delays the next one
// instead of overlapping it.
func TickerLoop(ctx context.Context, cfg TickerConfig) error {
	logger := getLogger(cfg.Logger)
	logger.Info().Str(logFieldWorker, cfg.Name).Dur("interval", cfg.Interval).Msg("starting ticker loop")

	defer logger.Info().Str(logFieldWorker, cfg.Name).Msg("ticker loop stopped")

	if cfg.RunOnStart {
		call(ctx, cfg.OnTick)
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	var maintenance <-chan time.Time

	if cfg.MaintenanceInterval > 0 {
		t := time.NewTicker(cfg.MaintenanceInterval)
		defer t.Stop()

		maintenance = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("ticker loop %s: %w", cfg.Name, ctx.Err())
		case <-ticker.C:
			call(ctx, cfg.OnTick)
		case <-maintenance:
			call(ctx, cfg.OnMaintenance)
		}
	}
}

func call(ctx context.Context, fn func(ctx context.Context)) {
	if fn != nil {
		fn(ctx)
	}
}

// getLogger returns the provided logger or a nop logger if nil.
func getLogger(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()

		return &nop
	}

	return logger
}
