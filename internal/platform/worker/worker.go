// Package worker provides the loop and scheduling primitives used by the
// collection scheduler: a ticker loop, calendar slots for daily and weekly
// jobs, timeouts and panic recovery.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunWithTimeout runs fn with a timeout derived from the parent context.
// The function receives a context that will be canceled after timeout.
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(timeoutCtx)
}

// RecoverPanic recovers from panics, logs them and hands the value to onPanic.
// Use as: defer worker.RecoverPanic(logger, "operation name", nil)
func RecoverPanic(logger *zerolog.Logger, operation string, onPanic func(v any)) {
	if r := recover(); r != nil {
		getLogger(logger).Error().
			Interface("panic", r).
			Str("operation", operation).
			Msg("recovered from panic")

		if onPanic != nil {
			onPanic(r)
		}
	}
}
