package sources

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Retry defaults: three attempts starting at 2s, doubling, with 50% jitter.
const (
	DefaultRetryAttempts   = 3
	DefaultRetryBaseDelay  = 2 * time.Second
	DefaultRetryMultiplier = 2.0
	DefaultRetryJitter     = 0.5
	defaultRetryMaxDelay   = 30 * time.Second
)

var errUnexpectedStatus = errors.New("unexpected status")

// RetryPolicy is a bounded exponential backoff with jitter.
type RetryPolicy struct {
	Attempts   int
	BaseDelay  time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultRetryPolicy returns the documented retry defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:   DefaultRetryAttempts,
		BaseDelay:  DefaultRetryBaseDelay,
		Multiplier: DefaultRetryMultiplier,
		Jitter:     DefaultRetryJitter,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()

	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}

	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}

	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}

	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = d.Jitter
	}

	return p
}

// Do runs op until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is done. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, logger *zerolog.Logger, operation string, op func() error) error {
	p = p.withDefaults()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = p.Jitter
	exp.MaxInterval = max(defaultRetryMaxDelay, p.BaseDelay)
	exp.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.Attempts-1)), ctx)

	attempt := 0

	return backoff.RetryNotify(func() error {
		attempt++

		err := op()
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}

		return err
	}, b, func(err error, wait time.Duration) {
		if logger != nil {
			logger.Debug().Err(err).Str(logFieldOperation, operation).Int(logFieldAttempt, attempt).Dur(logFieldWait, wait).Msg("retrying provider request")
		}
	})
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %d", errUnexpectedStatus, e.Code)
}

func (e *StatusError) Unwrap() error {
	return errUnexpectedStatus
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

type transient interface {
	Transient() bool
}

// isTransient classifies rate limits, server errors, timeouts and network
// failures as retryable. Decoding errors and client errors are permanent.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var t transient
	if errors.As(err, &t) {
		return t.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError

	return errors.As(err, &opErr)
}
