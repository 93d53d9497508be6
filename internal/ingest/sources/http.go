package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	logFieldSource    = "source"
	logFieldOperation = "operation"
	logFieldAttempt   = "attempt"
	logFieldWait      = "wait"
	logFieldURL       = "url"
	logFieldPage      = "page"
	logFieldCount     = "count"

	maxBodyBytes = 8 << 20
)

// fetcher issues rate limited, retried GET requests.
type fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	retry   RetryPolicy
	logger  *zerolog.Logger
	headers http.Header
}

func newFetcher(timeout time.Duration, requestsPerMin int, retry RetryPolicy, logger *zerolog.Logger) *fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &fetcher{
		client:  &http.Client{Timeout: timeout},
		limiter: newLimiter(requestsPerMin),
		retry:   retry,
		logger:  logger,
		headers: http.Header{},
	}
}

func newLimiter(requestsPerMin int) *rate.Limiter {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMin
	}

	return rate.NewLimiter(rate.Limit(float64(requestsPerMin)/secondsPerMinute), 1)
}

// get returns the body of a 200 response.
func (f *fetcher) get(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	err := f.retry.Do(ctx, f.logger, url, func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set(headerUserAgent, userAgent)

		for k, v := range f.headers {
			req.Header[k] = v
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("request: %w", err)
		}

		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

			return &StatusError{Code: resp.StatusCode}
		}

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}

		body = b

		return nil
	})

	return body, err
}
