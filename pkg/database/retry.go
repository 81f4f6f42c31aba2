package database

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

const (
	startupAttempts     = 3
	retryJitterFraction = 0.25
)

// retryBaseWait is doubled on each attempt: 1s, 2s, 4s.
var retryBaseWait = time.Second

// retryBackoff returns the wait after the given 0-indexed attempt, with ±25%
// jitter.
func retryBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := retryBaseWait << attempt
	jitter := time.Duration(float64(base) * retryJitterFraction * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter
	return base + jitter
}

// retryStartup runs fn up to startupAttempts times. Errors rejected by
// retryable (when set) are returned unwrapped on the first occurrence.
func retryStartup(ctx context.Context, logger *slog.Logger, what string, retryable func(error) bool, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < startupAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == startupAttempts-1 {
			break
		}

		wait := retryBackoff(attempt)
		if logger != nil {
			logger.Warn(what+" failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", startupAttempts),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: canceled during retry: %w", what, ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", what, startupAttempts, err)
}
