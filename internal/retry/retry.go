// Package retry implements a small retry-with-backoff combinator used by the
// fetch layer. Keeping the loop here rather than inline keeps the retry
// policy independently testable.
package retry

import (
	"context"
	"time"
)

// Config controls the retry loop.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the wait after the first failed attempt; the wait doubles
	// on each subsequent failure.
	BaseDelay time.Duration
	// DelayFor, when set, picks the base delay for a specific failure. This
	// lets callers back off longer on throttling than on network blips.
	DelayFor func(err error) time.Duration
	// OnRetry, when set, is called before each sleep with the upcoming wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Do runs op up to cfg.MaxAttempts times, sleeping between attempts with an
// exponentially growing delay. retryable decides whether a given error is
// worth another attempt; a non-retryable error is returned immediately.
// The sleep is interrupted by context cancellation.
func Do[T any](ctx context.Context, cfg Config, op func() (T, error), retryable func(error) bool) (T, error) {
	var zero T
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var result T
		result, err = op()
		if err == nil {
			return result, nil
		}
		if retryable != nil && !retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}
		base := cfg.BaseDelay
		if cfg.DelayFor != nil {
			base = cfg.DelayFor(err)
		}
		delay := base << (attempt - 1)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if werr := wait(ctx, delay); werr != nil {
			return zero, werr
		}
	}
	return zero, err
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
