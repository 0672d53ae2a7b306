package utils

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryPolicy holds the parameters for the retry strategy: how many attempts,
// how long to back off between them, and which failures are worth retrying.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the upper bound of the random extra delay added to each backoff.
	Jitter time.Duration
	// Retryable reports whether err may succeed on another attempt. Nil
	// means every error is retryable.
	Retryable func(err error) bool
	// Sleep waits for d or until ctx is done. Defaults to SleepContext.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *Logger
}

// DefaultRetryPolicy retries three times starting at one second.
func DefaultRetryPolicy(logger *Logger) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      500 * time.Millisecond,
		Logger:      logger,
	}
}

// Backoff returns the delay to wait after the given failed attempt (1-based):
// BaseDelay doubled per attempt, capped at MaxDelay, plus random jitter.
func (r *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := r.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if r.MaxDelay > 0 && delay >= r.MaxDelay {
			delay = r.MaxDelay
			break
		}
	}
	if r.Jitter > 0 {
		delay += time.Duration(rand.Int64N(int64(r.Jitter)))
	}
	return delay
}

// Do executes fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. It returns the number of attempts made.
func (r *RetryPolicy) Do(ctx context.Context, operationName string, fn func() error) (int, error) {
	maxAttempts := r.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return attempt, nil
		}
		if r.Retryable != nil && !r.Retryable(lastErr) {
			return attempt, lastErr
		}
		if attempt == maxAttempts {
			break
		}

		delay := r.Backoff(attempt)
		if r.Logger != nil {
			r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v, retrying in %v",
				operationName, attempt, maxAttempts, lastErr, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return attempt, fmt.Errorf("%s interrupted after %d attempts: %w", operationName, attempt, lastErr)
		}
	}

	return maxAttempts, fmt.Errorf("%s failed after %d attempts: %w", operationName, maxAttempts, lastErr)
}

// SleepContext waits for d or until ctx is cancelled.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
