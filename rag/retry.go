package rag

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures the throttling retry applied to capability calls.
type RetryConfig struct {
	MaxAttempts int
	// Backoff returns the wait before the attempt following the zero-based attempt.
	Backoff func(attempt int) time.Duration
	// Retryable decides whether an error is retried. Defaults to IsRateLimited.
	Retryable func(error) bool
	// Sleep waits for d. Replaced in tests to observe backoff without waiting.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig retries throttled calls up to 12 times, waiting
// 2^attempt + 2 seconds between attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 12,
		Backoff:     ExponentialBackoff(time.Second, 2*time.Second),
		Retryable:   IsRateLimited,
		Sleep:       SleepContext,
	}
}

// ExponentialBackoff returns a backoff of unit*2^attempt + offset.
func ExponentialBackoff(unit, offset time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return unit*time.Duration(1<<uint(attempt)) + offset
	}
}

// SleepContext sleeps for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retrier runs capability calls under a RetryConfig.
type Retrier struct {
	config RetryConfig
}

// NewRetrier creates a Retrier, filling unset fields from DefaultRetryConfig.
func NewRetrier(config RetryConfig) *Retrier {
	def := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.Backoff == nil {
		config.Backoff = def.Backoff
	}
	if config.Retryable == nil {
		config.Retryable = def.Retryable
	}
	if config.Sleep == nil {
		config.Sleep = def.Sleep
	}
	return &Retrier{config: config}
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// attempt ceiling is reached.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !r.config.Retryable(err) {
			return "", err
		}
		if attempt == r.config.MaxAttempts-1 {
			break
		}
		if err := r.config.Sleep(ctx, r.config.Backoff(attempt)); err != nil {
			return "", fmt.Errorf("retry cancelled during backoff: %w", err)
		}
	}
	return "", fmt.Errorf("max retries (%d) exceeded: %w", r.config.MaxAttempts, lastErr)
}
