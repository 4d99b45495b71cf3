package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrConnectivity is returned once a RetryPolicy gives up on the broker.
var ErrConnectivity = errors.New("rabbitmq: broker unreachable")

// RetryPolicy retries an operation a fixed number of times with a fixed delay
// between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Retry runs op until it succeeds or the policy is exhausted. op is never
// called more than MaxAttempts times; a policy with MaxAttempts <= 0 still
// makes one attempt. The returned error wraps ErrConnectivity and the last
// failure.
func Retry[T any](ctx context.Context, policy RetryPolicy, logger *slog.Logger, op func() (T, error)) (T, error) {
	var zero T

	attempts := max(policy.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := op()
		if err == nil {
			if attempt > 1 {
				logger.Info("Succeeded after retry", slog.Int("attempt", attempt))
			}
			return v, nil
		}
		lastErr = err

		logger.Warn("Attempt failed",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(policy.Delay):
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrConnectivity, attempts, lastErr)
}
