package embedder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/codecontext/pkg/types"
)

// RetryConfig configures exponential backoff retry behavior
type RetryConfig struct {
	MaxRetries int           // Retries after the first attempt
	BaseDelay  time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum delay between retries
	Multiplier float64       // Exponential backoff multiplier
}

// DefaultRetryConfig returns sensible defaults for API retry
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
	}
}

// retryWithBackoff runs fn until it succeeds, returns a fatal error, or the
// retry budget is spent. It returns the number of retries performed.
// Context cancellation is never retried.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, logger *zap.Logger, op string, fn func(context.Context) (T, error)) (T, int, error) {
	var zero T
	maxAttempts := config.MaxRetries + 1
	backoff := config.BaseDelay

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, attempt - 1, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, attempt - 1, ctxErr
		}
		if !types.IsTransient(err) {
			return zero, attempt - 1, err
		}
		if attempt >= maxAttempts {
			return zero, attempt - 1, fmt.Errorf("%s: %w after %d attempts: %w", op, types.ErrRetriesExhausted, attempt, err)
		}

		logger.Warn("retrying after transient error",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt - 1, ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * config.Multiplier)
		if config.MaxDelay > 0 && backoff > config.MaxDelay {
			backoff = config.MaxDelay
		}
	}
}
