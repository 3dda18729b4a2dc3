package store

import (
	"context"
	"fmt"
	"math"
	"time"

	benchErrors "github.com/idbench/idbench/internal/errors"
)

// RetryPolicy bounds the retries of transient storage failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  100 * time.Millisecond,
	}
}

// backoff returns the delay before retry number attempt (zero-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * p.BaseDelay
}

// retryFunc is called before each retry with the failed attempt number.
type retryFunc func(op string, attempt int, err error)

// retryWithBackoff runs operation until it succeeds, fails with a
// non-retryable error, or MaxRetries retries have been spent. Exhaustion is
// reported as RETRY_EXHAUSTED wrapping the last error.
func (p RetryPolicy) retryWithBackoff(ctx context.Context, op string, onRetry retryFunc, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !benchErrors.IsRetryable(lastErr) {
			return lastErr
		}

		if attempt < p.MaxRetries {
			if onRetry != nil {
				onRetry(op, attempt, lastErr)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff(attempt)):
			}
		}
	}
	return benchErrors.NewStorageError(benchErrors.CodeRetryExhausted,
		fmt.Sprintf("%s: gave up after %d attempts", op, p.MaxRetries+1), lastErr)
}
