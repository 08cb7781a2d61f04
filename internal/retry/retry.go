// Package retry wraps fallible operations in a bounded fixed-delay retry
// loop. Both the media download and the speech API call depend on flaky
// third-party services and go through this wrapper.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrNegativeRetries is returned when the retry budget is negative.
var ErrNegativeRetries = errors.New("retry: retries must not be negative")

// Do runs fn, retrying up to retries additional times on error. A fixed
// delay (no backoff growth) is waited between attempts when delay > 0.
// The last error is returned once attempts are exhausted.
func Do[T any](ctx context.Context, retries int, delay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if retries < 0 {
		return zero, ErrNegativeRetries
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 && delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
	}

	return zero, lastErr
}
