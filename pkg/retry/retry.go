// Package retry runs operations with exponential backoff.
//
// Only transient failures are retried: errors wrapped in [Error], and coded
// errors that errors.Retryable or the STORE code mark as transient. Anything
// else is returned immediately.
//
//	err := retry.Do(ctx, 3, 500*time.Millisecond, func() error {
//	    return client.Ping(ctx)
//	})
package retry

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/matzehuels/chartcn/pkg/errors"
)

// Error wraps an error to indicate it should trigger a retry.
type Error struct{ Err error }

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Do executes fn up to attempts times. The delay doubles after each failed
// attempt. It returns the last error if all attempts fail, or ctx.Err() if
// ctx ends while waiting.
func Do(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	attempts = max(attempts, 1)
	var lastErr error

	for i := range attempts {
		if err := fn(); err == nil {
			return nil
		} else if lastErr = err; !Retryable(err) {
			return err
		}

		if i < attempts-1 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
				delay *= 2
			}
		}
	}
	return lastErr
}

// WithBackoff is Do with 3 attempts and a 1 second initial delay.
func WithBackoff(ctx context.Context, fn func() error) error {
	return Do(ctx, 3, time.Second, fn)
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	if stderrors.As(err, new(*Error)) {
		return true
	}
	return errors.Retryable(err) || errors.Is(err, errors.ErrCodeStore)
}
