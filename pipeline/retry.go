package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy controls transient-failure retries for upstream calls.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values below 1 mean a single attempt.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration

	// Jitter is the random fraction added to each backoff, 0..1.
	Jitter float64
}

// DefaultRetryPolicy returns the default retry policy.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	Jitter:         0.2,
}

// Permanent marks err as not worth retrying. Do gives up immediately and
// returns the original err, so errors.Is checks against it keep working.
func Permanent(err error) error {
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Do runs fn until it succeeds, attempts are exhausted, or ctx is done.
// Context cancellation and Permanent errors are never retried. Returns
// the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := p.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if attempt == attempts {
			break
		}

		delay := backoff
		if p.Jitter > 0 {
			delay += time.Duration(rand.Float64() * p.Jitter * float64(backoff))
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff *= 2
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}

	return lastErr
}
