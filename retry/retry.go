// Package retry implements the one bounded retry policy shared by the
// ingestion worker, the batch summarizer and the publisher. Callers mark
// errors as transient or permanent; only transient errors are retried, and
// never past MaxAttempts.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/vibecheckhq/vibecheck/app_config"
)

// Policy is a bounded exponential backoff with jitter. The zero value is not
// usable, construct through NewPolicy.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	JitterFrac  float64
	MaxDelay    time.Duration
}

func NewPolicy(c app_config.RetryConfig) Policy {
	return Policy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   time.Duration(c.BaseDelayMs) * time.Millisecond,
		Multiplier:  c.Multiplier,
		JitterFrac:  c.JitterFrac,
		MaxDelay:    time.Duration(c.MaxDelayMs) * time.Millisecond,
	}
}

type transientError struct {
	inner error
}

func (e *transientError) Error() string { return e.inner.Error() }
func (e *transientError) Unwrap() error { return e.inner }

// Transient marks an error as retriable under a Policy.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{inner: err}
}

// IsTransient reports whether err (or anything it wraps) was marked with
// Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Delay returns the backoff delay before the given 1-based attempt, with
// jitter applied. Attempt 1 has no delay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := float64(p.BaseDelay)
	for i := 2; i < attempt; i++ {
		d *= p.Multiplier
	}
	if p.JitterFrac > 0 {
		// Jitter in [-JitterFrac, +JitterFrac] of the raw delay.
		d += d * p.JitterFrac * (2*rand.Float64() - 1)
	}
	delay := time.Duration(d)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// Do runs fn up to MaxAttempts times, sleeping between attempts. A permanent
// (unmarked) error or context cancellation stops immediately. The last error
// is returned on exhaustion, unwrapped from its transient marker.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if delay := p.Delay(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
	}

	var te *transientError
	if errors.As(lastErr, &te) {
		return te.inner
	}
	return lastErr
}
