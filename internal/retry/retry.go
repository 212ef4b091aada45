// Package retry wraps a single harvest attempt with bounded retries and
// backoff, filtered by classified error kind.
package retry

import (
	"context"
	"time"
)

// BackoffKind selects how the delay grows between attempts.
type BackoffKind string

const (
	// BackoffExponential delays base × 2^(attempt-1), capped at MaxBackoff.
	BackoffExponential BackoffKind = "exponential"
	// BackoffLinear delays base × attempt, capped at MaxBackoff.
	BackoffLinear BackoffKind = "linear"
)

// Default policy values.
const (
	DefaultBase       = 1 * time.Second
	DefaultMaxBackoff = 10 * time.Second
)

// Policy bounds the retry behavior of one logical operation.
type Policy struct {
	// MaxRetries is the number of re-attempts after the first; 0 means the
	// operation runs exactly once.
	MaxRetries int
	Backoff    BackoffKind
	Base       time.Duration
	MaxBackoff time.Duration
	// RetryOn lists the error kinds eligible for retry. Empty means every
	// classified error is retryable.
	RetryOn []string
}

// kinder is implemented by classified errors. Errors lacking a kind are
// treated as non-retryable when RetryOn is set.
type kinder interface {
	ErrorKind() string
}

// Do runs op, retrying per the policy. The error from the last attempt is
// returned verbatim; exhaustion is never wrapped in a distinct error.
// onRetry, when non-nil, fires before each re-attempt with the upcoming
// attempt number (2-based) and the error that triggered it.
func Do(ctx context.Context, p Policy, onRetry func(attempt int, err error), op func() error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt > p.MaxRetries || !p.retryable(lastErr) {
			return lastErr
		}
		if onRetry != nil {
			onRetry(attempt+1, lastErr)
		}
		if err := sleep(ctx, p.delay(attempt)); err != nil {
			return lastErr
		}
	}
}

// retryable applies the RetryOn filter.
func (p Policy) retryable(err error) bool {
	if len(p.RetryOn) == 0 {
		return true
	}
	k, ok := err.(kinder)
	if !ok {
		return false
	}
	kind := k.ErrorKind()
	for _, allowed := range p.RetryOn {
		if allowed == kind {
			return true
		}
	}
	return false
}

// delay computes the backoff before the attempt following the given one.
func (p Policy) delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = DefaultBase
	}
	maxBackoff := p.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = DefaultMaxBackoff
	}

	var d time.Duration
	switch p.Backoff {
	case BackoffLinear:
		d = base * time.Duration(attempt)
	default:
		d = base << (attempt - 1)
	}
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	return d
}

// sleep suspends for d, waking early on context cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
