package invest

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a transaction is re-run after a transient
// store error. Non-transient errors are returned immediately.
type RetryPolicy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, InitialDelay: 25 * time.Millisecond, MaxDelay: 500 * time.Millisecond}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialDelay
	exp.MaxInterval = p.MaxDelay
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = backoff.DefaultMaxInterval
	}
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

// Do runs fn until it succeeds, fails permanently, attempts run out or ctx
// is done. Delay doubles per attempt up to MaxDelay. When ctx ends between
// attempts the last error from fn is returned, not ctx.Err().
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var last error
	err := backoff.Retry(func() error {
		last = fn()
		if last != nil && !IsRetryable(last) {
			return backoff.Permanent(last)
		}
		return last
	}, p.backOff(ctx))

	if err != nil && last != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return last
	}
	return err
}
