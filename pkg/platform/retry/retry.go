// Package retry runs operations under a bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy retries three times starting at 200ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Permanent marks err as not worth retrying. Do returns the unwrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do calls fn until it succeeds, returns a permanent error, the retry budget is spent,
// or ctx is done. onRetry, when set, observes each failed attempt before the wait.
func Do(ctx context.Context, p Policy, fn func() error, onRetry func(err error, wait time.Duration)) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	// The retry count is the only budget; elapsed time is owned by ctx.
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = backoff.WithMaxRetries(b, p.MaxRetries)
	policy = backoff.WithContext(policy, ctx)

	return backoff.RetryNotify(fn, policy, func(err error, wait time.Duration) {
		if onRetry != nil {
			onRetry(err, wait)
		}
	})
}
