package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryTransient runs op under a bounded exponential backoff. It is meant for
// transient upstream failures (quote fetch, status poll); permanent failures
// should be returned wrapped in backoff.Permanent by the caller to stop the
// loop early.
func RetryTransient(ctx context.Context, maxElapsed time.Duration, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = maxElapsed
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}

// Permanent marks err so RetryTransient stops retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
