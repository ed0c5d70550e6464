package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// casMaxAttempts bounds how often a conflicting operation is retried before
// the conflict surfaces to the caller.
const casMaxAttempts = 5

// WithRetry runs a read-compute-write operation, retrying the whole thing
// with short randomized backoff whenever it loses an optimistic-lock race
// (ErrVersionConflict). Any other error aborts immediately. The losing
// retry re-reads state, so it typically becomes a no-op.
func WithRetry(ctx context.Context, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 150 * time.Millisecond
	b.RandomizationFactor = 0.5

	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrVersionConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(b, casMaxAttempts-1), ctx))
}
