package planner

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/GriffinCanCode/AgentOS/apps/internal/providers/fetch"
)

// retry runs fn up to attempts times with exponential backoff. Permanent
// errors and cancellation of ctx stop immediately.
func retry(ctx context.Context, attempts int, initial, max time.Duration, fn func(attempt int) error, notify func(err error, wait time.Duration)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := fn(attempt)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.Is(err, context.Canceled), fetch.IsPermanent(err):
			return backoff.Permanent(err)
		}
		return err
	}, policy, notify)
}
