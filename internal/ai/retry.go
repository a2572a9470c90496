package ai

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryAfterBackOff layers server-provided Retry-After hints over an
// exponential schedule: when the last failure carried a hint, the hint wins
// for the next wait.
type retryAfterBackOff struct {
	backoff.BackOff
	hint *time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	if *b.hint > 0 {
		d := *b.hint
		*b.hint = 0
		if next := b.BackOff.NextBackOff(); next == backoff.Stop {
			return backoff.Stop
		}
		return d
	}
	return b.BackOff.NextBackOff()
}

// Retry runs fn with exponential backoff (base, 2x) for up to attempts
// total tries, retrying only transient errors and honoring Retry-After
// hints. Non-transient errors abort immediately.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = base
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = 5 * time.Minute
	exp.Reset()

	var hint time.Duration
	schedule := backoff.WithContext(
		backoff.WithMaxRetries(&retryAfterBackOff{BackOff: exp, hint: &hint}, uint64(attempts-1)),
		ctx,
	)

	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		var rl *RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			hint = rl.RetryAfter
		}
		return err
	}

	return backoff.Retry(operation, schedule)
}
