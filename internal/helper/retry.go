package helper

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds how a failing call is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the randomization factor in [0, 1] applied to each delay.
	Jitter float64
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.BaseDelay),
		backoff.WithMaxInterval(p.MaxDelay),
		backoff.WithRandomizationFactor(p.Jitter),
		backoff.WithMultiplier(2),
		backoff.WithMaxElapsedTime(0),
	)
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

// Permanent marks err so that CallWithRetry returns it without retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// CallWithRetry runs fn until it succeeds, returns a Permanent error, the
// attempt budget is spent or ctx is done. The last error is returned.
func CallWithRetry[T any](ctx context.Context, policy RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	return backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		return fn(ctx)
	}, policy.backOff(ctx), func(err error, next time.Duration) {
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("retry_in", next).Msg("Retrying backend call")
	})
}
