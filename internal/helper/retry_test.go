package helper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func TestCallWithRetry(t *testing.T) {
	t.Run("Succeeds after transient failures", func(t *testing.T) {
		calls := 0
		got, err := CallWithRetry(context.Background(), fastPolicy, "test", func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("temporary")
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 3, calls, "expected exactly three attempts")
	})

	t.Run("Stops after max attempts and returns last error", func(t *testing.T) {
		calls := 0
		_, err := CallWithRetry(context.Background(), fastPolicy, "test", func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("still down")
		})
		require.Error(t, err)
		assert.EqualError(t, err, "still down")
		assert.Equal(t, 3, calls)
	})

	t.Run("Permanent errors are not retried", func(t *testing.T) {
		sentinel := errors.New("bad dimension")
		calls := 0
		_, err := CallWithRetry(context.Background(), fastPolicy, "test", func(ctx context.Context) (int, error) {
			calls++
			return 0, Permanent(sentinel)
		})
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, calls)
	})

	t.Run("Single attempt policy never retries", func(t *testing.T) {
		calls := 0
		_, err := CallWithRetry(context.Background(), RetryPolicy{MaxAttempts: 1}, "test", func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("fail")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("Cancelled context aborts retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour, MaxDelay: time.Hour}
		calls := 0
		_, err := CallWithRetry(ctx, slow, "test", func(ctx context.Context) (int, error) {
			calls++
			cancel()
			return 0, errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
