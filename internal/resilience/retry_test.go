package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-rca/bugsys/internal/model"
)

func fastPolicy(maxRetries int) model.RetryPolicy {
	return model.RetryPolicy{MaxRetries: maxRetries, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Jitter: true}
}

func TestRetrySucceedsAfterKFailures(t *testing.T) {
	for k := 0; k < 3; k++ {
		calls := 0
		got, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
			calls++
			if calls <= k {
				return "", errors.New("temporary glitch")
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, k+1, calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	boom := errors.New("connection refused")
	_, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)

	var re *RetryError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 4, re.Attempts)
	assert.ErrorIs(t, err, boom)
}

func TestRetryNonRetryablePropagatesImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"4xx", &StatusError{StatusCode: http.StatusBadRequest}},
		{"401", &StatusError{StatusCode: http.StatusUnauthorized}},
		{"validation", &ValidationError{Field: "email", Reason: "required"}},
		{"permanent", Permanent(errors.New("nope"))},
		{"type-error", errors.New("TypeError: x is undefined")},
		{"canceled", context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			_, err := Retry(context.Background(), fastPolicy(5), func(ctx context.Context) (int, error) {
				calls++
				return 0, tt.err
			})
			assert.Equal(t, 1, calls)
			assert.ErrorIs(t, err, tt.err)

			var re *RetryError
			assert.False(t, errors.As(err, &re))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&StatusError{StatusCode: 503}))
	assert.True(t, IsRetryable(&StatusError{StatusCode: 429}))
	assert.True(t, IsRetryable(&StatusError{StatusCode: 408}))
	assert.False(t, IsRetryable(&StatusError{StatusCode: 404}))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(ErrCircuitOpen))
	assert.False(t, IsRetryable(nil))
}

func TestBackoffIsCapped(t *testing.T) {
	p := model.RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, 100*time.Millisecond, Backoff(p, 0))
	assert.Equal(t, 200*time.Millisecond, Backoff(p, 1))
	assert.Equal(t, 800*time.Millisecond, Backoff(p, 3))
	assert.Equal(t, time.Second, Backoff(p, 10))

	p.Jitter = true
	for i := 0; i < 20; i++ {
		d := Backoff(p, 2)
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.LessOrEqual(t, d, 400*time.Millisecond)
	}
}

func TestRetryUsesSuspendBetweenAttempts(t *testing.T) {
	var delays []time.Duration
	r := Retrier{
		Policy: model.RetryPolicy{MaxRetries: 2, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second},
		sleep: func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}
	_, err := Run(context.Background(), r, func(ctx context.Context) (int, error) {
		return 0, errors.New("timeout")
	})
	require.Error(t, err)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, delays)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, model.RetryPolicy{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("timeout")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}
