package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/kube-rca/bugsys/internal/model"
)

// DefaultRetryPolicy - 설정이 없을 때 사용하는 기본값
func DefaultRetryPolicy() model.RetryPolicy {
	return model.RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Jitter:     true,
	}
}

// RetryHook - 재시도 직전에 호출됨 (attempt는 0부터, 방금 실패한 시도 번호)
type RetryHook func(attempt int, err error, delay time.Duration)

// Retrier - Retry 실행 옵션
type Retrier struct {
	Policy model.RetryPolicy

	// IsRetryable이 nil이면 패키지 IsRetryable 사용
	IsRetryable func(error) bool
	OnRetry     RetryHook

	// sleep은 테스트에서 교체 가능
	sleep func(ctx context.Context, d time.Duration) error
}

// Retry - op를 실행하고 실패 시 지수 백오프 후 재시도
//
// 최대 MaxRetries번 재시도(총 MaxRetries+1회 호출)하고, 소진 시 *RetryError 반환.
// 재시도 불가 에러는 재시도 예산을 쓰지 않고 그대로 반환함.
func Retry[T any](ctx context.Context, policy model.RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	r := Retrier{Policy: policy}
	return Run(ctx, r, op)
}

// Run - Retrier 옵션을 사용하는 Retry
func Run[T any](ctx context.Context, r Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	policy := r.Policy
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	isRetryable := r.IsRetryable
	if isRetryable == nil {
		isRetryable = IsRetryable
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}
		if attempt == policy.MaxRetries {
			break
		}

		delay := Backoff(policy, attempt)
		if r.OnRetry != nil {
			r.OnRetry(attempt, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, &RetryError{Attempts: attempt + 1, Err: err}
		}
	}

	return zero, &RetryError{Attempts: policy.MaxRetries + 1, Err: lastErr}
}

// Backoff - min(base * 2^attempt, maxDelay), Jitter면 [delay/2, delay] 구간에서 랜덤
func Backoff(policy model.RetryPolicy, attempt int) time.Duration {
	if policy.BaseDelay <= 0 {
		return 0
	}
	maxDelay := policy.MaxDelay
	if maxDelay <= 0 {
		maxDelay = policy.BaseDelay
	}

	exp := float64(policy.BaseDelay) * math.Pow(2, float64(attempt))
	delay := time.Duration(math.Min(exp, float64(maxDelay)))

	if policy.Jitter && delay > 0 {
		half := delay / 2
		delay = half + time.Duration(rand.Int63n(int64(half)+1))
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
