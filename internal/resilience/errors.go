// Package resilience provides retry, circuit breaker and self-healing helpers.
//
// 구성:
//   - Retry: 지수 백오프 + jitter 재시도
//   - Breakers: operation key별 서킷 브레이커 (closed/open/half_open)
//   - Healer: 브레이커 게이트 안에서 재시도 루프를 실행하고 결과를 Outcome으로 반환
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/kube-rca/bugsys/internal/classifier"
)

// ErrCircuitOpen - 브레이커가 열려 있어 호출 자체를 하지 않은 경우
var ErrCircuitOpen = errors.New("circuit open")

// CircuitOpenError - 어떤 key가 언제까지 열려 있는지 포함
type CircuitOpenError struct {
	Key        string
	RetryAfter string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %q (retry after %s)", e.Key, e.RetryAfter)
}

func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }

// RetryError - 재시도 소진 시 마지막 에러와 시도 횟수
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// StatusError - HTTP 응답 코드 기반 실패. 4xx(408/429 제외)는 재시도하지 않음
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// ValidationError - 입력 검증 실패. 재시도하지 않음
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// permanent - Permanent로 감싼 에러는 종류와 상관없이 재시도하지 않음
type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent - 호출자가 재시도 불가를 명시할 때 사용
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// IsRetryable - transient 실패(timeout, 5xx, network)만 true
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var p *permanent
	if errors.As(err, &p) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusRequestTimeout, se.StatusCode == http.StatusTooManyRequests:
			return true
		case se.StatusCode >= 400 && se.StatusCode < 500:
			return false
		default:
			return true
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}

	return classifier.Retryable(classifier.KindOf("", err.Error()))
}
