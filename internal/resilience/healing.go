package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/kube-rca/bugsys/internal/model"
)

// Reporter - 최종 실패를 전달받는 캡처 싱크 (service.ErrorHandler)
type Reporter interface {
	Capture(ctx context.Context, raw any, cc model.CaptureContext) (string, bool)
}

// Options - Execute 옵션
type Options struct {
	EnableRetry          bool
	Retry                model.RetryPolicy // MaxRetries가 0이면 Healer 기본 정책 사용
	EnableCircuitBreaker bool

	// Report - 최종 실패 시 Reporter로 전달 (Reporter가 설정된 Healer에서만 동작)
	Report    bool
	Component string
}

// Outcome - 실행 결과. 실패도 panic/throw 대신 구조화된 값으로 반환
type Outcome[T any] struct {
	Value       T
	Err         error
	Attempts    int
	CircuitOpen bool

	// Recovered - 한 번 이상 실패한 뒤 성공
	Recovered bool
}

// OK - 성공 여부
func (o Outcome[T]) OK() bool { return o.Err == nil }

// Healer - 서킷 브레이커 게이트 안에서 재시도 루프를 실행
type Healer struct {
	breakers *Breakers
	policy   model.RetryPolicy
	reporter Reporter
	record   func(model.HealingAction)
	onRetry  func(key string, attempt int, err error)
}

// HealerOption - Healer 생성 옵션
type HealerOption func(*Healer)

// WithReporter - 최종 실패 보고 대상
func WithReporter(r Reporter) HealerOption {
	return func(h *Healer) { h.reporter = r }
}

// WithRecorder - healing_actions 기록 콜백 (best-effort로 호출 측에서 비동기 처리)
func WithRecorder(fn func(model.HealingAction)) HealerOption {
	return func(h *Healer) { h.record = fn }
}

// WithRetryHook - 재시도 발생 시 operation key와 함께 호출 (telemetry 연동용)
func WithRetryHook(fn func(key string, attempt int, err error)) HealerOption {
	return func(h *Healer) { h.onRetry = fn }
}

// NewHealer - breakers는 여러 Healer가 공유할 수 있음
func NewHealer(breakers *Breakers, policy model.RetryPolicy, opts ...HealerOption) *Healer {
	h := &Healer{breakers: breakers, policy: policy}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Breakers - 공유 브레이커 레지스트리
func (h *Healer) Breakers() *Breakers { return h.breakers }

// Execute - op를 self-healing 정책으로 실행
//
//  1. 브레이커가 열려 있으면 op를 한 번도 호출하지 않고 즉시 실패 Outcome 반환
//  2. EnableRetry면 Retry 루프, 아니면 1회 호출
//  3. 브레이커에 최종 결과 1회 반영
//  4. 재시도/브레이커가 개입한 경우 healing action 기록
func Execute[T any](ctx context.Context, h *Healer, key string, op func(ctx context.Context) (T, error), opts Options) Outcome[T] {
	start := time.Now()
	var out Outcome[T]

	useBreaker := opts.EnableCircuitBreaker && h.breakers != nil
	var ticket Ticket
	if useBreaker {
		var err error
		if ticket, err = h.breakers.Allow(key); err != nil {
			out.Err = err
			out.CircuitOpen = true
			h.recordAction(key, "circuit_open", out.Attempts, err, start)
			h.report(ctx, key, err, opts)
			return out
		}
	}

	counted := func(ctx context.Context) (T, error) {
		out.Attempts++
		return op(ctx)
	}

	var err error
	if opts.EnableRetry {
		policy := opts.Retry
		if policy.MaxRetries == 0 && policy.BaseDelay == 0 {
			policy = h.policy
		}
		out.Value, err = Run(ctx, Retrier{Policy: policy, OnRetry: h.retryHook(key)}, counted)
	} else {
		out.Value, err = counted(ctx)
	}
	out.Err = err

	if useBreaker {
		h.breakers.Record(ticket, err)
	}

	switch {
	case err == nil && out.Attempts > 1:
		out.Recovered = true
		h.recordAction(key, "recovered", out.Attempts, nil, start)
	case err != nil:
		action := "failed"
		var re *RetryError
		if errors.As(err, &re) {
			action = "exhausted"
		}
		h.recordAction(key, action, out.Attempts, err, start)
		h.report(ctx, key, err, opts)
	}
	return out
}

func (h *Healer) retryHook(key string) RetryHook {
	if h.onRetry == nil {
		return nil
	}
	return func(attempt int, err error, _ time.Duration) {
		h.onRetry(key, attempt, err)
	}
}

func (h *Healer) recordAction(key, action string, attempts int, err error, start time.Time) {
	if h.record == nil {
		return
	}
	a := model.HealingAction{
		OperationKey: key,
		Action:       action,
		Attempts:     attempts,
		Success:      err == nil,
		DurationMs:   time.Since(start).Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}
	if err != nil {
		a.Error = err.Error()
	}
	h.record(a)
}

func (h *Healer) report(ctx context.Context, key string, err error, opts Options) {
	if !opts.Report || h.reporter == nil {
		return
	}
	h.reporter.Capture(ctx, err, model.CaptureContext{
		Component: opts.Component,
		Action:    key,
		Source:    "self_healing",
		Extra:     map[string]any{"operation_key": key},
	})
}
