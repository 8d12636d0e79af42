// 백그라운드 best-effort 작업 실행기
// 실패해도 호출자에게 영향을 주지 않는 작업(버그 리포트 집계, 알림, AI 분석 요청 등)에 사용
//
// 규칙:
//   - 작업마다 별도 timeout context 사용 (요청 context가 끝나도 계속 진행)
//   - panic은 recover 후 로그로 남김
//   - 실패는 slog로만 기록하고 전파하지 않음 (capture_origin 표시로 재캡처 방지)
//   - Wait()로 종료 시점/테스트에서 진행 중인 작업을 기다릴 수 있음

package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kube-rca/bugsys/internal/model"
)

const defaultTimeout = 30 * time.Second

// Runner - best-effort 작업 실행기
type Runner struct {
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRunner - timeout이 0 이하면 30초
func NewRunner(logger *slog.Logger, timeout time.Duration) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Runner{logger: logger, timeout: timeout}
}

// Go - 작업을 비동기로 실행. Close 이후에는 무시
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("Skipping background job after shutdown", "job", name, model.SelfOriginAttr, true)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		if err := r.run(name, fn); err != nil {
			r.logger.Warn(fmt.Sprintf("Failed to run background job %s: %v", name, err), "job", name, model.SelfOriginAttr, true)
		}
	}()
}

func (r *Runner) run(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return fn(ctx)
}

// Wait - 진행 중인 작업 완료 대기
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close - 신규 작업을 막고 진행 중인 작업을 ctx 만료 전까지 대기
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
