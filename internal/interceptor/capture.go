// Package interceptor installs process-wide hooks that report failures to the
// capture sink.
//
// 모든 interceptor는 CaptureContext를 만들어 Capturer.Capture를 호출하는 일만 함.
// 원래의 반환값/panic/에러 흐름은 그대로 유지.
package interceptor

import (
	"context"
	"fmt"
	"os"

	"github.com/kube-rca/bugsys/internal/model"
)

// Capturer - 캡처 싱크 (service.ErrorHandler)
type Capturer interface {
	Capture(ctx context.Context, raw any, cc model.CaptureContext) (string, bool)
}

// report - sink가 panic해도 호출자 흐름에 영향 없음
func report(ctx context.Context, sink Capturer, raw any, cc model.CaptureContext) {
	if sink == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			fmt.Fprintf(os.Stderr, "bugsys: interceptor capture failed: %v\n", rec)
		}
	}()
	if ctx == nil {
		ctx = context.Background()
	}
	sink.Capture(ctx, raw, cc)
}
