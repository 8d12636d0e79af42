package interceptor

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/kube-rca/bugsys/internal/model"
)

// Guard - goroutine 최상단에서 defer로 사용. panic을 UncaughtException(critical)으로 캡처 후 다시 panic
//
//	go func() {
//		defer interceptor.Guard(sink, "worker")
//		...
//	}()
func Guard(sink Capturer, component string) {
	rec := recover()
	if rec == nil {
		return
	}
	report(context.Background(), sink, panicFailure(rec, debug.Stack()), model.CaptureContext{
		Component: component,
		Action:    "goroutine",
		Severity:  model.SeverityCritical,
		Source:    "guard",
	})
	panic(rec)
}

// Go - 분리된 작업 실행. 반환된 에러는 UnhandledRejection으로 캡처 (호출자에게는 전달하지 않음)
// panic은 Guard와 같이 캡처 후 다시 panic
func Go(sink Capturer, name string, fn func() error) {
	go func() {
		defer Guard(sink, name)
		if err := fn(); err != nil {
			report(context.Background(), sink, model.NormalizedFailure{
				Name:    "UnhandledRejection",
				Message: err.Error(),
			}, model.CaptureContext{
				Component: name,
				Action:    "task",
				Source:    "goroutine",
				Extra:     map[string]any{"cause_type": fmt.Sprintf("%T", err)},
			})
		}
	}()
}
