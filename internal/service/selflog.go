package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kube-rca/bugsys/internal/model"
)

// selfLog - 서비스 내부 로그. capture_origin 표시가 붙어 slog interceptor가 다시 캡처하지 않음
func selfLog(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if logger == nil {
		fmt.Fprintf(os.Stderr, "bugsys: %s\n", msg)
		return
	}
	attrs = append(attrs, slog.Bool(model.SelfOriginAttr, true))
	logger.LogAttrs(ctx, level, msg, attrs...)
}
