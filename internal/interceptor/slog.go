package interceptor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kube-rca/bugsys/internal/model"
)

// DefaultWarnPatterns - 캡처할 중요 warning 문구 (소문자 부분 일치)
// 그 외 warning은 알림 피로를 막기 위해 로그로만 남김
var DefaultWarnPatterns = []string{
	"deprecated",
	"failed",
	"timeout",
	"unavailable",
	"circuit open",
	"out of memory",
	"security",
}

// Handler - 기존 slog.Handler를 감싸 Error/중요 Warn 레코드를 캡처
//
// 감싼 handler는 모든 레코드를 그대로 받음.
// model.SelfOriginAttr가 붙은 레코드(캡처 파이프라인 내부 로그)는 캡처하지 않음.
type Handler struct {
	next         slog.Handler
	sink         Capturer
	warnPatterns []string

	// WithAttrs로 누적된 attribute (component 추출, self-origin 판단용)
	attrs      []slog.Attr
	selfOrigin bool
}

// NewHandler - warnPatterns가 비어 있으면 DefaultWarnPatterns 사용
func NewHandler(next slog.Handler, sink Capturer, warnPatterns []string) *Handler {
	if len(warnPatterns) == 0 {
		warnPatterns = DefaultWarnPatterns
	}
	lowered := make([]string, 0, len(warnPatterns))
	for _, p := range warnPatterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	return &Handler{next: next, sink: sink, warnPatterns: lowered}
}

// Enabled - Error 레코드는 하위 handler 레벨과 무관하게 캡처 대상
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelError || h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.next.Enabled(ctx, r.Level) {
		err = h.next.Handle(ctx, r)
	}
	if h.shouldCapture(r) {
		h.capture(ctx, r)
	}
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	for _, a := range attrs {
		if a.Key == model.SelfOriginAttr {
			clone.selfOrigin = true
		}
	}
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	return &clone
}

func (h *Handler) shouldCapture(r slog.Record) bool {
	if h.sink == nil || h.selfOrigin || r.Level < slog.LevelWarn {
		return false
	}
	self := false
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == model.SelfOriginAttr {
			self = true
			return false
		}
		return true
	})
	if self {
		return false
	}
	if r.Level >= slog.LevelError {
		return true
	}
	return h.importantWarning(r.Message)
}

func (h *Handler) importantWarning(msg string) bool {
	msg = strings.ToLower(msg)
	for _, p := range h.warnPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func (h *Handler) capture(ctx context.Context, r slog.Record) {
	extra := make(map[string]any)
	component := ""
	var cause error

	collect := func(a slog.Attr) bool {
		switch a.Key {
		case "component":
			component = a.Value.String()
		case "error", "err":
			if e, ok := a.Value.Any().(error); ok {
				cause = e
			}
		}
		extra[a.Key] = a.Value.Resolve().String()
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	name := "LogError"
	var severity model.Severity
	if r.Level < slog.LevelError {
		name = "LogWarning"
		severity = model.SeverityMedium
	}
	msg := r.Message
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	if component == "" {
		component = "logger"
	}

	report(ctx, h.sink, model.NormalizedFailure{Name: name, Message: msg}, model.CaptureContext{
		Component: component,
		Action:    "log",
		Severity:  severity,
		Source:    "slog",
		Extra:     extra,
	})
}
