package interceptor

import (
	"fmt"
	"net/http"
	"path"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kube-rca/bugsys/internal/model"
)

const (
	DefaultLongTaskThreshold = 100 * time.Millisecond
	DefaultLongTaskHigh      = 500 * time.Millisecond
)

// Recovery - handler panic을 UncaughtException(critical)으로 캡처한 뒤 다시 panic
// 응답 처리는 바깥의 gin.Recovery()가 담당
func Recovery(sink Capturer) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				report(c.Request.Context(), sink, panicFailure(rec, debug.Stack()), model.CaptureContext{
					Component: "http_server",
					Action:    c.Request.Method + " " + c.FullPath(),
					Severity:  model.SeverityCritical,
					Source:    "recovery",
					PageURL:   c.Request.URL.String(),
					Route:     c.FullPath(),
					UserAgent: c.Request.UserAgent(),
				})
				panic(rec)
			}
		}()
		c.Next()
	}
}

// LongTask - 처리 시간이 threshold를 넘은 요청을 performance 장애로 캡처
// threshold 초과 low, high 초과 high
func LongTask(sink Capturer, threshold, high time.Duration) gin.HandlerFunc {
	if threshold <= 0 {
		threshold = DefaultLongTaskThreshold
	}
	if high <= threshold {
		high = DefaultLongTaskHigh
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		if elapsed <= threshold {
			return
		}

		severity := model.SeverityLow
		if elapsed > high {
			severity = model.SeverityHigh
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		report(c.Request.Context(), sink, model.NormalizedFailure{
			Kind:    model.KindPerformance,
			Name:    "LongTask",
			Message: fmt.Sprintf("%s %s took %dms", c.Request.Method, route, elapsed.Milliseconds()),
		}, model.CaptureContext{
			Component: "http_server",
			Action:    c.Request.Method + " " + route,
			Severity:  severity,
			Kind:      model.KindPerformance,
			Source:    "long_task",
			Route:     route,
			Extra:     map[string]any{"duration_ms": elapsed.Milliseconds(), "status": c.Writer.Status()},
		})
	}
}

// ResourceWatch - 정적 리소스 응답 실패(4xx/5xx) 캡처
// script/stylesheet 실패는 페이지가 동작하지 않으므로 high, 이미지/폰트 등은 low
func ResourceWatch(sink Capturer) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		resourceType := ResourceType(c.Request.URL.Path)
		report(c.Request.Context(), sink, model.NormalizedFailure{
			Kind:    model.KindResourceLoad,
			Name:    "ResourceLoadError",
			Message: fmt.Sprintf("failed to load %s %s (%d)", resourceType, c.Request.URL.Path, status),
		}, model.CaptureContext{
			Component: "assets",
			Action:    "load " + resourceType,
			Severity:  ResourceSeverity(resourceType),
			Kind:      model.KindResourceLoad,
			Source:    "resource",
			PageURL:   c.Request.URL.String(),
			UserAgent: c.Request.UserAgent(),
			Extra:     map[string]any{"status": status, "resource_type": resourceType},
		})
	}
}

// ResourceType - 확장자로 리소스 종류 판단 (script, stylesheet, image, font, other)
func ResourceType(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".js", ".mjs", ".cjs":
		return "script"
	case ".css":
		return "stylesheet"
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico", ".avif":
		return "image"
	case ".woff", ".woff2", ".ttf", ".otf", ".eot":
		return "font"
	default:
		return "other"
	}
}

// ResourceSeverity - script/stylesheet는 high, 나머지는 low
func ResourceSeverity(resourceType string) model.Severity {
	switch strings.ToLower(resourceType) {
	case "script", "stylesheet", "css":
		return model.SeverityHigh
	default:
		return model.SeverityLow
	}
}

func panicFailure(rec any, stack []byte) model.NormalizedFailure {
	msg := fmt.Sprint(rec)
	if err, ok := rec.(error); ok {
		msg = err.Error()
	}
	return model.NormalizedFailure{
		Kind:    model.KindUnknown,
		Name:    "UncaughtException",
		Message: msg,
		Stack:   string(stack),
	}
}
