// 장애 입력 정규화 / context 정리 / fingerprint 계산
// ErrorHandler.Capture의 1, 5단계에서 사용

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"reflect"
	"regexp"
	"strings"

	"github.com/kube-rca/bugsys/internal/model"
	"github.com/kube-rca/bugsys/internal/resilience"
)

const unknownErrorMessage = "Unknown error"

// namedError - 에러 이름을 직접 제공하는 에러 (UncaughtException, UnhandledRejection 등)
type namedError interface {
	ErrorName() string
}

// Normalize - 임의의 입력을 NormalizedFailure로 변환. 어떤 입력에도 panic하지 않음
func Normalize(raw any) model.NormalizedFailure {
	var f model.NormalizedFailure

	switch v := raw.(type) {
	case nil:
		f = model.NormalizedFailure{Name: "Error", Message: unknownErrorMessage}
	case model.NormalizedFailure:
		f = v
	case *model.NormalizedFailure:
		if v != nil {
			f = *v
		}
	case string:
		f = model.NormalizedFailure{Name: "Error", Message: v}
	case error:
		f = model.NormalizedFailure{Name: errorName(v), Message: v.Error()}
	case fmt.Stringer:
		f = model.NormalizedFailure{Name: "Error", Message: v.String()}
	case map[string]any:
		f = model.NormalizedFailure{
			Name:    stringField(v, "name"),
			Message: stringField(v, "message"),
			Stack:   stringField(v, "stack"),
		}
	default:
		f = model.NormalizedFailure{Name: "Error", Message: fmt.Sprintf("%v", v)}
	}

	if strings.TrimSpace(f.Name) == "" {
		f.Name = "Error"
	}
	if strings.TrimSpace(f.Message) == "" {
		f.Message = unknownErrorMessage
	}
	return f
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// errorName - 에러 종류 이름
func errorName(err error) string {
	var named namedError
	if errors.As(err, &named) {
		return named.ErrorName()
	}

	var se *resilience.StatusError
	if errors.As(err, &se) {
		return "HTTPError"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TimeoutError"
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "CircuitOpenError"
	}
	var re *resilience.RetryError
	if errors.As(err, &re) {
		return "RetryExhaustedError"
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return "NetworkError"
	}

	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	switch name {
	case "", "errorString", "wrapError", "wrapErrors", "joinError":
		return "Error"
	}
	return name
}

var sensitiveKeys = map[string]struct{}{
	"password":    {},
	"token":       {},
	"apikey":      {},
	"api_key":     {},
	"secret":      {},
	"privatekey":  {},
	"private_key": {},
}

func isSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

// Sanitize - 민감 키를 최상위와 1단계 중첩에서 제거한 복사본 반환 (원본 불변)
func Sanitize(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if isSensitiveKey(k) {
			continue
		}
		switch nested := v.(type) {
		case map[string]any:
			out[k] = dropSensitive(nested)
		case map[string]string:
			// http.Header 변환값 등
			out[k] = dropSensitive(nested)
		default:
			out[k] = v
		}
	}
	return out
}

func dropSensitive[V any](in map[string]V) map[string]V {
	cleaned := make(map[string]V, len(in))
	for k, v := range in {
		if isSensitiveKey(k) {
			continue
		}
		cleaned[k] = v
	}
	return cleaned
}

var (
	uuidPattern   = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	hexPattern    = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	numberPattern = regexp.MustCompile(`\d+`)
)

// Fingerprint - 같은 원인의 장애를 묶는 키
// 메시지의 id/주소/숫자는 치환하여 값만 다른 장애가 같은 BugReport로 모이게 함
func Fingerprint(errorType, message, component string) string {
	normalized := strings.ToLower(strings.TrimSpace(message))
	normalized = uuidPattern.ReplaceAllString(normalized, "<id>")
	normalized = hexPattern.ReplaceAllString(normalized, "<hex>")
	normalized = numberPattern.ReplaceAllString(normalized, "<n>")

	sum := sha256.Sum256([]byte(errorType + "|" + normalized + "|" + component))
	return hex.EncodeToString(sum[:16])
}
