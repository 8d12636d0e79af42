// 장애(Failure) 캡처 관련 공통 구조체 정의
// interceptor, service, client, db 레이어에서 공통으로 사용하기 때문에 model 레이어에 별도로 정의

package model

import (
	"strings"
	"time"
)

// Severity - 심각도 (low < medium < high < critical)
// 알림 게이트와 SLA 비교에 순서가 사용됨
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank - 비교용 순서값. 알 수 없는 값은 0
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast - s >= min 여부
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank() && s.Rank() > 0
}

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// ParseSeverity - 대소문자/공백 무시. warning/error/info 같은 별칭도 허용
func ParseSeverity(raw string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low", "info", "debug":
		return SeverityLow, true
	case "medium", "warning", "warn":
		return SeverityMedium, true
	case "high", "error":
		return SeverityHigh, true
	case "critical", "fatal":
		return SeverityCritical, true
	default:
		return "", false
	}
}

// SelfOriginAttr - 캡처 파이프라인 자신이 남긴 로그에 붙는 slog attribute key
// slog interceptor는 이 attribute가 있는 레코드를 다시 캡처하지 않음
const SelfOriginAttr = "capture_origin"

// FailureKind - 장애 분류 (재시도 가능 여부 판단에 사용)
type FailureKind string

const (
	KindTransientInfra FailureKind = "transient_infra" // network/timeout/5xx, 재시도 가능
	KindClientLogic    FailureKind = "client_logic"    // type/reference error, 재시도 불가
	KindAuth           FailureKind = "auth"            // 401/403, 재시도 불가
	KindResourceLoad   FailureKind = "resource_load"
	KindPerformance    FailureKind = "performance"
	KindUnknown        FailureKind = "unknown"
)

// NormalizedFailure - 경계에서 한 번만 만들어지는 정규화된 장애
// 이후 레이어는 이 타입만 다룸
type NormalizedFailure struct {
	Kind    FailureKind `json:"kind"`
	Name    string      `json:"name"`
	Message string      `json:"message"`
	Stack   string      `json:"stack,omitempty"`
}

// CaptureContext - capture 호출 시 함께 전달되는 부가 정보
type CaptureContext struct {
	Component string `json:"component"`
	Action    string `json:"action"`

	// 명시적 severity override (비어 있으면 classifier 결과 사용)
	Severity Severity `json:"severity,omitempty"`

	// Kind override (interceptor가 이미 분류를 알고 있는 경우)
	Kind FailureKind `json:"kind,omitempty"`

	// 어느 interceptor에서 들어왔는지 (slog, transport, recovery, long_task, resource, client ...)
	Source string `json:"source,omitempty"`

	PageURL   string `json:"page_url,omitempty"`
	Route     string `json:"route,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	UserID    string `json:"user_id,omitempty"`

	// 클라이언트가 보낸 세션 ID (없으면 프로세스 세션 ID 사용)
	SessionID string `json:"session_id,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// PageContext - 장애 발생 위치 정보
type PageContext struct {
	URL       string `json:"url,omitempty"`
	Route     string `json:"route,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Host      string `json:"host,omitempty"`
}

// FailureEvent - error_logs 테이블에 저장되는 장애 이벤트
// 저장 이후에는 변경하지 않고, BugReport 등 집계에서 참조만 함
type FailureEvent struct {
	ID          string         `json:"id"`
	Kind        FailureKind    `json:"kind"`
	ErrorType   string         `json:"error_type"`
	Message     string         `json:"message"`
	Stack       string         `json:"stack,omitempty"`
	Component   string         `json:"component"`
	Action      string         `json:"action"`
	Severity    Severity       `json:"severity"`
	SessionID   string         `json:"session_id"`
	UserID      string         `json:"user_id,omitempty"`
	Source      string         `json:"source,omitempty"`
	PageContext PageContext    `json:"page_context"`
	Context     map[string]any `json:"context,omitempty"`
	Fingerprint string         `json:"fingerprint"`
	Timestamp   time.Time      `json:"timestamp"`
}

// FailureReportRequest - 브라우저 클라이언트가 POST /api/v1/errors 로 보내는 페이로드
type FailureReportRequest struct {
	Name      string         `json:"name"`
	Message   string         `json:"message" binding:"required"`
	Stack     string         `json:"stack"`
	Kind      string         `json:"kind"`
	Severity  string         `json:"severity"`
	Component string         `json:"component"`
	Action    string         `json:"action"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	PageURL   string         `json:"page_url"`
	Route     string         `json:"route"`
	Context   map[string]any `json:"context"`
}

// FailureReportResponse - 캡처 결과 응답
type FailureReportResponse struct {
	Status    string `json:"status"`
	ErrorID   string `json:"error_id,omitempty"`
	Persisted bool   `json:"persisted"`
}
