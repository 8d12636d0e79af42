// 장애 캡처 싱크 (ErrorHandler)
// 모든 interceptor와 handler가 발견한 장애는 Capture 하나로 모임
//
// 처리 흐름:
//  1. 입력 정규화 (Normalize)
//  2. severity 분류 (override 우선)
//  3. 로컬 로그 기록 (동기, 실패 시 stderr)
//  4. 외부 예외 추적기 전송 (best-effort)
//  5. error_logs 저장 (session id, page context, 민감 키 제거된 context)
//  6. BugReport upsert (비동기)
//  7. severity >= high면 AlertService 호출 (비동기)
//  8. AI 수정 제안 요청 (비동기)
//
// Capture는 어떤 입력에도 panic/에러를 호출자에게 돌려주지 않음

package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kube-rca/bugsys/internal/classifier"
	"github.com/kube-rca/bugsys/internal/model"
	"github.com/kube-rca/bugsys/internal/telemetry"
)

const persistTimeout = 5 * time.Second

// errorLogRepo - DB 인터페이스
type errorLogRepo interface {
	InsertErrorLog(ctx context.Context, ev model.FailureEvent) error
	CreateOrUpdateBugReport(ctx context.Context, errorLogID string) (string, error)
}

// exceptionTracker - Sentry 등 외부 추적기
type exceptionTracker interface {
	CaptureFailure(ev model.FailureEvent)
}

type alertSender interface {
	SendAlert(ctx context.Context, payload model.AlertPayload) error
}

type suggestionRequester interface {
	RequestSuggestions(ctx context.Context, ev model.FailureEvent) error
}

// jobRunner - best-effort 비동기 작업 실행기 (async.Runner)
type jobRunner interface {
	Go(name string, fn func(ctx context.Context) error)
}

// ErrorHandler 구조체 정의
type ErrorHandler struct {
	repo        errorLogRepo
	classifier  *classifier.Classifier
	tracker     exceptionTracker
	alerts      alertSender
	suggestions suggestionRequester
	runner      jobRunner
	logger      *slog.Logger

	sessionID string
	host      string
	now       func() time.Time

	captured atomic.Uint64
}

// NewErrorHandler - tracker/alerts/suggestions는 nil이면 해당 단계 생략
func NewErrorHandler(repo errorLogRepo, cls *classifier.Classifier, runner jobRunner, logger *slog.Logger) *ErrorHandler {
	if cls == nil {
		cls = classifier.New()
	}
	host, _ := os.Hostname()
	return &ErrorHandler{
		repo:       repo,
		classifier: cls,
		runner:     runner,
		logger:     logger,
		sessionID:  uuid.NewString(),
		host:       host,
		now:        time.Now,
	}
}

// WithTracker - 외부 예외 추적기 연결
func (h *ErrorHandler) WithTracker(t exceptionTracker) *ErrorHandler {
	h.tracker = t
	return h
}

// WithAlerts - 알림 서비스 연결
func (h *ErrorHandler) WithAlerts(a alertSender) *ErrorHandler {
	h.alerts = a
	return h
}

// WithSuggestions - AI 수정 제안 서비스 연결
func (h *ErrorHandler) WithSuggestions(s suggestionRequester) *ErrorHandler {
	h.suggestions = s
	return h
}

// SessionID - 프로세스 세션 ID (프로세스 수명 동안 고정)
func (h *ErrorHandler) SessionID() string {
	return h.sessionID
}

// CapturedCount - 지금까지 캡처한 장애 수 (예측 분석의 error rate 계산용)
func (h *ErrorHandler) CapturedCount() uint64 {
	return h.captured.Load()
}

// Capture - 장애 캡처. 저장된 id와 성공 여부 반환 (저장 실패 시 "", false)
func (h *ErrorHandler) Capture(ctx context.Context, raw any, cc model.CaptureContext) (id string, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			fmt.Fprintf(os.Stderr, "bugsys: capture failed internally: %v\n", rec)
			id, ok = "", false
		}
	}()
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. 정규화
	f := Normalize(raw)
	switch {
	case cc.Kind != "":
		f.Kind = cc.Kind
	case f.Kind == "":
		f.Kind = h.classifier.KindOf(f.Name, f.Message)
	}

	// 2. 분류 (부수효과 이전)
	severity := h.classifier.Classify(f, classifier.Hints{Severity: cc.Severity, Kind: cc.Kind})

	ev := h.buildEvent(f, severity, cc)
	h.captured.Add(1)
	telemetry.ObserveCapture(ev.Kind, ev.Severity, ev.Source)

	// 3. 로컬 로그
	h.logLocal(ctx, ev)

	// 4. 외부 추적기
	h.forwardToTracker(ev)

	// 7. 알림은 저장 성공 여부와 무관하게 전송 (DB 장애 시에도 운영자에게 도달해야 함)
	defer func() { h.dispatchAlert(ev) }()

	// 5. 저장
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := h.repo.InsertErrorLog(persistCtx, ev); err != nil {
		telemetry.ObservePersist(err)
		h.logInternal(ctx, "Failed to persist error log", err)
		ev.ID = ""
		return "", false
	}
	telemetry.ObservePersist(nil)

	// 6. BugReport 집계
	h.runner.Go("bug_report", func(ctx context.Context) error {
		_, err := h.repo.CreateOrUpdateBugReport(ctx, ev.ID)
		return err
	})

	// 8. AI 수정 제안
	if h.suggestions != nil {
		h.runner.Go("fix_suggestion", func(ctx context.Context) error {
			return h.suggestions.RequestSuggestions(ctx, ev)
		})
	}

	return ev.ID, true
}

func (h *ErrorHandler) buildEvent(f model.NormalizedFailure, severity model.Severity, cc model.CaptureContext) model.FailureEvent {
	sessionID := cc.SessionID
	if sessionID == "" {
		sessionID = h.sessionID
	}
	component := cc.Component
	if component == "" {
		component = "unknown"
	}

	return model.FailureEvent{
		ID:        uuid.NewString(),
		Kind:      f.Kind,
		ErrorType: f.Name,
		Message:   f.Message,
		Stack:     f.Stack,
		Component: component,
		Action:    cc.Action,
		Severity:  severity,
		SessionID: sessionID,
		UserID:    cc.UserID,
		Source:    cc.Source,
		PageContext: model.PageContext{
			URL:       cc.PageURL,
			Route:     cc.Route,
			UserAgent: cc.UserAgent,
			Host:      h.host,
		},
		Context:     Sanitize(cc.Extra),
		Fingerprint: Fingerprint(f.Name, f.Message, component),
		Timestamp:   h.now().UTC(),
	}
}

func (h *ErrorHandler) logLocal(ctx context.Context, ev model.FailureEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			fmt.Fprintf(os.Stderr, "bugsys: [%s] %s: %s (log failed: %v)\n", ev.Severity, ev.ErrorType, ev.Message, rec)
		}
	}()
	if h.logger == nil {
		fmt.Fprintf(os.Stderr, "bugsys: [%s] %s: %s\n", ev.Severity, ev.ErrorType, ev.Message)
		return
	}

	h.logger.LogAttrs(ctx, logLevel(ev.Severity), fmt.Sprintf("Captured %s: %s", ev.ErrorType, ev.Message),
		slog.String("error_id", ev.ID),
		slog.String("severity", string(ev.Severity)),
		slog.String("kind", string(ev.Kind)),
		slog.String("component", ev.Component),
		slog.String("action", ev.Action),
		slog.String("source", ev.Source),
		slog.String("fingerprint", ev.Fingerprint),
		slog.Bool(model.SelfOriginAttr, true),
	)
}

func (h *ErrorHandler) logInternal(ctx context.Context, msg string, err error) {
	selfLog(ctx, h.logger, slog.LevelWarn, fmt.Sprintf("%s: %v", msg, err))
}

func (h *ErrorHandler) forwardToTracker(ev model.FailureEvent) {
	if h.tracker == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			h.logInternal(context.Background(), "Failed to forward to exception tracker", fmt.Errorf("panic: %v", rec))
		}
	}()
	h.tracker.CaptureFailure(ev)
}

func (h *ErrorHandler) dispatchAlert(ev model.FailureEvent) {
	if h.alerts == nil || !ev.Severity.AtLeast(model.SeverityHigh) {
		return
	}
	payload := AlertPayloadFromEvent(ev)
	h.runner.Go("alert", func(ctx context.Context) error {
		return h.alerts.SendAlert(ctx, payload)
	})
}

// AlertPayloadFromEvent - 장애 이벤트로 알림 페이로드 생성
func AlertPayloadFromEvent(ev model.FailureEvent) model.AlertPayload {
	title := ev.ErrorType
	if ev.Component != "" && ev.Component != "unknown" {
		title = fmt.Sprintf("%s in %s", ev.ErrorType, ev.Component)
	}
	return model.AlertPayload{
		Title:     title,
		Message:   ev.Message,
		Severity:  ev.Severity,
		ErrorID:   ev.ID,
		Component: ev.Component,
		Source:    ev.Source,
		Timestamp: ev.Timestamp,
	}
}

func logLevel(severity model.Severity) slog.Level {
	switch severity {
	case model.SeverityCritical, model.SeverityHigh:
		return slog.LevelError
	case model.SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
