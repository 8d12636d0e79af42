// 외부 예외 추적기(Sentry) 연동
//
// 설정:
//   - SENTRY_DSN (비어 있으면 비활성화)
//   - SENTRY_ENVIRONMENT
//   - SENTRY_RELEASE

package client

import (
	"errors"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kube-rca/bugsys/internal/config"
	"github.com/kube-rca/bugsys/internal/model"
)

type SentryTracker struct {
	hub *sentry.Hub
}

// NewSentryTracker - DSN이 없으면 아무것도 보내지 않는 tracker 반환
func NewSentryTracker(cfg config.SentryConfig) (*SentryTracker, error) {
	if cfg.DSN == "" {
		return &SentryTracker{}, nil
	}
	return newSentryTracker(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		AttachStacktrace: true,
	})
}

func newSentryTracker(opts sentry.ClientOptions) (*SentryTracker, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &SentryTracker{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (t *SentryTracker) IsConfigured() bool {
	return t != nil && t.hub != nil
}

// CaptureFailure - 정규화된 장애 이벤트 전송 (비동기 transport)
func (t *SentryTracker) CaptureFailure(ev model.FailureEvent) {
	if !t.IsConfigured() {
		return
	}

	t.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentryLevel(ev.Severity))
		scope.SetTag("kind", string(ev.Kind))
		scope.SetTag("severity", string(ev.Severity))
		scope.SetTag("component", ev.Component)
		if ev.Source != "" {
			scope.SetTag("source", ev.Source)
		}
		scope.SetFingerprint([]string{ev.Fingerprint})
		if ev.UserID != "" {
			scope.SetUser(sentry.User{ID: ev.UserID})
		}
		scope.SetContext("failure", sentry.Context{
			"error_id":   ev.ID,
			"action":     ev.Action,
			"session_id": ev.SessionID,
			"page_url":   ev.PageContext.URL,
			"route":      ev.PageContext.Route,
		})
		if len(ev.Context) > 0 {
			scope.SetContext("extra", sentry.Context(ev.Context))
		}
		t.hub.CaptureException(&capturedError{name: ev.ErrorType, err: errors.New(ev.Message)})
	})
}

// Flush - 종료 전 전송 대기
func (t *SentryTracker) Flush(timeout time.Duration) bool {
	if !t.IsConfigured() {
		return true
	}
	return t.hub.Flush(timeout)
}

// capturedError - Sentry 이슈 제목에 ErrorType이 보이도록 이름을 보존
type capturedError struct {
	name string
	err  error
}

func (e *capturedError) Error() string {
	if e.name == "" {
		return e.err.Error()
	}
	return e.name + ": " + e.err.Error()
}

func (e *capturedError) Unwrap() error { return e.err }

func sentryLevel(severity model.Severity) sentry.Level {
	switch severity {
	case model.SeverityCritical:
		return sentry.LevelFatal
	case model.SeverityHigh:
		return sentry.LevelError
	case model.SeverityMedium:
		return sentry.LevelWarning
	default:
		return sentry.LevelInfo
	}
}
