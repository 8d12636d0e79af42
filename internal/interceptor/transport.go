package interceptor

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/kube-rca/bugsys/internal/model"
)

// 패키지 초기화 시점의 기본 transport (Install 이후 DefaultTransport가 교체되어도 유지)
var baseTransport = http.DefaultTransport

// Transport - 외부 HTTP 요청 실패를 캡처하는 RoundTripper
//
//   - 전송 에러: NetworkError, high
//   - 5xx: HTTPError, high
//   - 4xx: HTTPError, medium
//
// 응답/에러는 변경 없이 호출자에게 그대로 반환.
// Untracked(ctx)로 표시된 요청은 캡처/집계하지 않음.
type Transport struct {
	Base http.RoundTripper
	sink Capturer

	requests atomic.Uint64
	failures atomic.Uint64
}

// NewTransport - base가 nil이면 원래의 http.DefaultTransport 사용
func NewTransport(base http.RoundTripper, sink Capturer) *Transport {
	return &Transport{Base: base, sink: sink}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil || base == t {
		base = baseTransport
	}
	if IsUntracked(req.Context()) {
		return base.RoundTrip(req)
	}

	t.requests.Add(1)
	resp, err := base.RoundTrip(req)
	switch {
	case err != nil:
		t.failures.Add(1)
		t.capture(req, "NetworkError", err.Error(), model.KindTransientInfra, model.SeverityHigh, 0)
	case resp.StatusCode >= 500:
		t.failures.Add(1)
		t.capture(req, "HTTPError", fmt.Sprintf("%s %s returned %d", req.Method, req.URL.Redacted(), resp.StatusCode),
			model.KindTransientInfra, model.SeverityHigh, resp.StatusCode)
	case resp.StatusCode >= 400:
		t.failures.Add(1)
		kind := model.KindClientLogic
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = model.KindAuth
		}
		t.capture(req, "HTTPError", fmt.Sprintf("%s %s returned %d", req.Method, req.URL.Redacted(), resp.StatusCode),
			kind, model.SeverityMedium, resp.StatusCode)
	}
	return resp, err
}

// Counts - (전체 요청 수, 실패 수). 예측 분석의 요청률 계산에 사용
func (t *Transport) Counts() (requests, failures uint64) {
	return t.requests.Load(), t.failures.Load()
}

func (t *Transport) capture(req *http.Request, name, msg string, kind model.FailureKind, severity model.Severity, status int) {
	extra := map[string]any{
		"method": req.Method,
		"host":   req.URL.Host,
	}
	if status > 0 {
		extra["status"] = status
	}
	report(req.Context(), t.sink, model.NormalizedFailure{Name: name, Message: msg, Kind: kind}, model.CaptureContext{
		Component: "http_client",
		Action:    req.Method + " " + req.URL.Path,
		Severity:  severity,
		Kind:      kind,
		Source:    "transport",
		PageURL:   req.URL.Redacted(),
		Extra:     extra,
	})
}
