package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-rca/bugsys/internal/model"
	"github.com/kube-rca/bugsys/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func doJSON(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type fakeCapturer struct {
	raw any
	cc  model.CaptureContext
	ok  bool
}

func (f *fakeCapturer) Capture(ctx context.Context, raw any, cc model.CaptureContext) (string, bool) {
	f.raw, f.cc = raw, cc
	if !f.ok {
		return "", false
	}
	return "err-1", true
}

type fakeSuggestionReader struct{}

func (fakeSuggestionReader) GetSuggestions(ctx context.Context, errorLogID string) ([]model.FixSuggestion, error) {
	if errorLogID == "missing" {
		return nil, nil
	}
	return []model.FixSuggestion{{ErrorLogID: errorLogID, RootCause: "nil cart", Source: "fallback"}}, nil
}

func TestReportFailure(t *testing.T) {
	capturer := &fakeCapturer{ok: true}
	r := gin.New()
	r.POST("/api/v1/errors", NewFailureHandler(capturer, nil).ReportFailure)

	w := doJSON(r, http.MethodPost, "/api/v1/errors", `{
		"name": "TypeError",
		"message": "Cannot read properties of undefined",
		"kind": "client_logic",
		"severity": "HIGH",
		"component": "Checkout",
		"session_id": "s-1",
		"context": {"cartId": 42, "token": "x"}
	}`, "User-Agent", "Mozilla/5.0")

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp model.FailureReportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "err-1", resp.ErrorID)
	assert.True(t, resp.Persisted)

	nf, ok := capturer.raw.(model.NormalizedFailure)
	require.True(t, ok)
	assert.Equal(t, "TypeError", nf.Name)
	assert.Equal(t, model.KindClientLogic, nf.Kind)
	assert.Equal(t, model.SeverityHigh, capturer.cc.Severity)
	assert.Equal(t, "client", capturer.cc.Source)
	assert.Equal(t, "s-1", capturer.cc.SessionID)
	assert.Equal(t, "Mozilla/5.0", capturer.cc.UserAgent)
}

func TestReportFailureDegraded(t *testing.T) {
	r := gin.New()
	r.POST("/api/v1/errors", NewFailureHandler(&fakeCapturer{ok: false}, nil).ReportFailure)

	w := doJSON(r, http.MethodPost, "/api/v1/errors", `{"message":"boom","kind":"bogus"}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp model.FailureReportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.False(t, resp.Persisted)
}

func TestReportFailureRequiresMessage(t *testing.T) {
	r := gin.New()
	r.POST("/api/v1/errors", NewFailureHandler(&fakeCapturer{ok: true}, nil).ReportFailure)

	w := doJSON(r, http.MethodPost, "/api/v1/errors", `{"name":"Error"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSuggestions(t *testing.T) {
	r := gin.New()
	r.GET("/api/v1/errors/:id/suggestions", NewFailureHandler(&fakeCapturer{}, fakeSuggestionReader{}).GetSuggestions)

	w := doJSON(r, http.MethodGet, "/api/v1/errors/err-1/suggestions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp model.SuggestionListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "nil cart", resp.Data[0].RootCause)

	w = doJSON(r, http.MethodGet, "/api/v1/errors/missing/suggestions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success","data":[]}`, w.Body.String())
}

type fakeReliabilityService struct {
	target     float64
	days       int
	status     string
	resolvedAt time.Time
	err        error
}

func (f *fakeReliabilityService) GetMTTRMetrics(ctx context.Context, days int) model.MTTRMetrics {
	f.days = days
	return model.MTTRMetrics{}
}

func (f *fakeReliabilityService) GetReliabilityTrends(ctx context.Context, days int) []model.DailyReliability {
	f.days = days
	return nil
}

func (f *fakeReliabilityService) GetSLACompliance(ctx context.Context, targetMinutes float64, days int) model.SLACompliance {
	f.target, f.days = targetMinutes, days
	return model.SLACompliance{}
}

func (f *fakeReliabilityService) ListBugs(ctx context.Context, status string, limit int) ([]model.BugReport, error) {
	return nil, f.err
}

func (f *fakeReliabilityService) UpdateBugStatus(ctx context.Context, bugID string, status string) error {
	f.status = status
	return f.err
}

func (f *fakeReliabilityService) RecordResolution(ctx context.Context, bugID string, fixedAt time.Time) error {
	f.resolvedAt = fixedAt
	return f.err
}

func reliabilityRouter(svc *fakeReliabilityService) *gin.Engine {
	h := NewReliabilityHandler(svc)
	r := gin.New()
	r.GET("/api/v1/bugs", h.ListBugs)
	r.PATCH("/api/v1/bugs/:id/status", h.UpdateBugStatus)
	r.POST("/api/v1/bugs/:id/resolve", h.ResolveBug)
	r.GET("/api/v1/reliability/mttr", h.GetMTTR)
	r.GET("/api/v1/reliability/trends", h.GetTrends)
	r.GET("/api/v1/reliability/sla", h.GetSLA)
	return r
}

func TestSLADefaults(t *testing.T) {
	svc := &fakeReliabilityService{}
	r := reliabilityRouter(svc)

	w := doJSON(r, http.MethodGet, "/api/v1/reliability/sla", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 240.0, svc.target)
	assert.Equal(t, 30, svc.days)

	w = doJSON(r, http.MethodGet, "/api/v1/reliability/sla?target=60&days=7", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 60.0, svc.target)
	assert.Equal(t, 7, svc.days)

	w = doJSON(r, http.MethodGet, "/api/v1/reliability/sla?target=-5", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrendsReturnsEmptyArray(t *testing.T) {
	r := reliabilityRouter(&fakeReliabilityService{})

	w := doJSON(r, http.MethodGet, "/api/v1/reliability/trends?days=abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success","data":[]}`, w.Body.String())
}

func TestBugEndpointsMapErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"invalid", fmt.Errorf("%w: unknown status", service.ErrInvalidInput), http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: bug", service.ErrNotFound), http.StatusNotFound},
		{"db down", fmt.Errorf("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeReliabilityService{err: tt.err}
			r := reliabilityRouter(svc)

			w := doJSON(r, http.MethodPatch, "/api/v1/bugs/b-1/status", `{"status":"acknowledged"}`)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, "acknowledged", svc.status)

			w = doJSON(r, http.MethodPost, "/api/v1/bugs/b-1/resolve", "")
			assert.Equal(t, tt.want, w.Code)
			assert.True(t, svc.resolvedAt.IsZero())
		})
	}
}

func TestResolveBugWithFixedAt(t *testing.T) {
	svc := &fakeReliabilityService{}
	r := reliabilityRouter(svc)

	w := doJSON(r, http.MethodPost, "/api/v1/bugs/b-1/resolve", `{"fixed_at":"2026-10-01T10:30:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2026, 10, 1, 10, 30, 0, 0, time.UTC), svc.resolvedAt.UTC())
}

type fakePredictions struct{ latest *model.PredictionResult }

func (f fakePredictions) Latest() *model.PredictionResult { return f.latest }

type fakeBreakers struct{ snapshots []model.BreakerSnapshot }

func (f fakeBreakers) Snapshot() []model.BreakerSnapshot { return f.snapshots }

type fakeTestAlerts struct{ resp model.AlertDispatchResponse }

func (f fakeTestAlerts) SendTestAlert(ctx context.Context) model.AlertDispatchResponse { return f.resp }

func TestSystemEndpoints(t *testing.T) {
	h := NewSystemHandler(fakePredictions{}, fakeBreakers{}, fakeTestAlerts{resp: model.AlertDispatchResponse{Status: "failed", Failed: 1}})
	r := gin.New()
	r.GET("/api/v1/predictions/latest", h.GetLatestPrediction)
	r.GET("/api/v1/breakers", h.ListBreakers)
	r.POST("/api/v1/alerts/test", h.SendTestAlert)

	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodGet, "/api/v1/predictions/latest", "").Code)

	w := doJSON(r, http.MethodGet, "/api/v1/breakers", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success","data":[]}`, w.Body.String())

	assert.Equal(t, http.StatusBadGateway, doJSON(r, http.MethodPost, "/api/v1/alerts/test", "").Code)
}

func TestLatestPrediction(t *testing.T) {
	h := NewSystemHandler(fakePredictions{latest: &model.PredictionResult{RiskScore: 0.4, RiskLevel: model.SeverityMedium}}, nil, nil)
	r := gin.New()
	r.GET("/api/v1/predictions/latest", h.GetLatestPrediction)

	w := doJSON(r, http.MethodGet, "/api/v1/predictions/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp model.PredictionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.SeverityMedium, resp.Data.RiskLevel)
}

func signToken(t *testing.T, secret string, method jwt.SigningMethod, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/admin", AuthMiddleware("s3cret"), func(c *gin.Context) {
		c.String(http.StatusOK, AuthSubject(c))
	})

	assert.Equal(t, http.StatusUnauthorized, doJSON(r, http.MethodGet, "/admin", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doJSON(r, http.MethodGet, "/admin", "", "Authorization", "Bearer ").Code)

	expired := signToken(t, "s3cret", jwt.SigningMethodHS256, time.Now().Add(-time.Hour))
	assert.Equal(t, http.StatusUnauthorized, doJSON(r, http.MethodGet, "/admin", "", "Authorization", "Bearer "+expired).Code)

	wrongKey := signToken(t, "other", jwt.SigningMethodHS256, time.Now().Add(time.Hour))
	assert.Equal(t, http.StatusUnauthorized, doJSON(r, http.MethodGet, "/admin", "", "Authorization", "Bearer "+wrongKey).Code)

	wrongAlg := signToken(t, "s3cret", jwt.SigningMethodHS512, time.Now().Add(time.Hour))
	assert.Equal(t, http.StatusUnauthorized, doJSON(r, http.MethodGet, "/admin", "", "Authorization", "Bearer "+wrongAlg).Code)

	valid := signToken(t, "s3cret", jwt.SigningMethodHS256, time.Now().Add(time.Hour))
	w := doJSON(r, http.MethodGet, "/admin", "", "Authorization", "Bearer "+valid)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops", w.Body.String())
}

func TestAuthMiddlewareDisabledWithoutSecret(t *testing.T) {
	r := gin.New()
	r.GET("/admin", AuthMiddleware(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodGet, "/admin", "").Code)
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://app.example.com"}, true))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := doJSON(r, http.MethodGet, "/x", "", "Origin", "https://app.example.com")
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = doJSON(r, http.MethodGet, "/x", "", "Origin", "https://evil.example.com")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = doJSON(r, http.MethodOptions, "/x", "", "Origin", "https://app.example.com")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestOpenAPIDoc(t *testing.T) {
	r := gin.New()
	r.GET("/openapi.json", OpenAPIDoc)

	w := doJSON(r, http.MethodGet, "/openapi.json", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	var doc struct {
		Info  struct{ Title string } `json:"info"`
		Paths map[string]any         `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "bugsys API", doc.Info.Title)
	assert.Contains(t, doc.Paths, "/api/v1/bugs")
	assert.Contains(t, doc.Paths, "/api/v1/settings/webhooks")
}
