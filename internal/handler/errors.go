// 브라우저 클라이언트 장애 수집 핸들러
//
// 요청 흐름:
//  1. 클라이언트 SDK가 POST /api/v1/errors로 장애 보고 (exception, rejection, console, fetch, resource, long task)
//  2. FailureReportRequest를 NormalizedFailure + CaptureContext로 변환
//  3. ErrorHandler.Capture 호출 (저장 실패해도 202 응답, persisted=false)

package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kube-rca/bugsys/internal/model"
	"github.com/kube-rca/bugsys/internal/service"
)

// failureCapturer - 캡처 싱크 (service.ErrorHandler)
type failureCapturer interface {
	Capture(ctx context.Context, raw any, cc model.CaptureContext) (string, bool)
}

// suggestionReader - 수정 제안 조회 (service.SuggestionService)
type suggestionReader interface {
	GetSuggestions(ctx context.Context, errorLogID string) ([]model.FixSuggestion, error)
}

// FailureHandler 구조체 정의
type FailureHandler struct {
	capturer    failureCapturer
	suggestions suggestionReader
}

// suggestions는 nil이면 조회 시 빈 목록
func NewFailureHandler(capturer failureCapturer, suggestions suggestionReader) *FailureHandler {
	return &FailureHandler{capturer: capturer, suggestions: suggestions}
}

var clientKinds = map[string]model.FailureKind{
	string(model.KindTransientInfra): model.KindTransientInfra,
	string(model.KindClientLogic):    model.KindClientLogic,
	string(model.KindAuth):           model.KindAuth,
	string(model.KindResourceLoad):   model.KindResourceLoad,
	string(model.KindPerformance):    model.KindPerformance,
	string(model.KindUnknown):        model.KindUnknown,
}

// ReportFailure godoc
// @Summary Report a client-side failure
// @Description Browser SDK reports exceptions, rejections, console errors, failed requests, resource loads and long tasks.
// @Tags errors
// @Accept json
// @Produce json
// @Param request body model.FailureReportRequest true "Failure report"
// @Success 202 {object} model.FailureReportResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /api/v1/errors [post]
func (h *FailureHandler) ReportFailure(c *gin.Context) {
	var req model.FailureReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := clientKinds[strings.ToLower(strings.TrimSpace(req.Kind))]
	severity, _ := model.ParseSeverity(req.Severity)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Error"
	}

	id, ok := h.capturer.Capture(c.Request.Context(), model.NormalizedFailure{
		Kind:    kind,
		Name:    name,
		Message: req.Message,
		Stack:   req.Stack,
	}, model.CaptureContext{
		Component: req.Component,
		Action:    req.Action,
		Severity:  severity,
		Kind:      kind,
		Source:    "client",
		PageURL:   req.PageURL,
		Route:     req.Route,
		UserAgent: c.Request.UserAgent(),
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Extra:     req.Context,
	})

	status := "accepted"
	if !ok {
		status = "degraded"
	}
	c.JSON(http.StatusAccepted, model.FailureReportResponse{Status: status, ErrorID: id, Persisted: ok})
}

// GetSuggestions godoc
// @Summary List AI fix suggestions for a captured error
// @Tags errors
// @Produce json
// @Security BearerAuth
// @Param id path string true "Error log ID"
// @Success 200 {object} model.SuggestionListResponse
// @Failure 400,500 {object} model.ErrorResponse
// @Router /api/v1/errors/{id}/suggestions [get]
func (h *FailureHandler) GetSuggestions(c *gin.Context) {
	if h.suggestions == nil {
		c.JSON(http.StatusOK, model.SuggestionListResponse{Status: "success", Data: []model.FixSuggestion{}})
		return
	}
	items, err := h.suggestions.GetSuggestions(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if items == nil {
		items = []model.FixSuggestion{}
	}
	c.JSON(http.StatusOK, model.SuggestionListResponse{Status: "success", Data: items})
}

// statusFor - 서비스 sentinel 에러를 HTTP 상태 코드로 변환
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
