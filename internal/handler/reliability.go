package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kube-rca/bugsys/internal/model"
)

const (
	defaultSLATargetMinutes = 240
	defaultMetricsDays      = 30
	defaultBugListLimit     = 50
	maxBugListLimit         = 500
)

// reliabilityService - 서비스 인터페이스 (service.ReliabilityService)
type reliabilityService interface {
	GetMTTRMetrics(ctx context.Context, days int) model.MTTRMetrics
	GetReliabilityTrends(ctx context.Context, days int) []model.DailyReliability
	GetSLACompliance(ctx context.Context, targetMinutes float64, days int) model.SLACompliance
	ListBugs(ctx context.Context, status string, limit int) ([]model.BugReport, error)
	UpdateBugStatus(ctx context.Context, bugID string, status string) error
	RecordResolution(ctx context.Context, bugID string, fixedAt time.Time) error
}

// ReliabilityHandler - BugReport 상태 관리와 신뢰성 지표(MTTR/MTBF/SLA) 조회
type ReliabilityHandler struct {
	svc reliabilityService
}

func NewReliabilityHandler(svc reliabilityService) *ReliabilityHandler {
	return &ReliabilityHandler{svc: svc}
}

// ListBugs godoc
// @Summary List bug reports
// @Tags bugs
// @Produce json
// @Security BearerAuth
// @Param status query string false "detected, acknowledged, in_progress, resolved"
// @Param limit query int false "Max rows (default 50)"
// @Success 200 {object} model.BugListResponse
// @Failure 400,500 {object} model.ErrorResponse
// @Router /api/v1/bugs [get]
func (h *ReliabilityHandler) ListBugs(c *gin.Context) {
	limit := queryInt(c, "limit", defaultBugListLimit)
	if limit <= 0 || limit > maxBugListLimit {
		limit = defaultBugListLimit
	}
	bugs, err := h.svc.ListBugs(c.Request.Context(), c.Query("status"), limit)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if bugs == nil {
		bugs = []model.BugReport{}
	}
	c.JSON(http.StatusOK, model.BugListResponse{Status: "success", Data: bugs})
}

// UpdateBugStatus godoc
// @Summary Change bug status
// @Tags bugs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Bug report ID"
// @Param request body model.UpdateBugStatusRequest true "New status"
// @Success 200 {object} model.BugUpdateResponse
// @Failure 400,404,500 {object} model.ErrorResponse
// @Router /api/v1/bugs/{id}/status [patch]
func (h *ReliabilityHandler) UpdateBugStatus(c *gin.Context) {
	var req model.UpdateBugStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bugID := c.Param("id")
	if err := h.svc.UpdateBugStatus(c.Request.Context(), bugID, req.Status); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.BugUpdateResponse{Status: "success", Message: "bug status updated", BugID: bugID})
}

// ResolveBug godoc
// @Summary Record bug resolution
// @Description fixed_at defaults to now. Resolution time feeds MTTR and SLA metrics.
// @Tags bugs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Bug report ID"
// @Param request body model.ResolveBugRequest false "Resolution time"
// @Success 200 {object} model.BugUpdateResponse
// @Failure 400,404,500 {object} model.ErrorResponse
// @Router /api/v1/bugs/{id}/resolve [post]
func (h *ReliabilityHandler) ResolveBug(c *gin.Context) {
	var req model.ResolveBugRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	var fixedAt time.Time
	if req.FixedAt != nil {
		fixedAt = *req.FixedAt
	}
	bugID := c.Param("id")
	if err := h.svc.RecordResolution(c.Request.Context(), bugID, fixedAt); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.BugUpdateResponse{Status: "success", Message: "bug resolved", BugID: bugID})
}

// GetMTTR godoc
// @Summary MTTR/MTBF/MTTD and availability
// @Tags reliability
// @Produce json
// @Security BearerAuth
// @Param days query int false "Window in days (default 30)"
// @Success 200 {object} model.MTTRResponse
// @Router /api/v1/reliability/mttr [get]
func (h *ReliabilityHandler) GetMTTR(c *gin.Context) {
	metrics := h.svc.GetMTTRMetrics(c.Request.Context(), queryInt(c, "days", defaultMetricsDays))
	c.JSON(http.StatusOK, model.MTTRResponse{Status: "success", Data: metrics})
}

// GetTrends godoc
// @Summary Daily reliability trend
// @Tags reliability
// @Produce json
// @Security BearerAuth
// @Param days query int false "Window in days (default 30)"
// @Success 200 {object} model.TrendsResponse
// @Router /api/v1/reliability/trends [get]
func (h *ReliabilityHandler) GetTrends(c *gin.Context) {
	trends := h.svc.GetReliabilityTrends(c.Request.Context(), queryInt(c, "days", defaultMetricsDays))
	if trends == nil {
		trends = []model.DailyReliability{}
	}
	c.JSON(http.StatusOK, model.TrendsResponse{Status: "success", Data: trends})
}

// GetSLA godoc
// @Summary SLA compliance against a resolution target
// @Tags reliability
// @Produce json
// @Security BearerAuth
// @Param target query number false "Target resolution minutes (default 240)"
// @Param days query int false "Window in days (default 30)"
// @Success 200 {object} model.SLAResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /api/v1/reliability/sla [get]
func (h *ReliabilityHandler) GetSLA(c *gin.Context) {
	target := float64(defaultSLATargetMinutes)
	if raw := c.Query("target"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "target must be a positive number of minutes"})
			return
		}
		target = v
	}
	sla := h.svc.GetSLACompliance(c.Request.Context(), target, queryInt(c, "days", defaultMetricsDays))
	c.JSON(http.StatusOK, model.SLAResponse{Status: "success", Data: sla})
}

// queryInt - 파싱 실패 시 fallback
func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
