package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kube-rca/bugsys/internal/model"
)

type predictionReader interface {
	Latest() *model.PredictionResult
}

type breakerLister interface {
	Snapshot() []model.BreakerSnapshot
}

type testAlertSender interface {
	SendTestAlert(ctx context.Context) model.AlertDispatchResponse
}

// SystemHandler - 예측 결과, 서킷 브레이커 상태, 테스트 알림
type SystemHandler struct {
	predictions predictionReader
	breakers    breakerLister
	alerts      testAlertSender
}

func NewSystemHandler(predictions predictionReader, breakers breakerLister, alerts testAlertSender) *SystemHandler {
	return &SystemHandler{predictions: predictions, breakers: breakers, alerts: alerts}
}

// GetLatestPrediction godoc
// @Summary Latest predictive risk assessment
// @Tags predictions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.PredictionResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /api/v1/predictions/latest [get]
func (h *SystemHandler) GetLatestPrediction(c *gin.Context) {
	var latest *model.PredictionResult
	if h.predictions != nil {
		latest = h.predictions.Latest()
	}
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no prediction available yet"})
		return
	}
	c.JSON(http.StatusOK, model.PredictionResponse{Status: "success", Data: latest})
}

// ListBreakers godoc
// @Summary Circuit breaker states
// @Tags resilience
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.BreakerListResponse
// @Router /api/v1/breakers [get]
func (h *SystemHandler) ListBreakers(c *gin.Context) {
	snapshots := []model.BreakerSnapshot{}
	if h.breakers != nil {
		if s := h.breakers.Snapshot(); s != nil {
			snapshots = s
		}
	}
	c.JSON(http.StatusOK, model.BreakerListResponse{Status: "success", Data: snapshots})
}

// SendTestAlert godoc
// @Summary Send a test alert to every configured channel
// @Tags alerts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.AlertDispatchResponse
// @Failure 502 {object} model.AlertDispatchResponse
// @Router /api/v1/alerts/test [post]
func (h *SystemHandler) SendTestAlert(c *gin.Context) {
	resp := h.alerts.SendTestAlert(c.Request.Context())
	status := http.StatusOK
	if resp.Status == "failed" {
		status = http.StatusBadGateway
	}
	c.JSON(status, resp)
}
