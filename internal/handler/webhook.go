package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kube-rca/bugsys/internal/model"
)

// webhookService - 사용자 정의 알림 채널 설정 (service.WebhookService)
type webhookService interface {
	ListWebhookConfigs(ctx context.Context) ([]model.WebhookConfig, error)
	GetWebhookConfig(ctx context.Context, id int) (*model.WebhookConfig, error)
	CreateWebhookConfig(ctx context.Context, req model.WebhookConfigRequest) (int, error)
	UpdateWebhookConfig(ctx context.Context, id int, req model.WebhookConfigRequest) error
	DeleteWebhookConfig(ctx context.Context, id int) error
}

// WebhookSettingsHandler - AlertService가 사용하는 커스텀 웹훅 채널 CRUD
type WebhookSettingsHandler struct {
	svc webhookService
}

func NewWebhookSettingsHandler(svc webhookService) *WebhookSettingsHandler {
	return &WebhookSettingsHandler{svc: svc}
}

// ListWebhookConfigs godoc
// @Summary List custom webhook alert channels
// @Tags settings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.WebhookConfigListResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/settings/webhooks [get]
func (h *WebhookSettingsHandler) ListWebhookConfigs(c *gin.Context) {
	configs, err := h.svc.ListWebhookConfigs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if configs == nil {
		configs = []model.WebhookConfig{}
	}
	c.JSON(http.StatusOK, model.WebhookConfigListResponse{Status: "success", Data: configs})
}

// GetWebhookConfig godoc
// @Summary Get a custom webhook alert channel
// @Tags settings
// @Produce json
// @Security BearerAuth
// @Param id path int true "Webhook config ID"
// @Success 200 {object} model.WebhookConfigResponse
// @Failure 400,404,500 {object} model.ErrorResponse
// @Router /api/v1/settings/webhooks/{id} [get]
func (h *WebhookSettingsHandler) GetWebhookConfig(c *gin.Context) {
	id, ok := webhookID(c)
	if !ok {
		return
	}
	cfg, err := h.svc.GetWebhookConfig(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.WebhookConfigResponse{Status: "success", Data: cfg})
}

// CreateWebhookConfig godoc
// @Summary Register a custom webhook alert channel
// @Description Body may reference {{alert.title}}, {{alert.severity}} and the other alert template variables.
// @Tags settings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.WebhookConfigRequest true "Webhook config"
// @Success 201 {object} model.WebhookConfigMutationResponse
// @Failure 400,500 {object} model.ErrorResponse
// @Router /api/v1/settings/webhooks [post]
func (h *WebhookSettingsHandler) CreateWebhookConfig(c *gin.Context) {
	var req model.WebhookConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.svc.CreateWebhookConfig(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.WebhookConfigMutationResponse{Status: "success", Message: "webhook channel created", ID: id})
}

// UpdateWebhookConfig godoc
// @Summary Replace a custom webhook alert channel
// @Tags settings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Webhook config ID"
// @Param request body model.WebhookConfigRequest true "Webhook config"
// @Success 200 {object} model.WebhookConfigMutationResponse
// @Failure 400,404,500 {object} model.ErrorResponse
// @Router /api/v1/settings/webhooks/{id} [put]
func (h *WebhookSettingsHandler) UpdateWebhookConfig(c *gin.Context) {
	id, ok := webhookID(c)
	if !ok {
		return
	}
	var req model.WebhookConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.UpdateWebhookConfig(c.Request.Context(), id, req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.WebhookConfigMutationResponse{Status: "success", Message: "webhook channel updated", ID: id})
}

// DeleteWebhookConfig godoc
// @Summary Remove a custom webhook alert channel
// @Tags settings
// @Produce json
// @Security BearerAuth
// @Param id path int true "Webhook config ID"
// @Success 200 {object} model.WebhookConfigMutationResponse
// @Failure 400,404,500 {object} model.ErrorResponse
// @Router /api/v1/settings/webhooks/{id} [delete]
func (h *WebhookSettingsHandler) DeleteWebhookConfig(c *gin.Context) {
	id, ok := webhookID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteWebhookConfig(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.WebhookConfigMutationResponse{Status: "success", Message: "webhook channel deleted", ID: id})
}

// webhookID - 양의 정수가 아니면 400 응답 후 false
func webhookID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
