package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kube-rca/bugsys/internal/model"
)

const similarResultLimit = 5

// embeddingService - 서비스 인터페이스 (service.EmbeddingService)
type embeddingService interface {
	CreateEmbedding(ctx context.Context, errorLogID, text string) (int64, string, []float32, error)
	FindSimilar(ctx context.Context, vector []float32, excludeID string, limit int) ([]model.SimilarBug, error)
}

type EmbeddingHandler struct {
	svc embeddingService
}

func NewEmbeddingHandler(svc embeddingService) *EmbeddingHandler {
	return &EmbeddingHandler{svc: svc}
}

// CreateEmbedding godoc
// @Summary Index an error message and find similar resolved errors
// @Tags embeddings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.EmbeddingRequest true "Error embedding payload"
// @Success 200 {object} model.EmbeddingResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/embeddings [post]
func (h *EmbeddingHandler) CreateEmbedding(c *gin.Context) {
	var req model.EmbeddingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ErrorLogID == "" || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error_log_id and text are required"})
		return
	}
	id, modelName, vector, err := h.svc.CreateEmbedding(c.Request.Context(), req.ErrorLogID, req.Text)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	similar, err := h.svc.FindSimilar(c.Request.Context(), vector, req.ErrorLogID, similarResultLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.EmbeddingResponse{Status: "success", EmbeddingID: id, Model: modelName, Similar: similar})
}
