package service

import (
	"context"
	"fmt"

	"github.com/kube-rca/bugsys/internal/model"
)

// EmbeddingRepo - error_embeddings (pgvector) 저장소
type EmbeddingRepo interface {
	InsertErrorEmbedding(ctx context.Context, errorLogID, message, model string, vector []float32) (int64, error)
	FindSimilarResolved(ctx context.Context, vector []float32, excludeID string, limit int) ([]model.SimilarBug, error)
}

type EmbeddingClient interface {
	EmbedText(ctx context.Context, text string) ([]float32, string, error)
}

// EmbeddingService - 장애 메시지 임베딩 저장과 유사 해결 사례 검색
type EmbeddingService struct {
	repo   EmbeddingRepo
	client EmbeddingClient
}

func NewEmbeddingService(repo EmbeddingRepo, client EmbeddingClient) *EmbeddingService {
	return &EmbeddingService{repo: repo, client: client}
}

// CreateEmbedding - 임베딩 저장 후 (id, model, vector) 반환
func (s *EmbeddingService) CreateEmbedding(ctx context.Context, errorLogID, text string) (int64, string, []float32, error) {
	if errorLogID == "" || text == "" {
		return 0, "", nil, fmt.Errorf("%w: error_log_id and text are required", ErrInvalidInput)
	}
	vector, modelName, err := s.client.EmbedText(ctx, text)
	if err != nil {
		return 0, modelName, nil, err
	}
	id, err := s.repo.InsertErrorEmbedding(ctx, errorLogID, text, modelName, vector)
	return id, modelName, vector, err
}

// FindSimilar - 자신을 제외한 해결된 유사 장애
func (s *EmbeddingService) FindSimilar(ctx context.Context, vector []float32, excludeID string, limit int) ([]model.SimilarBug, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	return s.repo.FindSimilarResolved(ctx, vector, excludeID, limit)
}
