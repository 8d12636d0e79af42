package client

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/kube-rca/bugsys/internal/interceptor"
)

// EmbedText - 텍스트 임베딩 (벡터, 모델명) 반환
func (c *GenAIClient) EmbedText(ctx context.Context, text string) ([]float32, string, error) {
	res, err := c.client.Models.EmbedContent(interceptor.Untracked(ctx), c.embeddingModel, genai.Text(text), nil)
	if err != nil {
		return nil, c.embeddingModel, err
	}
	if res == nil || len(res.Embeddings) == 0 || res.Embeddings[0] == nil {
		return nil, c.embeddingModel, fmt.Errorf("empty embedding result")
	}
	return res.Embeddings[0].Values, c.embeddingModel, nil
}
