// Gemini(google.golang.org/genai) 클라이언트
//   - Analyze: 장애 원인/영향/수정 제안 생성 (JSON 응답)
//   - EmbedText: 유사 장애 검색용 임베딩 (embedding.go)
//
// 설정:
//   - AI_API_KEY (없으면 생성 실패 → 호출 측에서 비활성화)
//   - AI_MODEL (default: gemini-2.0-flash)
//   - EMBEDDING_MODEL (default: text-embedding-004)
//
// SDK 요청은 기본 http transport를 거치므로 Untracked로 표시

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/kube-rca/bugsys/internal/config"
	"github.com/kube-rca/bugsys/internal/interceptor"
	"github.com/kube-rca/bugsys/internal/model"
)

type GenAIClient struct {
	client         *genai.Client
	model          string
	embeddingModel string
}

func NewGenAIClient(ctx context.Context, cfg config.EmbeddingConfig) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing AI_API_KEY")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = "text-embedding-004"
	}
	return &GenAIClient{client: client, model: modelName, embeddingModel: embeddingModel}, nil
}

func (c *GenAIClient) Name() string { return "genai" }

// Analyze - 장애 정보를 프롬프트로 만들어 JSON 분석 결과를 받음
func (c *GenAIClient) Analyze(ctx context.Context, req model.AIAnalysisRequest) (*model.AIAnalysis, error) {
	resp, err := c.client.Models.GenerateContent(interceptor.Untracked(ctx), c.model, genai.Text(buildAnalysisPrompt(req)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate analysis: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("empty genai response")
	}
	return parseAnalysis(resp.Text())
}

func buildAnalysisPrompt(req model.AIAnalysisRequest) string {
	var b strings.Builder
	b.WriteString("You are a senior engineer triaging a production failure.\n")
	b.WriteString("Respond with a JSON object: {\"rootCause\": string, \"impact\": string, \"suggestions\": [string]}.\n")
	b.WriteString("Give at most 5 concrete suggestions.\n\n")
	fmt.Fprintf(&b, "Error type: %s\n", req.ErrorType)
	fmt.Fprintf(&b, "Error message: %s\n", req.ErrorMessage)
	if req.ErrorStack != "" {
		stack := req.ErrorStack
		if len(stack) > 4000 {
			stack = stack[:4000]
		}
		fmt.Fprintf(&b, "Stack trace:\n%s\n", stack)
	}
	if len(req.Context) > 0 {
		if ctxJSON, err := json.Marshal(req.Context); err == nil {
			fmt.Fprintf(&b, "Context: %s\n", ctxJSON)
		}
	}
	return b.String()
}

// parseAnalysis - ```json 코드 펜스가 붙어 와도 파싱
func parseAnalysis(text string) (*model.AIAnalysis, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty analysis text")
	}

	var analysis model.AIAnalysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}
	if analysis.RootCause == "" && len(analysis.Suggestions) == 0 {
		return nil, fmt.Errorf("analysis has no content")
	}
	return &analysis, nil
}
