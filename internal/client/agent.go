// Agent(AI 분석) 서비스와 HTTP 통신하는 클라이언트 정의
//
// 설정:
//   - AGENT_URL: Agent 서비스 URL (비어 있으면 사용하지 않음)
//
// POST /ai-analyze
//   요청: {errorType, errorMessage, errorStack, context}
//   응답: {rootCause, impact, suggestions[]}

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kube-rca/bugsys/internal/config"
	"github.com/kube-rca/bugsys/internal/model"
)

// AgentClient 구조체 정의
type AgentClient struct {
	baseURL    string
	httpClient *http.Client
}

// AgentClient 객체 생성
func NewAgentClient(cfg config.AgentConfig) *AgentClient {
	return &AgentClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // AI 분석 시간 고려
		},
	}
}

func (c *AgentClient) Name() string { return "agent" }

// Agent 설정 여부 체크
func (c *AgentClient) IsConfigured() bool {
	return c.baseURL != ""
}

// Analyze - POST /ai-analyze 분석 요청하고 결과 반환 (동기)
func (c *AgentClient) Analyze(ctx context.Context, req model.AIAnalysisRequest) (*model.AIAnalysis, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("agent url not configured")
	}

	body, err := postJSON(ctx, c.httpClient, c.baseURL+"/ai-analyze", nil, req)
	if err != nil {
		return nil, fmt.Errorf("failed to request agent analysis: %w", err)
	}

	var analysis model.AIAnalysis
	if err := json.Unmarshal(body, &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if analysis.RootCause == "" && len(analysis.Suggestions) == 0 {
		return nil, fmt.Errorf("agent returned empty analysis")
	}
	return &analysis, nil
}
