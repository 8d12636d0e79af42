// AI 수정 제안 비즈니스 로직 정의
//
// 처리 흐름:
//  1. RequestSuggestions: ErrorHandler가 저장에 성공한 장애마다 비동기로 호출
//  2. 분석기 체인 (Gemini → Agent POST /ai-analyze) 순서로 시도, 각 분석기는 Healer로 보호
//  3. 모두 실패하거나 설정이 없으면 로컬 패턴 매칭 fallback
//  4. 임베딩이 설정되어 있으면 메시지 임베딩 저장 후 해결된 유사 장애의 원인을 제안에 추가
//  5. fix_suggestions 저장

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kube-rca/bugsys/internal/model"
	"github.com/kube-rca/bugsys/internal/resilience"
)

const (
	sourceFallback      = "fallback"
	maxSimilarDistance  = 0.25
	analyzerTimeout     = 60 * time.Second
	similarLookupLimit  = 1
	maxSuggestionsShown = 6
)

// Analyzer - AI 분석기 (client.GenAIClient, client.AgentClient)
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, req model.AIAnalysisRequest) (*model.AIAnalysis, error)
}

// configurable - 설정 여부를 알 수 있는 분석기
type configurable interface {
	IsConfigured() bool
}

// suggestionRepo - DB 인터페이스
type suggestionRepo interface {
	InsertFixSuggestion(ctx context.Context, s model.FixSuggestion) (int64, error)
	GetFixSuggestionsByErrorLogID(ctx context.Context, errorLogID string) ([]model.FixSuggestion, error)
}

// similarityIndex - 임베딩 저장/유사 사례 검색 (EmbeddingService)
type similarityIndex interface {
	CreateEmbedding(ctx context.Context, errorLogID, text string) (int64, string, []float32, error)
	FindSimilar(ctx context.Context, vector []float32, excludeID string, limit int) ([]model.SimilarBug, error)
}

// SuggestionService 구조체 정의
type SuggestionService struct {
	repo      suggestionRepo
	analyzers []Analyzer
	healer    *resilience.Healer
	index     similarityIndex
	logger    *slog.Logger
}

// SuggestionService 객체 생성. analyzers는 앞에서부터 시도
func NewSuggestionService(repo suggestionRepo, healer *resilience.Healer, logger *slog.Logger, analyzers ...Analyzer) *SuggestionService {
	var usable []Analyzer
	for _, a := range analyzers {
		if a == nil {
			continue
		}
		if c, ok := a.(configurable); ok && !c.IsConfigured() {
			continue
		}
		usable = append(usable, a)
	}
	return &SuggestionService{
		repo:      repo,
		analyzers: usable,
		healer:    healer,
		logger:    logger,
	}
}

// WithSimilarity - 임베딩 기반 유사 사례 검색 연결
func (s *SuggestionService) WithSimilarity(index similarityIndex) *SuggestionService {
	s.index = index
	return s
}

// RequestSuggestions - 장애 이벤트에 대한 수정 제안 생성 후 저장
func (s *SuggestionService) RequestSuggestions(ctx context.Context, ev model.FailureEvent) error {
	if ev.ID == "" {
		return fmt.Errorf("%w: error log id is required", ErrInvalidInput)
	}

	req := model.AIAnalysisRequest{
		ErrorType:    ev.ErrorType,
		ErrorMessage: ev.Message,
		ErrorStack:   ev.Stack,
		Context:      analysisContext(ev),
	}

	analysis, source := s.analyze(ctx, req)
	suggestion := model.FixSuggestion{
		ErrorLogID:  ev.ID,
		RootCause:   analysis.RootCause,
		Impact:      analysis.Impact,
		Suggestions: analysis.Suggestions,
		Source:      source,
	}

	if hint := s.similarHint(ctx, ev); hint != "" {
		suggestion.Suggestions = append(suggestion.Suggestions, hint)
	}
	if len(suggestion.Suggestions) > maxSuggestionsShown {
		suggestion.Suggestions = suggestion.Suggestions[:maxSuggestionsShown]
	}

	if _, err := s.repo.InsertFixSuggestion(ctx, suggestion); err != nil {
		return fmt.Errorf("failed to save fix suggestion: %w", err)
	}
	selfLog(ctx, s.logger, slog.LevelInfo, "Saved fix suggestion",
		slog.String("error_id", ev.ID), slog.String("source", source))
	return nil
}

// GetSuggestions - 저장된 수정 제안 (최신순)
func (s *SuggestionService) GetSuggestions(ctx context.Context, errorLogID string) ([]model.FixSuggestion, error) {
	if strings.TrimSpace(errorLogID) == "" {
		return nil, fmt.Errorf("%w: error log id is required", ErrInvalidInput)
	}
	return s.repo.GetFixSuggestionsByErrorLogID(ctx, errorLogID)
}

// analyze - 분석기 체인. 모두 실패하면 로컬 fallback
func (s *SuggestionService) analyze(ctx context.Context, req model.AIAnalysisRequest) (*model.AIAnalysis, string) {
	for _, a := range s.analyzers {
		name := a.Name()
		call := func(ctx context.Context) (*model.AIAnalysis, error) {
			ctx, cancel := context.WithTimeout(ctx, analyzerTimeout)
			defer cancel()
			return a.Analyze(ctx, req)
		}

		var (
			analysis *model.AIAnalysis
			err      error
		)
		if s.healer != nil {
			out := resilience.Execute(ctx, s.healer, "analyzer:"+name, call, resilience.Options{
				EnableRetry:          true,
				Retry:                model.RetryPolicy{MaxRetries: 1, BaseDelay: time.Second, MaxDelay: 5 * time.Second, Jitter: true},
				EnableCircuitBreaker: true,
			})
			analysis, err = out.Value, out.Err
		} else {
			analysis, err = call(ctx)
		}

		if err == nil && analysis != nil {
			return analysis, name
		}
		selfLog(ctx, s.logger, slog.LevelWarn, fmt.Sprintf("Failed to analyze error with %s: %v", name, err))
	}
	return LocalAnalysis(req), sourceFallback
}

// similarHint - 해결된 유사 장애가 있으면 그 원인을 제안 문구로
func (s *SuggestionService) similarHint(ctx context.Context, ev model.FailureEvent) string {
	if s.index == nil {
		return ""
	}
	_, _, vector, err := s.index.CreateEmbedding(ctx, ev.ID, ev.ErrorType+": "+ev.Message)
	if err != nil {
		selfLog(ctx, s.logger, slog.LevelWarn, fmt.Sprintf("Failed to embed error message: %v", err))
		return ""
	}
	similar, err := s.index.FindSimilar(ctx, vector, ev.ID, similarLookupLimit)
	if err != nil {
		selfLog(ctx, s.logger, slog.LevelWarn, fmt.Sprintf("Failed to find similar errors: %v", err))
		return ""
	}
	for _, sb := range similar {
		if sb.Distance <= maxSimilarDistance && sb.RootCause != "" {
			return fmt.Sprintf("A similar resolved error (%s) was caused by: %s", sb.ErrorLogID, sb.RootCause)
		}
	}
	return ""
}

func analysisContext(ev model.FailureEvent) map[string]any {
	ctx := make(map[string]any, len(ev.Context)+4)
	for k, v := range ev.Context {
		ctx[k] = v
	}
	ctx["component"] = ev.Component
	ctx["action"] = ev.Action
	ctx["severity"] = string(ev.Severity)
	if ev.PageContext.URL != "" {
		ctx["url"] = ev.PageContext.URL
	}
	return ctx
}

// LocalAnalysis - AI 분석을 쓸 수 없을 때 에러 문구로 만드는 결정적 제안
func LocalAnalysis(req model.AIAnalysisRequest) *model.AIAnalysis {
	text := strings.ToLower(req.ErrorType + " " + req.ErrorMessage)

	switch {
	case containsAny(text, "cannot read propert", "undefined", "null", "nil pointer", "invalid memory address"):
		return &model.AIAnalysis{
			RootCause: "A value was accessed before it was initialized (null/undefined or nil reference).",
			Impact:    "The affected feature fails for users who reach this code path.",
			Suggestions: []string{
				"Add a nil/undefined check before accessing the value",
				"Verify that the data is loaded before it is rendered or used",
				"Use optional chaining or default values where the field may be missing",
			},
		}
	case containsAny(text, "network", "failed to fetch", "timeout", "timed out", "connection refused", "deadline exceeded"):
		return &model.AIAnalysis{
			RootCause: "A network request failed or timed out.",
			Impact:    "Data could not be loaded or saved until the dependency recovers.",
			Suggestions: []string{
				"Check the availability of the upstream service",
				"Retry transient failures with exponential backoff",
				"Show a recoverable error state instead of failing silently",
			},
		}
	case containsAny(text, "401", "403", "unauthorized", "forbidden"):
		return &model.AIAnalysis{
			RootCause: "The request was rejected by authentication or authorization.",
			Impact:    "The user cannot access the protected resource.",
			Suggestions: []string{
				"Refresh the session or access token and retry",
				"Verify the user's permissions for this resource",
				"Redirect to login when the session has expired",
			},
		}
	case containsAny(text, "typeerror", "is not a function", "type mismatch", "cannot convert", "interface conversion"):
		return &model.AIAnalysis{
			RootCause: "A value had a different type than the code expected.",
			Impact:    "The operation aborts and the feature may be partially broken.",
			Suggestions: []string{
				"Validate the shape of API responses before using them",
				"Add type checks or schema validation at the boundary",
				"Check recent changes to the data contract between client and server",
			},
		}
	default:
		return &model.AIAnalysis{
			RootCause: "The root cause could not be determined automatically.",
			Impact:    "Unknown; review the stack trace and recent changes.",
			Suggestions: []string{
				"Inspect the stack trace and the related component",
				"Reproduce the error with the captured context",
			},
		}
	}
}

func containsAny(text string, patterns ...string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
