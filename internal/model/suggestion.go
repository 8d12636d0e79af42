package model

import "time"

// AIAnalysisRequest - POST /ai-analyze 요청
type AIAnalysisRequest struct {
	ErrorType    string         `json:"errorType"`
	ErrorMessage string         `json:"errorMessage"`
	ErrorStack   string         `json:"errorStack"`
	Context      map[string]any `json:"context"`
}

// AIAnalysis - POST /ai-analyze 응답
type AIAnalysis struct {
	RootCause   string   `json:"rootCause"`
	Impact      string   `json:"impact"`
	Suggestions []string `json:"suggestions"`
}

// FixSuggestion - fix_suggestions 테이블 레코드
type FixSuggestion struct {
	ID          int64     `json:"id"`
	ErrorLogID  string    `json:"error_log_id"`
	RootCause   string    `json:"root_cause"`
	Impact      string    `json:"impact"`
	Suggestions []string  `json:"suggestions"`
	Source      string    `json:"source"` // genai, agent, fallback
	CreatedAt   time.Time `json:"created_at"`
}

// SimilarBug - 임베딩 유사도로 찾은 과거 해결 사례
type SimilarBug struct {
	ErrorLogID string  `json:"error_log_id"`
	Message    string  `json:"message"`
	RootCause  string  `json:"root_cause"`
	Distance   float64 `json:"distance"`
}
