package model

// EmbeddingRequest - 장애 메시지 임베딩 저장 요청 (유사 사례 검색용 재색인)
type EmbeddingRequest struct {
	ErrorLogID string `json:"error_log_id"`
	Text       string `json:"text"`
}

type EmbeddingResponse struct {
	Status      string       `json:"status"`
	EmbeddingID int64        `json:"embedding_id"`
	Model       string       `json:"model"`
	Similar     []SimilarBug `json:"similar,omitempty"`
}

// SuggestionListResponse - 장애 이벤트별 수정 제안 목록
type SuggestionListResponse struct {
	Status string          `json:"status"`
	Data   []FixSuggestion `json:"data"`
}
