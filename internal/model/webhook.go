package model

import "time"

// WebhookHeader - 헤더 키-값 쌍
type WebhookHeader struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// WebhookConfig - DB에 저장되는 사용자 정의 알림 채널(웹훅) 설정
// Body는 {{alert.title}} 등의 템플릿 변수를 포함할 수 있음 (internal/template 참고)
type WebhookConfig struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	URL         string          `json:"url"`
	Method      string          `json:"method"`
	Headers     []WebhookHeader `json:"headers"`
	Body        string          `json:"body"`
	MinSeverity Severity        `json:"min_severity"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// WebhookConfigRequest - 웹훅 설정 생성/수정 요청 구조체
type WebhookConfigRequest struct {
	Name        string          `json:"name"`
	URL         string          `json:"url"`
	Method      string          `json:"method"`
	Headers     []WebhookHeader `json:"headers"`
	Body        string          `json:"body"`
	MinSeverity string          `json:"min_severity"`
}

// WebhookConfigResponse - 단건 조회 응답
type WebhookConfigResponse struct {
	Status string         `json:"status"`
	Data   *WebhookConfig `json:"data"`
}

// WebhookConfigListResponse - 목록 조회 응답
type WebhookConfigListResponse struct {
	Status string          `json:"status"`
	Data   []WebhookConfig `json:"data"`
}

// WebhookConfigMutationResponse - 생성/수정/삭제 응답
type WebhookConfigMutationResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	ID      int    `json:"id,omitempty"`
}
