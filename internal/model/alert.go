// 알림(Alert) 페이로드 및 감사 로그 구조체 정의
// service(AlertService), client(각 채널), db(alert_logs) 레이어에서 공통으로 사용

package model

import (
	"context"
	"time"
)

// AlertPayload - 채널로 전송되는 알림 내용
// FailureEvent 또는 PredictionResult 하나당 한 번 생성되고 변경하지 않음
type AlertPayload struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	ErrorID   string    `json:"error_id,omitempty"`
	Component string    `json:"component,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// 비어 있으면 설정된 모든 채널로 전송
	Channels []string `json:"channels,omitempty"`
}

// ChannelResult - 채널별 전송 결과
type ChannelResult struct {
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// AlertTarget - 한 채널 안에서 독립적으로 전송/재시도되는 대상 (custom webhook config 1건)
// Name은 "<channel>:<id>" 형식이며 Healer key와 감사 기록의 채널명으로 사용
type AlertTarget struct {
	Name string
	Send func(ctx context.Context) error
}

// AlertLog - alert_logs 감사 레코드 (전송 시도 1회당 1행)
type AlertLog struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	Severity  Severity        `json:"severity"`
	ErrorID   string          `json:"error_id,omitempty"`
	IsTest    bool            `json:"is_test"`
	Gated     bool            `json:"gated"`
	Results   []ChannelResult `json:"results"`
	CreatedAt time.Time       `json:"created_at"`
}

// AlertDispatchResponse - 테스트 알림 API 응답
type AlertDispatchResponse struct {
	Status  string          `json:"status"`
	Sent    int             `json:"sent"`
	Failed  int             `json:"failed"`
	Results []ChannelResult `json:"results"`
}
