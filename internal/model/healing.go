package model

import "time"

// RetryPolicy - 호출자가 제공하는 재시도 설정 (불변 값 객체)
type RetryPolicy struct {
	MaxRetries int           `json:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay"`
	Jitter     bool          `json:"jitter"`
}

// HealingAction - healing_actions 테이블 레코드 (재시도/브레이커가 개입한 실행 기록)
type HealingAction struct {
	OperationKey string    `json:"operation_key"`
	Action       string    `json:"action"` // retry, circuit_open, recovered, exhausted
	Attempts     int       `json:"attempts"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
