package model

import "time"

// SystemMetricsSample - PredictiveService가 주기적으로 수집하는 런타임 지표
type SystemMetricsSample struct {
	MemoryUsage    float64   `json:"memory_usage"`    // %
	APILatency     float64   `json:"api_latency"`     // ms
	ErrorRate      float64   `json:"error_rate"`      // errors/min
	RequestRate    float64   `json:"request_rate"`    // requests/min
	FailedRequests uint64    `json:"failed_requests"` // 직전 tick 이후 실패 요청 수
	Timestamp      time.Time `json:"timestamp"`
}

// Prediction - 개별 예측 항목
type Prediction struct {
	Type       string  `json:"type"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
	Timeframe  string  `json:"timeframe,omitempty"`
}

// PredictionResult - tick마다 다시 계산되는 위험도 (predictions_log에는 로그로만 남김)
type PredictionResult struct {
	RiskScore       float64             `json:"risk_score"`
	RiskLevel       Severity            `json:"risk_level"`
	Predictions     []Prediction        `json:"predictions"`
	Recommendations []string            `json:"recommendations"`
	Sample          SystemMetricsSample `json:"sample"`
	Timestamp       time.Time           `json:"timestamp"`
}

// MTTRMetrics - 기간 내 신뢰성 지표
type MTTRMetrics struct {
	Days          int     `json:"days"`
	MTTRMinutes   float64 `json:"mttr_minutes"`
	MTBFMinutes   float64 `json:"mtbf_minutes"`
	MTTDMinutes   float64 `json:"mttd_minutes"`
	Availability  float64 `json:"availability"` // %
	ErrorCount    int     `json:"error_count"`
	ResolvedCount int     `json:"resolved_count"`
	WindowMinutes float64 `json:"window_minutes"`
	Degraded      bool    `json:"degraded,omitempty"`
}

// DailyReliability - 일자별 추이
type DailyReliability struct {
	Date          string  `json:"date"` // YYYY-MM-DD (UTC)
	ErrorCount    int     `json:"error_count"`
	ResolvedCount int     `json:"resolved_count"`
	MTTRMinutes   float64 `json:"mttr_minutes"`
	Availability  float64 `json:"availability"`
}

// SLACompliance - 목표 해결 시간 대비 준수율
type SLACompliance struct {
	TargetMinutes  float64        `json:"target_minutes"`
	Total          int            `json:"total"`
	Compliant      int            `json:"compliant"`
	NonCompliant   int            `json:"non_compliant"`
	ComplianceRate float64        `json:"compliance_rate"` // %
	AvgResolution  float64        `json:"avg_resolution_minutes"`
	BySeverity     map[string]int `json:"breaches_by_severity,omitempty"`
	BreachedBugIDs []string       `json:"breached_bug_ids,omitempty"`
	Degraded       bool           `json:"degraded,omitempty"`
}

// CircuitState - 서킷 브레이커 상태
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// BreakerSnapshot - 브레이커 상태 조회용 복사본
type BreakerSnapshot struct {
	Key             string       `json:"key"`
	State           CircuitState `json:"state"`
	FailureCount    int          `json:"failure_count"`
	LastFailureTime *time.Time   `json:"last_failure_time"`
	NextRetryTime   *time.Time   `json:"next_retry_time"`
}
