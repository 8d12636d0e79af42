package model

import "time"

// BugStatus - BugReport 처리 상태
type BugStatus string

const (
	BugStatusDetected     BugStatus = "detected"
	BugStatusAcknowledged BugStatus = "acknowledged"
	BugStatusInProgress   BugStatus = "in_progress"
	BugStatusResolved     BugStatus = "resolved"
)

func (s BugStatus) Valid() bool {
	switch s {
	case BugStatusDetected, BugStatusAcknowledged, BugStatusInProgress, BugStatusResolved:
		return true
	}
	return false
}

// BugReport - fingerprint 기준으로 중복 제거된 장애 집계
// create_or_update_bug_report 프로시저가 생성/갱신하고, 해결 기록 시 ReliabilityService가 변경
type BugReport struct {
	ID              string     `json:"id"`
	Fingerprint     string     `json:"fingerprint"`
	ErrorType       string     `json:"error_type"`
	Title           string     `json:"title"`
	Severity        Severity   `json:"severity"`
	Status          BugStatus  `json:"status"`
	OccurrenceCount int        `json:"occurrence_count"`
	FirstSeenAt     time.Time  `json:"first_seen_at"`
	LastSeenAt      time.Time  `json:"last_seen_at"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at"`
	FixedAt         *time.Time `json:"fixed_at"`
}

// Resolved - status가 resolved이고 fixed_at이 기록된 경우만 해결로 봄
// (재오픈된 행에 남은 fixed_at은 무시)
func (b BugReport) Resolved() bool {
	return b.Status == BugStatusResolved && b.FixedAt != nil
}

// ResolutionMinutes - 해결까지 걸린 시간(분). 미해결이면 false
func (b BugReport) ResolutionMinutes() (float64, bool) {
	if !b.Resolved() {
		return 0, false
	}
	d := b.FixedAt.Sub(b.FirstSeenAt)
	if d < 0 {
		d = 0
	}
	return d.Minutes(), true
}

// ErrorPattern - detect_error_patterns 프로시저 결과 (반복 발생 장애)
type ErrorPattern struct {
	Fingerprint string    `json:"fingerprint"`
	ErrorType   string    `json:"error_type"`
	Message     string    `json:"message"`
	Occurrences int       `json:"occurrences"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// UpdateBugStatusRequest - 상태 변경 요청
type UpdateBugStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ResolveBugRequest - 해결 기록 요청 (fixed_at 생략 시 현재 시각)
type ResolveBugRequest struct {
	FixedAt *time.Time `json:"fixed_at"`
}

// BugListResponse - 목록 조회 응답
type BugListResponse struct {
	Status string      `json:"status"`
	Data   []BugReport `json:"data"`
}

// BugUpdateResponse - 상태 변경/해결 응답
type BugUpdateResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	BugID   string `json:"bug_id"`
}
