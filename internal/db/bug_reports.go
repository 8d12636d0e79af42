package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kube-rca/bugsys/internal/model"
)

const bugReportColumns = `
	id, fingerprint, error_type, title, severity, status, occurrence_count,
	first_seen_at, last_seen_at, acknowledged_at, fixed_at
`

func scanBugReports(rows pgx.Rows) ([]model.BugReport, error) {
	defer rows.Close()

	var list []model.BugReport
	for rows.Next() {
		var b model.BugReport
		var severity, status string
		if err := rows.Scan(
			&b.ID,
			&b.Fingerprint,
			&b.ErrorType,
			&b.Title,
			&severity,
			&status,
			&b.OccurrenceCount,
			&b.FirstSeenAt,
			&b.LastSeenAt,
			&b.AcknowledgedAt,
			&b.FixedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bug report: %w", err)
		}
		b.Severity = model.Severity(severity)
		b.Status = model.BugStatus(status)
		list = append(list, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.BugReport{}
	}
	return list, nil
}

// ListBugReports - 최근 발생순 목록. status가 비어 있으면 전체
func (db *Postgres) ListBugReports(ctx context.Context, status string, limit int) ([]model.BugReport, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT `+bugReportColumns+`
		FROM bug_reports
		WHERE ($1 = '' OR status = $1)
		ORDER BY last_seen_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bug reports: %w", err)
	}
	return scanBugReports(rows)
}

// GetBugReportsFirstSeenSince - 기간 내 처음 발생한 BugReport (MTTR/MTBF 계산용)
func (db *Postgres) GetBugReportsFirstSeenSince(ctx context.Context, since time.Time) ([]model.BugReport, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+bugReportColumns+`
		FROM bug_reports
		WHERE first_seen_at >= $1
		ORDER BY first_seen_at ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query bug reports: %w", err)
	}
	return scanBugReports(rows)
}

// GetResolvedBugReportsSince - 기간 내 해결된 BugReport (SLA 계산용)
func (db *Postgres) GetResolvedBugReportsSince(ctx context.Context, since time.Time) ([]model.BugReport, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+bugReportColumns+`
		FROM bug_reports
		WHERE status = 'resolved' AND fixed_at IS NOT NULL AND fixed_at >= $1
		ORDER BY fixed_at ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolved bug reports: %w", err)
	}
	return scanBugReports(rows)
}

// UpdateBugStatus - 상태 변경. acknowledged로 처음 바뀔 때 acknowledged_at 기록
// resolved 전환은 ResolveBugReport 사용. resolved에서 벗어나면 fixed_at 초기화
func (db *Postgres) UpdateBugStatus(ctx context.Context, id string, status model.BugStatus) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE bug_reports
		SET status = $1,
			acknowledged_at = CASE
				WHEN $1 IN ('acknowledged', 'in_progress') AND acknowledged_at IS NULL THEN NOW()
				ELSE acknowledged_at
			END,
			fixed_at = CASE WHEN $1 = 'resolved' THEN fixed_at ELSE NULL END,
			updated_at = NOW()
		WHERE id = $2
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update bug status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bug report not found: id=%s: %w", id, pgx.ErrNoRows)
	}
	return nil
}

// ResolveBugReport - 해결 기록. acknowledged_at이 비어 있으면 fixedAt으로 채움
func (db *Postgres) ResolveBugReport(ctx context.Context, id string, fixedAt time.Time) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE bug_reports
		SET status = 'resolved',
			fixed_at = $1,
			acknowledged_at = COALESCE(acknowledged_at, $1),
			updated_at = NOW()
		WHERE id = $2
	`, fixedAt, id)
	if err != nil {
		return fmt.Errorf("failed to resolve bug report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bug report not found: id=%s: %w", id, pgx.ErrNoRows)
	}
	return nil
}
