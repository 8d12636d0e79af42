package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kube-rca/bugsys/internal/model"
)

// InsertErrorLog - 장애 이벤트 저장
func (db *Postgres) InsertErrorLog(ctx context.Context, ev model.FailureEvent) error {
	pageJSON, err := json.Marshal(ev.PageContext)
	if err != nil {
		return fmt.Errorf("failed to marshal page context: %w", err)
	}
	if ev.Context == nil {
		ev.Context = map[string]any{}
	}
	contextJSON, err := json.Marshal(ev.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}

	query := `
		INSERT INTO error_logs (
			id, kind, error_type, message, stack, component, action, severity,
			session_id, user_id, source, page_context, context, fingerprint, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = db.Pool.Exec(ctx, query,
		ev.ID,
		string(ev.Kind),
		ev.ErrorType,
		ev.Message,
		ev.Stack,
		ev.Component,
		ev.Action,
		string(ev.Severity),
		ev.SessionID,
		ev.UserID,
		ev.Source,
		pageJSON,
		contextJSON,
		ev.Fingerprint,
		ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert error log: %w", err)
	}
	return nil
}

// CreateOrUpdateBugReport - error_logs 1건을 bug_reports에 반영하고 bug id 반환
func (db *Postgres) CreateOrUpdateBugReport(ctx context.Context, errorLogID string) (string, error) {
	var bugID *string
	if err := db.Pool.QueryRow(ctx, `SELECT create_or_update_bug_report($1)`, errorLogID).Scan(&bugID); err != nil {
		return "", fmt.Errorf("failed to create or update bug report: %w", err)
	}
	if bugID == nil {
		return "", fmt.Errorf("error log not found: id=%s", errorLogID)
	}
	return *bugID, nil
}

// DetectErrorPatterns - 최근 windowHours 동안 minOccurrences 이상 반복된 장애
func (db *Postgres) DetectErrorPatterns(ctx context.Context, minOccurrences, windowHours int) ([]model.ErrorPattern, error) {
	rows, err := db.Pool.Query(ctx, `SELECT fingerprint, error_type, message, occurrences, first_seen, last_seen FROM detect_error_patterns($1, $2)`,
		minOccurrences, windowHours)
	if err != nil {
		return nil, fmt.Errorf("failed to detect error patterns: %w", err)
	}
	defer rows.Close()

	var patterns []model.ErrorPattern
	for rows.Next() {
		var p model.ErrorPattern
		var occurrences int64
		if err := rows.Scan(&p.Fingerprint, &p.ErrorType, &p.Message, &occurrences, &p.FirstSeen, &p.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan error pattern: %w", err)
		}
		p.Occurrences = int(occurrences)
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}
