package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kube-rca/bugsys/internal/model"
)

// InsertFixSuggestion - AI/fallback 수정 제안 저장
func (db *Postgres) InsertFixSuggestion(ctx context.Context, s model.FixSuggestion) (int64, error) {
	if s.Suggestions == nil {
		s.Suggestions = []string{}
	}
	suggestionsJSON, err := json.Marshal(s.Suggestions)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal suggestions: %w", err)
	}

	var id int64
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO fix_suggestions (error_log_id, root_cause, impact, suggestions, source)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, s.ErrorLogID, s.RootCause, s.Impact, suggestionsJSON, s.Source).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert fix suggestion: %w", err)
	}
	return id, nil
}

// GetFixSuggestionsByErrorLogID - 장애 이벤트의 수정 제안 (최신순)
func (db *Postgres) GetFixSuggestionsByErrorLogID(ctx context.Context, errorLogID string) ([]model.FixSuggestion, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, error_log_id, root_cause, impact, suggestions, source, created_at
		FROM fix_suggestions
		WHERE error_log_id = $1
		ORDER BY created_at DESC
	`, errorLogID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fix suggestions: %w", err)
	}
	defer rows.Close()

	list := []model.FixSuggestion{}
	for rows.Next() {
		var s model.FixSuggestion
		var suggestionsJSON []byte
		if err := rows.Scan(&s.ID, &s.ErrorLogID, &s.RootCause, &s.Impact, &suggestionsJSON, &s.Source, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fix suggestion: %w", err)
		}
		if err := json.Unmarshal(suggestionsJSON, &s.Suggestions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal suggestions: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
