package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kube-rca/bugsys/internal/model"
)

// InsertAlertLog - 알림 전송 시도 1회당 감사 레코드 1건
func (db *Postgres) InsertAlertLog(ctx context.Context, entry model.AlertLog) (int64, error) {
	if entry.Results == nil {
		entry.Results = []model.ChannelResult{}
	}
	resultsJSON, err := json.Marshal(entry.Results)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal alert results: %w", err)
	}

	var id int64
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO alert_logs (title, severity, error_id, is_test, gated, results)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, entry.Title, string(entry.Severity), entry.ErrorID, entry.IsTest, entry.Gated, resultsJSON).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert log: %w", err)
	}
	return id, nil
}
