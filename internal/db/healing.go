package db

import (
	"context"
	"fmt"

	"github.com/kube-rca/bugsys/internal/model"
)

// InsertHealingAction - 재시도/브레이커 개입 기록
func (db *Postgres) InsertHealingAction(ctx context.Context, a model.HealingAction) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO healing_actions (operation_key, action, attempts, success, error, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.OperationKey, a.Action, a.Attempts, a.Success, a.Error, a.DurationMs, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert healing action: %w", err)
	}
	return nil
}
