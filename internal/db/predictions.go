package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kube-rca/bugsys/internal/model"
)

// InsertPrediction - tick 결과를 predictions_log에 기록
func (db *Postgres) InsertPrediction(ctx context.Context, r model.PredictionResult) error {
	predictionsJSON, err := json.Marshal(nonNil(r.Predictions))
	if err != nil {
		return fmt.Errorf("failed to marshal predictions: %w", err)
	}
	recommendationsJSON, err := json.Marshal(nonNil(r.Recommendations))
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}
	sampleJSON, err := json.Marshal(r.Sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO predictions_log (risk_score, risk_level, predictions, recommendations, sample, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.RiskScore, string(r.RiskLevel), predictionsJSON, recommendationsJSON, sampleJSON, r.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
