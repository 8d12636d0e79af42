package db

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kube-rca/bugsys/internal/model"
)

// text-embedding-004 출력 차원
const embeddingDimensions = 768

// EnsureEmbeddingSchema - pgvector 확장 + error_embeddings 테이블
func (db *Postgres) EnsureEmbeddingSchema(ctx context.Context) error {
	return db.execAll(ctx, []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS error_embeddings (
			id BIGSERIAL PRIMARY KEY,
			error_log_id TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			embedding vector(%d) NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`, embeddingDimensions),
		`CREATE INDEX IF NOT EXISTS error_embeddings_error_log_id_idx ON error_embeddings(error_log_id)`,
	})
}

func embeddingInsertQuery() string {
	return `
		INSERT INTO error_embeddings (error_log_id, message, embedding, model)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
}

// similarResolvedQuery - 해결된 BugReport에 연결된 장애 중 가장 가까운 임베딩
// cosine distance (<=>) 오름차순
func similarResolvedQuery() string {
	return `
		SELECT ee.error_log_id, ee.message, COALESCE(fs.root_cause, ''), ee.embedding <=> $1 AS distance
		FROM error_embeddings ee
		JOIN error_logs el ON el.id = ee.error_log_id
		JOIN bug_reports br ON br.id = el.bug_report_id AND br.status = 'resolved'
		LEFT JOIN LATERAL (
			SELECT root_cause FROM fix_suggestions
			WHERE error_log_id = ee.error_log_id
			ORDER BY created_at DESC LIMIT 1
		) fs ON TRUE
		WHERE ee.error_log_id <> $2
		ORDER BY distance ASC
		LIMIT $3
	`
}

func (db *Postgres) InsertErrorEmbedding(ctx context.Context, errorLogID, message, modelName string, vector []float32) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, embeddingInsertQuery(), errorLogID, message, pgvector.NewVector(vector), modelName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert error embedding: %w", err)
	}
	return id, nil
}

// FindSimilarResolved - 자신(excludeID)을 제외한 유사 해결 사례 조회
func (db *Postgres) FindSimilarResolved(ctx context.Context, vector []float32, excludeID string, limit int) ([]model.SimilarBug, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := db.Pool.Query(ctx, similarResolvedQuery(), pgvector.NewVector(vector), excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar errors: %w", err)
	}
	defer rows.Close()

	var list []model.SimilarBug
	for rows.Next() {
		var s model.SimilarBug
		if err := rows.Scan(&s.ErrorLogID, &s.Message, &s.RootCause, &s.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan similar error: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
