package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kube-rca/bugsys/internal/model"
)

// EnsureWebhookSchema - webhook_configs 테이블 생성 (사용자 정의 알림 채널)
func (db *Postgres) EnsureWebhookSchema(ctx context.Context) error {
	return db.execAll(ctx, []string{
		`
		CREATE TABLE IF NOT EXISTS webhook_configs (
			id           SERIAL       PRIMARY KEY,
			name         TEXT         NOT NULL DEFAULT '',
			url          TEXT         NOT NULL DEFAULT '',
			method       TEXT         NOT NULL DEFAULT 'POST',
			headers      JSONB        NOT NULL DEFAULT '[]',
			body         TEXT         NOT NULL DEFAULT '',
			min_severity TEXT         NOT NULL DEFAULT '',
			updated_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)
		`,
		`ALTER TABLE webhook_configs ADD COLUMN IF NOT EXISTS name TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE webhook_configs ADD COLUMN IF NOT EXISTS min_severity TEXT NOT NULL DEFAULT ''`,
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWebhookConfig(row rowScanner) (model.WebhookConfig, error) {
	var cfg model.WebhookConfig
	var headersJSON []byte
	var minSeverity string
	if err := row.Scan(&cfg.ID, &cfg.Name, &cfg.URL, &cfg.Method, &headersJSON, &cfg.Body, &minSeverity, &cfg.UpdatedAt); err != nil {
		return cfg, err
	}
	cfg.MinSeverity = model.Severity(minSeverity)
	if err := json.Unmarshal(headersJSON, &cfg.Headers); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal headers: %w", err)
	}
	return cfg, nil
}

// GetWebhookConfigs - 웹훅 설정 전체 목록 조회 (최신순)
func (db *Postgres) GetWebhookConfigs(ctx context.Context) ([]model.WebhookConfig, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, url, method, headers, body, min_severity, updated_at
		FROM webhook_configs
		ORDER BY updated_at DESC;
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook configs: %w", err)
	}
	defer rows.Close()

	configs := []model.WebhookConfig{}
	for rows.Next() {
		cfg, err := scanWebhookConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// GetWebhookConfigByID - ID로 단건 조회
func (db *Postgres) GetWebhookConfigByID(ctx context.Context, id int) (*model.WebhookConfig, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, name, url, method, headers, body, min_severity, updated_at
		FROM webhook_configs
		WHERE id = $1;
	`, id)

	cfg, err := scanWebhookConfig(row)
	if err != nil {
		return nil, fmt.Errorf("webhook config not found: %w", err)
	}
	return &cfg, nil
}

// CreateWebhookConfig - 신규 웹훅 설정 저장
func (db *Postgres) CreateWebhookConfig(ctx context.Context, cfg model.WebhookConfig) (int, error) {
	headersJSON, err := json.Marshal(cfg.Headers)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal headers: %w", err)
	}

	var id int
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO webhook_configs (name, url, method, headers, body, min_severity, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id;
	`, cfg.Name, cfg.URL, cfg.Method, headersJSON, cfg.Body, string(cfg.MinSeverity)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert webhook config: %w", err)
	}
	return id, nil
}

// UpdateWebhookConfig - ID로 웹훅 설정 수정
func (db *Postgres) UpdateWebhookConfig(ctx context.Context, id int, cfg model.WebhookConfig) error {
	headersJSON, err := json.Marshal(cfg.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE webhook_configs
		SET name = $1, url = $2, method = $3, headers = $4, body = $5, min_severity = $6, updated_at = NOW()
		WHERE id = $7;
	`, cfg.Name, cfg.URL, cfg.Method, headersJSON, cfg.Body, string(cfg.MinSeverity), id)
	if err != nil {
		return fmt.Errorf("failed to update webhook config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook config not found: id=%d: %w", id, pgx.ErrNoRows)
	}
	return nil
}

// DeleteWebhookConfig - ID로 웹훅 설정 삭제
func (db *Postgres) DeleteWebhookConfig(ctx context.Context, id int) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM webhook_configs WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook config not found: id=%d: %w", id, pgx.ErrNoRows)
	}
	return nil
}
