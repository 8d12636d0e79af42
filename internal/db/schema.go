package db

import (
	"context"
	"fmt"
	"log/slog"
)

// EnsureSchema - 전체 테이블/함수 생성 (서버 시작 시 1회)
// pgvector 확장이 없는 환경에서도 기동되도록 error_embeddings는 실패해도 경고만 남김
func (db *Postgres) EnsureSchema(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"error_logs", db.EnsureErrorLogSchema},
		{"bug_reports", db.EnsureBugReportSchema},
		{"bug_functions", db.EnsureBugFunctions},
		{"fix_suggestions", db.EnsureSuggestionSchema},
		{"alert_logs", db.EnsureAlertLogSchema},
		{"predictions_log", db.EnsurePredictionSchema},
		{"healing_actions", db.EnsureHealingSchema},
		{"webhook_configs", db.EnsureWebhookSchema},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("failed to ensure %s schema: %w", step.name, err)
		}
	}

	if err := db.EnsureEmbeddingSchema(ctx); err != nil {
		slog.Warn("Failed to ensure error_embeddings schema, similarity lookup disabled", "error", err)
	}
	return nil
}

func (db *Postgres) execAll(ctx context.Context, queries []string) error {
	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// EnsureErrorLogSchema - error_logs 테이블 (저장 후 변경하지 않는 장애 이벤트)
func (db *Postgres) EnsureErrorLogSchema(ctx context.Context) error {
	return db.execAll(ctx, []string{
		`
		CREATE TABLE IF NOT EXISTS error_logs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL DEFAULT 'unknown',
			error_type TEXT NOT NULL DEFAULT 'Error',
			message TEXT NOT NULL DEFAULT '',
			stack TEXT NOT NULL DEFAULT '',
			component TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT 'medium',
			session_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			page_context JSONB NOT NULL DEFAULT '{}',
			context JSONB NOT NULL DEFAULT '{}',
			fingerprint TEXT NOT NULL DEFAULT '',
			bug_report_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS error_logs_fingerprint_idx ON error_logs(fingerprint)`,
		`CREATE INDEX IF NOT EXISTS error_logs_created_at_idx ON error_logs(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS error_logs_severity_idx ON error_logs(severity)`,
	})
}

// EnsureBugReportSchema - bug_reports 테이블 (fingerprint 기준 집계)
func (db *Postgres) EnsureBugReportSchema(ctx context.Context) error {
	return db.execAll(ctx, []string{
		`
		CREATE TABLE IF NOT EXISTS bug_reports (
			id TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL UNIQUE,
			error_type TEXT NOT NULL DEFAULT 'Error',
			title TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT 'medium',
			status TEXT NOT NULL DEFAULT 'detected',
			occurrence_count INTEGER NOT NULL DEFAULT 1,
			first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			acknowledged_at TIMESTAMPTZ,
			fixed_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS bug_reports_status_idx ON bug_reports(status)`,
		`CREATE INDEX IF NOT EXISTS bug_reports_first_seen_idx ON bug_reports(first_seen_at DESC)`,
		`CREATE INDEX IF NOT EXISTS bug_reports_fixed_at_idx ON bug_reports(fixed_at DESC) WHERE fixed_at IS NOT NULL`,
	})
}

// EnsureBugFunctions - create_or_update_bug_report / detect_error_patterns 함수 생성
//
// create_or_update_bug_report(error_log_id):
//   - 같은 fingerprint의 BugReport가 없으면 생성 (status=detected)
//   - 있으면 occurrence_count 증가, last_seen_at 갱신, severity는 더 높은 쪽 유지
//   - resolved 상태였다면 재발로 보고 detected로 되돌리고 first_seen_at을 새로 시작
//   - error_logs.bug_report_id 연결 후 bug id 반환
//
// detect_error_patterns(min_occurrences, time_window_hours):
//   - 최근 time_window_hours 동안 fingerprint별 발생 횟수가 min_occurrences 이상인 항목
func (db *Postgres) EnsureBugFunctions(ctx context.Context) error {
	return db.execAll(ctx, []string{
		`
		CREATE OR REPLACE FUNCTION severity_rank(p_severity TEXT) RETURNS INTEGER AS $$
			SELECT CASE p_severity
				WHEN 'critical' THEN 4
				WHEN 'high' THEN 3
				WHEN 'medium' THEN 2
				WHEN 'low' THEN 1
				ELSE 0
			END
		$$ LANGUAGE sql IMMUTABLE
		`,
		`
		CREATE OR REPLACE FUNCTION create_or_update_bug_report(p_error_log_id TEXT) RETURNS TEXT AS $$
		DECLARE
			v_log error_logs%ROWTYPE;
			v_bug_id TEXT;
		BEGIN
			SELECT * INTO v_log FROM error_logs WHERE id = p_error_log_id;
			IF NOT FOUND THEN
				RETURN NULL;
			END IF;

			INSERT INTO bug_reports (
				id, fingerprint, error_type, title, severity, status,
				occurrence_count, first_seen_at, last_seen_at, updated_at
			)
			VALUES (
				gen_random_uuid()::text, v_log.fingerprint, v_log.error_type,
				LEFT(v_log.error_type || ': ' || v_log.message, 200), v_log.severity, 'detected',
				1, v_log.created_at, v_log.created_at, NOW()
			)
			ON CONFLICT (fingerprint) DO UPDATE SET
				occurrence_count = bug_reports.occurrence_count + 1,
				last_seen_at = GREATEST(bug_reports.last_seen_at, EXCLUDED.last_seen_at),
				severity = CASE
					WHEN severity_rank(EXCLUDED.severity) > severity_rank(bug_reports.severity) THEN EXCLUDED.severity
					ELSE bug_reports.severity
				END,
				status = CASE WHEN bug_reports.status = 'resolved' THEN 'detected' ELSE bug_reports.status END,
				first_seen_at = CASE WHEN bug_reports.status = 'resolved' THEN EXCLUDED.first_seen_at ELSE bug_reports.first_seen_at END,
				acknowledged_at = CASE WHEN bug_reports.status = 'resolved' THEN NULL ELSE bug_reports.acknowledged_at END,
				fixed_at = CASE WHEN bug_reports.status = 'resolved' THEN NULL ELSE bug_reports.fixed_at END,
				updated_at = NOW()
			RETURNING id INTO v_bug_id;

			UPDATE error_logs SET bug_report_id = v_bug_id WHERE id = p_error_log_id;
			RETURN v_bug_id;
		END;
		$$ LANGUAGE plpgsql
		`,
		`
		CREATE OR REPLACE FUNCTION detect_error_patterns(p_min_occurrences INTEGER, p_time_window_hours INTEGER)
		RETURNS TABLE (
			fingerprint TEXT,
			error_type TEXT,
			message TEXT,
			occurrences BIGINT,
			first_seen TIMESTAMPTZ,
			last_seen TIMESTAMPTZ
		) AS $$
			SELECT
				e.fingerprint,
				MAX(e.error_type),
				MAX(e.message),
				COUNT(*),
				MIN(e.created_at),
				MAX(e.created_at)
			FROM error_logs e
			WHERE e.created_at >= NOW() - make_interval(hours => p_time_window_hours)
			  AND e.fingerprint <> ''
			GROUP BY e.fingerprint
			HAVING COUNT(*) >= p_min_occurrences
			ORDER BY COUNT(*) DESC
		$$ LANGUAGE sql STABLE
		`,
	})
}

// EnsureSuggestionSchema - fix_suggestions 테이블
func (db *Postgres) EnsureSuggestionSchema(ctx context.Context) error {
	return db.execAll(ctx, []string{
		`
		CREATE TABLE IF NOT EXISTS fix_suggestions (
			id BIGSERIAL PRIMARY KEY,
			error_log_id TEXT NOT NULL,
			root_cause TEXT NOT NULL DEFAULT '',
			impact TEXT NOT NULL DEFAULT '',
			suggestions JSONB NOT NULL DEFAULT '[]',
			source TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS fix_suggestions_error_log_id_idx ON fix_suggestions(error_log_id)`,
	})
}

// EnsureAlertLogSchema - alert_logs 감사 테이블
func (db *Postgres) EnsureAlertLogSchema(ctx context.Context) error {
	return db.execAll(ctx, []string{
		`
		CREATE TABLE IF NOT EXISTS alert_logs (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT 'medium',
			error_id TEXT NOT NULL DEFAULT '',
			is_test BOOLEAN NOT NULL DEFAULT FALSE,
			gated BOOLEAN NOT NULL DEFAULT FALSE,
			results JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS alert_logs_created_at_idx ON alert_logs(created_at DESC)`,
	})
}

// EnsurePredictionSchema - predictions_log 테이블
func (db *Postgres) EnsurePredictionSchema(ctx context.Context) error {
	return db.execAll(ctx, []string{
		`
		CREATE TABLE IF NOT EXISTS predictions_log (
			id BIGSERIAL PRIMARY KEY,
			risk_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			risk_level TEXT NOT NULL DEFAULT 'low',
			predictions JSONB NOT NULL DEFAULT '[]',
			recommendations JSONB NOT NULL DEFAULT '[]',
			sample JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS predictions_log_created_at_idx ON predictions_log(created_at DESC)`,
	})
}

// EnsureHealingSchema - healing_actions 테이블
func (db *Postgres) EnsureHealingSchema(ctx context.Context) error {
	return db.execAll(ctx, []string{
		`
		CREATE TABLE IF NOT EXISTS healing_actions (
			id BIGSERIAL PRIMARY KEY,
			operation_key TEXT NOT NULL,
			action TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			success BOOLEAN NOT NULL DEFAULT FALSE,
			error TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS healing_actions_operation_key_idx ON healing_actions(operation_key)`,
	})
}
