package database

import (
	"context"
	"fmt"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS test_results (
		id UUID PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_agent TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		gender TEXT,
		age_group TEXT,
		region TEXT,
		answers JSONB NOT NULL DEFAULT '[]',
		email TEXT,
		completed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_test_results_session ON test_results (session_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS user_logs (
		id BIGSERIAL PRIMARY KEY,
		test_result_id UUID NOT NULL REFERENCES test_results (id) ON DELETE CASCADE,
		session_id TEXT NOT NULL,
		question_id INTEGER NOT NULL,
		question_text TEXT NOT NULL,
		answer TEXT NOT NULL,
		answer_index INTEGER NOT NULL,
		thinking_time_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		gender TEXT,
		age_group TEXT,
		region TEXT,
		email TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_logs_result ON user_logs (test_result_id)`,
	`CREATE INDEX IF NOT EXISTS idx_user_logs_session ON user_logs (session_id)`,
	`CREATE TABLE IF NOT EXISTS user_dropouts (
		id UUID PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_agent TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		gender TEXT,
		age_group TEXT,
		region TEXT,
		question_id INTEGER,
		question_text TEXT,
		current_question_index INTEGER NOT NULL,
		total_questions INTEGER NOT NULL,
		completed_questions INTEGER NOT NULL,
		time_spent_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS image_ratings (
		id UUID PRIMARY KEY,
		test_result_id UUID REFERENCES test_results (id) ON DELETE SET NULL,
		session_id TEXT NOT NULL,
		image_filename TEXT NOT NULL,
		rating TEXT NOT NULL CHECK (rating IN ('good', 'soso')),
		thinking_time_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		gender TEXT,
		age_group TEXT,
		region TEXT,
		email TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_image_ratings_session ON image_ratings (session_id)`,
	`CREATE TABLE IF NOT EXISTS image_dropouts (
		id UUID PRIMARY KEY,
		test_result_id UUID REFERENCES test_results (id) ON DELETE SET NULL,
		session_id TEXT NOT NULL,
		user_agent TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		gender TEXT,
		age_group TEXT,
		region TEXT,
		image_filename TEXT,
		current_image_index INTEGER NOT NULL,
		total_images INTEGER NOT NULL,
		completed_images INTEGER NOT NULL,
		time_spent_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		completed_ratings JSONB NOT NULL DEFAULT '[]',
		email TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_image_dropouts_session ON image_dropouts (session_id)`,
	`CREATE TABLE IF NOT EXISTS cors_config (
		config_key TEXT PRIMARY KEY,
		allowed_origins TEXT[] NOT NULL,
		allow_credentials BOOLEAN NOT NULL DEFAULT true,
		max_age INTEGER NOT NULL DEFAULT 300,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ratelimit_config (
		config_key TEXT PRIMARY KEY,
		rate TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the tables and indexes when they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
