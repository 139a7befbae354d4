package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/smart-survey/internal/models"
)

// RatelimitConfigRepository stores rate overrides keyed by scope.
type RatelimitConfigRepository struct {
	db *DB
}

// NewRatelimitConfigRepository creates a new ratelimit config repository.
func NewRatelimitConfigRepository(db *DB) *RatelimitConfigRepository {
	return &RatelimitConfigRepository{db: db}
}

// Get returns the rate stored for scope, or nil.
func (r *RatelimitConfigRepository) Get(ctx context.Context, scope string) (*models.RatelimitConfig, error) {
	c := &models.RatelimitConfig{}
	err := r.db.QueryRowContext(ctx, `
		SELECT config_key, rate, updated_at
		FROM ratelimit_config WHERE config_key = $1
	`, scope).Scan(&c.Scope, &c.Rate, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ratelimit config %s: %w", scope, err)
	}
	return c, nil
}

// List returns every stored rate ordered by scope.
func (r *RatelimitConfigRepository) List(ctx context.Context) ([]*models.RatelimitConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT config_key, rate, updated_at FROM ratelimit_config ORDER BY config_key
	`)
	if err != nil {
		return nil, fmt.Errorf("list ratelimit config: %w", err)
	}
	defer rows.Close()

	var out []*models.RatelimitConfig
	for rows.Next() {
		c := &models.RatelimitConfig{}
		if err := rows.Scan(&c.Scope, &c.Rate, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ratelimit config: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Set upserts the rate for c.Scope. The format is not checked here.
func (r *RatelimitConfigRepository) Set(ctx context.Context, c *models.RatelimitConfig) error {
	scope := strings.TrimSpace(c.Scope)
	rate := strings.TrimSpace(c.Rate)
	if scope == "" {
		return fmt.Errorf("scope cannot be empty")
	}
	if rate == "" {
		return fmt.Errorf("rate cannot be empty")
	}
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ratelimit_config (config_key, rate, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (config_key) DO UPDATE SET
			rate = EXCLUDED.rate,
			updated_at = EXCLUDED.updated_at
	`, scope, rate, now)
	if err != nil {
		return fmt.Errorf("set ratelimit config %s: %w", scope, err)
	}
	c.Scope, c.Rate, c.UpdatedAt = scope, rate, now
	return nil
}

// Delete removes the override for scope. Removing a missing scope is not an error.
func (r *RatelimitConfigRepository) Delete(ctx context.Context, scope string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM ratelimit_config WHERE config_key = $1`, scope); err != nil {
		return fmt.Errorf("delete ratelimit config %s: %w", scope, err)
	}
	return nil
}
