package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/smart-survey/internal/config"
	"github.com/benvon/smart-survey/internal/models"
	"github.com/lib/pq"
)

const corsConfigKey = "survey"

// CorsConfigRepository stores the CORS policy row.
type CorsConfigRepository struct {
	db *DB
}

// NewCorsConfigRepository creates a new CORS config repository.
func NewCorsConfigRepository(db *DB) *CorsConfigRepository {
	return &CorsConfigRepository{db: db}
}

// Get returns the stored policy, or nil when none has been set.
func (r *CorsConfigRepository) Get(ctx context.Context) (*models.CorsConfig, error) {
	c := &models.CorsConfig{}
	err := r.db.QueryRowContext(ctx, `
		SELECT allowed_origins, allow_credentials, max_age, updated_at
		FROM cors_config WHERE config_key = $1
	`, corsConfigKey).Scan(pq.Array(&c.AllowedOrigins), &c.AllowCredentials, &c.MaxAge, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cors config: %w", err)
	}
	return c, nil
}

// Set upserts the policy. Origins are trimmed and de-duplicated.
func (r *CorsConfigRepository) Set(ctx context.Context, c *models.CorsConfig) error {
	origins := normalizeOrigins(c.AllowedOrigins)
	if len(origins) == 0 {
		return fmt.Errorf("allowed origins cannot be empty")
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("max age cannot be negative")
	}
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cors_config (config_key, allowed_origins, allow_credentials, max_age, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (config_key) DO UPDATE SET
			allowed_origins = EXCLUDED.allowed_origins,
			allow_credentials = EXCLUDED.allow_credentials,
			max_age = EXCLUDED.max_age,
			updated_at = EXCLUDED.updated_at
	`, corsConfigKey, pq.Array(origins), c.AllowCredentials, c.MaxAge, now)
	if err != nil {
		return fmt.Errorf("set cors config: %w", err)
	}
	c.AllowedOrigins = origins
	c.UpdatedAt = now
	return nil
}

func normalizeOrigins(origins []string) []string {
	var out []string
	for _, o := range origins {
		out = append(out, config.AllowedOrigins(o)...)
	}
	seen := make(map[string]bool, len(out))
	uniq := out[:0]
	for _, o := range out {
		if !seen[o] {
			seen[o] = true
			uniq = append(uniq, o)
		}
	}
	return uniq
}
