package database

import (
	"context"
	"time"

	"github.com/benvon/smart-survey/internal/models"
	"github.com/google/uuid"
)

// ResultStore defines the test_results operations used by handlers and the reconciler
type ResultStore interface {
	CreateWithLogs(ctx context.Context, result *models.TestResult, logs []*models.UserLog) error
	CompletedBySession(ctx context.Context, sessionID string) ([]*models.TestResult, error)
	RecentCompletedID(ctx context.Context, sessionID string, since time.Time) (uuid.UUID, error)
	DeleteResults(ctx context.Context, ids []uuid.UUID) (int64, error)
	LatestBySession(ctx context.Context, sessionID string) (*models.TestResult, error)
	ByID(ctx context.Context, id uuid.UUID) (*models.TestResult, error)
	UpdateEmail(ctx context.Context, id uuid.UUID, email string) error
	List(ctx context.Context, limit, offset int) ([]*models.TestResult, error)
	SessionsWithDuplicates(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

// LogStore defines the user_logs operations
type LogStore interface {
	BySession(ctx context.Context, sessionID string) ([]*models.UserLog, error)
	ByResult(ctx context.Context, resultID uuid.UUID) ([]*models.UserLog, error)
	SetEmailForResult(ctx context.Context, resultID uuid.UUID, email string) (int64, error)
}

// DropoutStore defines the user_dropouts operations
type DropoutStore interface {
	Create(ctx context.Context, d *models.Dropout, partial *models.TestResult, logs []*models.UserLog) error
	List(ctx context.Context, limit, offset int) ([]*models.Dropout, error)
}

// ImageRatingStore defines the image_ratings operations
type ImageRatingStore interface {
	Create(ctx context.Context, rating *models.ImageRating) error
	List(ctx context.Context, limit, offset int) ([]*models.ImageRating, error)
	SetEmailForSession(ctx context.Context, sessionID, email string) (int64, error)
	Summary(ctx context.Context) ([]models.ImageRatingSummary, error)
}

// ImageDropoutStore defines the image_dropouts operations
type ImageDropoutStore interface {
	Create(ctx context.Context, d *models.ImageDropout) error
	List(ctx context.Context, limit, offset int) ([]*models.ImageDropout, error)
	SetEmailForSession(ctx context.Context, sessionID, email string) (int64, error)
}

// CorsConfigStore defines the CORS policy operations
type CorsConfigStore interface {
	Get(ctx context.Context) (*models.CorsConfig, error)
	Set(ctx context.Context, c *models.CorsConfig) error
}

// RatelimitConfigStore defines the rate override operations
type RatelimitConfigStore interface {
	Get(ctx context.Context, scope string) (*models.RatelimitConfig, error)
	List(ctx context.Context) ([]*models.RatelimitConfig, error)
	Set(ctx context.Context, c *models.RatelimitConfig) error
	Delete(ctx context.Context, scope string) error
}

// Ensure concrete types implement the interfaces
var (
	_ ResultStore          = (*ResultRepository)(nil)
	_ LogStore             = (*LogRepository)(nil)
	_ DropoutStore         = (*DropoutRepository)(nil)
	_ ImageRatingStore     = (*ImageRatingRepository)(nil)
	_ ImageDropoutStore    = (*ImageDropoutRepository)(nil)
	_ CorsConfigStore      = (*CorsConfigRepository)(nil)
	_ RatelimitConfigStore = (*RatelimitConfigRepository)(nil)
)
