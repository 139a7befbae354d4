package database

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/smart-survey/internal/models"
	"github.com/google/uuid"
)

// ImageRatingRepository handles image_ratings.
type ImageRatingRepository struct {
	db *DB
}

// NewImageRatingRepository creates a new image rating repository
func NewImageRatingRepository(db *DB) *ImageRatingRepository {
	return &ImageRatingRepository{db: db}
}

// Create stores one rating.
func (r *ImageRatingRepository) Create(ctx context.Context, rating *models.ImageRating) error {
	if rating.ID == uuid.Nil {
		rating.ID = uuid.New()
	}
	if rating.CreatedAt.IsZero() {
		rating.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO image_ratings (id, test_result_id, session_id, image_filename, rating,
			thinking_time_seconds, gender, age_group, region, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		rating.ID,
		rating.TestResultID,
		rating.SessionID,
		rating.ImageFilename,
		rating.Rating,
		rating.ThinkingTimeSeconds,
		rating.Gender,
		rating.AgeGroup,
		rating.Region,
		rating.Email,
		rating.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create image rating: %w", err)
	}
	return nil
}

// List returns ratings newest first.
func (r *ImageRatingRepository) List(ctx context.Context, limit, offset int) ([]*models.ImageRating, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, test_result_id, session_id, image_filename, rating, thinking_time_seconds,
			gender, age_group, region, email, created_at
		FROM image_ratings
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query image ratings: %w", err)
	}
	defer rows.Close()

	var out []*models.ImageRating
	for rows.Next() {
		ir := &models.ImageRating{}
		err := rows.Scan(
			&ir.ID,
			&ir.TestResultID,
			&ir.SessionID,
			&ir.ImageFilename,
			&ir.Rating,
			&ir.ThinkingTimeSeconds,
			&ir.Gender,
			&ir.AgeGroup,
			&ir.Region,
			&ir.Email,
			&ir.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image rating: %w", err)
		}
		out = append(out, ir)
	}
	return out, rows.Err()
}

// SetEmailForSession fills the email of the session's ratings that have none.
func (r *ImageRatingRepository) SetEmailForSession(ctx context.Context, sessionID, email string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE image_ratings SET email = $2 WHERE session_id = $1 AND email IS NULL
	`, sessionID, email)
	if err != nil {
		return 0, fmt.Errorf("failed to update image rating email: %w", err)
	}
	return res.RowsAffected()
}

// Summary counts good and soso ratings per image.
func (r *ImageRatingRepository) Summary(ctx context.Context) ([]models.ImageRatingSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT image_filename,
			COUNT(*) FILTER (WHERE rating = 'good'),
			COUNT(*) FILTER (WHERE rating = 'soso')
		FROM image_ratings
		GROUP BY image_filename
		ORDER BY image_filename
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarise image ratings: %w", err)
	}
	defer rows.Close()

	var out []models.ImageRatingSummary
	for rows.Next() {
		var s models.ImageRatingSummary
		if err := rows.Scan(&s.ImageFilename, &s.Good, &s.Soso); err != nil {
			return nil, fmt.Errorf("failed to scan image rating summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
