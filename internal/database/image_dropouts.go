package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benvon/smart-survey/internal/models"
	"github.com/google/uuid"
)

// ImageDropoutRepository handles image_dropouts.
type ImageDropoutRepository struct {
	db *DB
}

// NewImageDropoutRepository creates a new image dropout repository
func NewImageDropoutRepository(db *DB) *ImageDropoutRepository {
	return &ImageDropoutRepository{db: db}
}

// Create stores one image dropout.
func (r *ImageDropoutRepository) Create(ctx context.Context, d *models.ImageDropout) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	completed := d.CompletedRatings
	if completed == nil {
		completed = []models.CompletedRating{}
	}
	completedJSON, err := json.Marshal(completed)
	if err != nil {
		return fmt.Errorf("failed to marshal completed ratings: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO image_dropouts (id, test_result_id, session_id, user_agent, ip_address, gender, age_group,
			region, image_filename, current_image_index, total_images, completed_images, time_spent_seconds,
			completed_ratings, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		d.ID,
		d.TestResultID,
		d.SessionID,
		d.UserAgent,
		d.IPAddress,
		d.Gender,
		d.AgeGroup,
		d.Region,
		d.ImageFilename,
		d.CurrentImageIndex,
		d.TotalImages,
		d.CompletedImages,
		d.TimeSpentSeconds,
		string(completedJSON),
		d.Email,
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create image dropout: %w", err)
	}
	return nil
}

// List returns image dropouts newest first.
func (r *ImageDropoutRepository) List(ctx context.Context, limit, offset int) ([]*models.ImageDropout, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, test_result_id, session_id, user_agent, ip_address, gender, age_group, region,
			image_filename, current_image_index, total_images, completed_images, time_spent_seconds,
			completed_ratings, email, created_at
		FROM image_dropouts
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query image dropouts: %w", err)
	}
	defer rows.Close()

	var out []*models.ImageDropout
	for rows.Next() {
		d := &models.ImageDropout{}
		var completedJSON []byte
		err := rows.Scan(
			&d.ID,
			&d.TestResultID,
			&d.SessionID,
			&d.UserAgent,
			&d.IPAddress,
			&d.Gender,
			&d.AgeGroup,
			&d.Region,
			&d.ImageFilename,
			&d.CurrentImageIndex,
			&d.TotalImages,
			&d.CompletedImages,
			&d.TimeSpentSeconds,
			&completedJSON,
			&d.Email,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image dropout: %w", err)
		}
		if err := json.Unmarshal(completedJSON, &d.CompletedRatings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal completed ratings: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetEmailForSession fills the email of the session's image dropouts that have none.
func (r *ImageDropoutRepository) SetEmailForSession(ctx context.Context, sessionID, email string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE image_dropouts SET email = $2 WHERE session_id = $1 AND email IS NULL
	`, sessionID, email)
	if err != nil {
		return 0, fmt.Errorf("failed to update image dropout email: %w", err)
	}
	return res.RowsAffected()
}
