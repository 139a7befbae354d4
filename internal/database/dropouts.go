package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/benvon/smart-survey/internal/models"
	"github.com/google/uuid"
)

// DropoutRepository handles user_dropouts.
type DropoutRepository struct {
	db *DB
}

// NewDropoutRepository creates a new dropout repository
func NewDropoutRepository(db *DB) *DropoutRepository {
	return &DropoutRepository{db: db}
}

// Create stores d. When partial is not nil it is written in the same
// transaction as an uncompleted result sharing d's id, together with logs.
func (r *DropoutRepository) Create(ctx context.Context, d *models.Dropout, partial *models.TestResult, logs []*models.UserLog) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		if partial != nil {
			partial.ID = d.ID
			partial.CompletedAt = nil
			if err := insertResult(ctx, tx, partial); err != nil {
				return err
			}
			if err := insertLogs(ctx, tx, partial.ID, logs); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_dropouts (id, session_id, user_agent, ip_address, gender, age_group, region,
				question_id, question_text, current_question_index, total_questions, completed_questions,
				time_spent_seconds, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`,
			d.ID,
			d.SessionID,
			d.UserAgent,
			d.IPAddress,
			d.Gender,
			d.AgeGroup,
			d.Region,
			d.QuestionID,
			d.QuestionText,
			d.CurrentQuestionIndex,
			d.TotalQuestions,
			d.CompletedQuestions,
			d.TimeSpentSeconds,
			d.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create dropout: %w", err)
		}
		return nil
	})
}

// List returns dropouts newest first.
func (r *DropoutRepository) List(ctx context.Context, limit, offset int) ([]*models.Dropout, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, user_agent, ip_address, gender, age_group, region, question_id, question_text,
			current_question_index, total_questions, completed_questions, time_spent_seconds, created_at
		FROM user_dropouts
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query dropouts: %w", err)
	}
	defer rows.Close()

	var out []*models.Dropout
	for rows.Next() {
		d := &models.Dropout{}
		err := rows.Scan(
			&d.ID,
			&d.SessionID,
			&d.UserAgent,
			&d.IPAddress,
			&d.Gender,
			&d.AgeGroup,
			&d.Region,
			&d.QuestionID,
			&d.QuestionText,
			&d.CurrentQuestionIndex,
			&d.TotalQuestions,
			&d.CompletedQuestions,
			&d.TimeSpentSeconds,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dropout: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
