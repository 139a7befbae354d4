package database

import (
	"context"
	"fmt"

	"github.com/benvon/smart-survey/internal/models"
	"github.com/google/uuid"
)

// LogRepository reads and updates user_logs.
type LogRepository struct {
	db *DB
}

// NewLogRepository creates a new log repository
func NewLogRepository(db *DB) *LogRepository {
	return &LogRepository{db: db}
}

func (r *LogRepository) query(ctx context.Context, where string, arg any) ([]*models.UserLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, test_result_id, session_id, question_id, question_text, answer, answer_index,
			thinking_time_seconds, gender, age_group, region, email, created_at
		FROM user_logs
		WHERE `+where+` = $1
		ORDER BY question_id, answer_index, id
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query user logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.UserLog
	for rows.Next() {
		l := &models.UserLog{}
		err := rows.Scan(
			&l.ID,
			&l.TestResultID,
			&l.SessionID,
			&l.QuestionID,
			&l.QuestionText,
			&l.Answer,
			&l.AnswerIndex,
			&l.ThinkingTimeSeconds,
			&l.Gender,
			&l.AgeGroup,
			&l.Region,
			&l.Email,
			&l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// BySession returns every log of a session ordered by question.
func (r *LogRepository) BySession(ctx context.Context, sessionID string) ([]*models.UserLog, error) {
	return r.query(ctx, "session_id", sessionID)
}

// ByResult returns the logs of one result ordered by question.
func (r *LogRepository) ByResult(ctx context.Context, resultID uuid.UUID) ([]*models.UserLog, error) {
	return r.query(ctx, "test_result_id", resultID)
}

// SetEmailForResult fills the email of the result's logs that have none.
func (r *LogRepository) SetEmailForResult(ctx context.Context, resultID uuid.UUID, email string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_logs SET email = $2 WHERE test_result_id = $1 AND email IS NULL
	`, resultID, email)
	if err != nil {
		return 0, fmt.Errorf("failed to update user log email: %w", err)
	}
	return res.RowsAffected()
}
