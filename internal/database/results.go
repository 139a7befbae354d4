package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/smart-survey/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const resultColumns = `id, session_id, user_agent, ip_address, gender, age_group, region, answers, email, completed_at, created_at`

// ResultRepository handles test_results and the user_logs written with them.
type ResultRepository struct {
	db *DB
}

// NewResultRepository creates a new result repository
func NewResultRepository(db *DB) *ResultRepository {
	return &ResultRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*models.TestResult, error) {
	r := &models.TestResult{}
	var answersJSON []byte
	err := row.Scan(
		&r.ID,
		&r.SessionID,
		&r.UserAgent,
		&r.IPAddress,
		&r.Gender,
		&r.AgeGroup,
		&r.Region,
		&answersJSON,
		&r.Email,
		&r.CompletedAt,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(answersJSON) > 0 {
		if err := json.Unmarshal(answersJSON, &r.Answers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
		}
	}
	return r, nil
}

func queryResults(ctx context.Context, db *DB, query string, args ...any) ([]*models.TestResult, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query test results: %w", err)
	}
	defer rows.Close()

	var out []*models.TestResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func insertResult(ctx context.Context, tx *sql.Tx, r *models.TestResult) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	answers := r.Answers
	if answers == nil {
		answers = []models.Answer{}
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO test_results (`+resultColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		r.ID,
		r.SessionID,
		r.UserAgent,
		r.IPAddress,
		r.Gender,
		r.AgeGroup,
		r.Region,
		string(answersJSON),
		r.Email,
		r.CompletedAt,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create test result: %w", err)
	}
	return nil
}

func insertLogs(ctx context.Context, tx *sql.Tx, resultID uuid.UUID, logs []*models.UserLog) error {
	if len(logs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO user_logs (test_result_id, session_id, question_id, question_text, answer, answer_index,
			thinking_time_seconds, gender, age_group, region, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare user log insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, l := range logs {
		l.TestResultID = resultID
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		err := stmt.QueryRowContext(ctx,
			l.TestResultID,
			l.SessionID,
			l.QuestionID,
			l.QuestionText,
			l.Answer,
			l.AnswerIndex,
			l.ThinkingTimeSeconds,
			l.Gender,
			l.AgeGroup,
			l.Region,
			l.Email,
			l.CreatedAt,
		).Scan(&l.ID)
		if err != nil {
			return fmt.Errorf("failed to create user log: %w", err)
		}
	}
	return nil
}

// CreateWithLogs inserts result and its logs in one transaction.
func (r *ResultRepository) CreateWithLogs(ctx context.Context, result *models.TestResult, logs []*models.UserLog) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertResult(ctx, tx, result); err != nil {
			return err
		}
		return insertLogs(ctx, tx, result.ID, logs)
	})
}

// CompletedBySession returns the completed results of a session, newest first.
// Ties on created_at are broken by id so every caller agrees on the newest.
func (r *ResultRepository) CompletedBySession(ctx context.Context, sessionID string) ([]*models.TestResult, error) {
	return queryResults(ctx, r.db, `
		SELECT `+resultColumns+` FROM test_results
		WHERE session_id = $1 AND completed_at IS NOT NULL
		ORDER BY created_at DESC, id DESC
	`, sessionID)
}

// RecentCompletedID returns the newest completed result of the session
// created at or after since, or uuid.Nil when there is none.
func (r *ResultRepository) RecentCompletedID(ctx context.Context, sessionID string, since time.Time) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM test_results
		WHERE session_id = $1 AND completed_at IS NOT NULL AND created_at >= $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, sessionID, since).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to check recent results: %w", err)
	}
	return id, nil
}

// DeleteResults removes the given results. Their logs go with them.
func (r *ResultRepository) DeleteResults(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM test_results WHERE id = ANY($1::uuid[])`, pq.Array(strs))
	if err != nil {
		return 0, fmt.Errorf("failed to delete test results: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted test results: %w", err)
	}
	return n, nil
}

// LatestBySession returns the session's result with the latest completion,
// falling back to the newest partial one. It returns nil when there is none.
func (r *ResultRepository) LatestBySession(ctx context.Context, sessionID string) (*models.TestResult, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+resultColumns+` FROM test_results
		WHERE session_id = $1
		ORDER BY completed_at DESC NULLS LAST, created_at DESC, id DESC
		LIMIT 1
	`, sessionID)
	result, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest test result: %w", err)
	}
	return result, nil
}

// ByID returns one result or ErrNotFound.
func (r *ResultRepository) ByID(ctx context.Context, id uuid.UUID) (*models.TestResult, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM test_results WHERE id = $1`, id)
	result, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("test result %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test result: %w", err)
	}
	return result, nil
}

// UpdateEmail sets the email of a result.
func (r *ResultRepository) UpdateEmail(ctx context.Context, id uuid.UUID, email string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE test_results SET email = $2 WHERE id = $1`, id, email)
	if err != nil {
		return fmt.Errorf("failed to update email: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update email: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("test result %s: %w", id, ErrNotFound)
	}
	return nil
}

// List returns results newest first.
func (r *ResultRepository) List(ctx context.Context, limit, offset int) ([]*models.TestResult, error) {
	return queryResults(ctx, r.db, `
		SELECT `+resultColumns+` FROM test_results
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

// SessionsWithDuplicates returns sessions holding more than one completed result.
func (r *ResultRepository) SessionsWithDuplicates(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id FROM test_results
		WHERE completed_at IS NOT NULL
		GROUP BY session_id
		HAVING COUNT(*) > 1
		ORDER BY session_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate sessions: %w", err)
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Stats counts rows across the survey tables.
func (r *ResultRepository) Stats(ctx context.Context) (*models.Stats, error) {
	s := &models.Stats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM test_results WHERE completed_at IS NOT NULL),
			(SELECT COUNT(*) FROM user_dropouts),
			(SELECT COUNT(*) FROM image_ratings),
			(SELECT COUNT(*) FROM image_dropouts)
	`).Scan(&s.CompletedResults, &s.Dropouts, &s.ImageRatings, &s.ImageDropouts)
	if err != nil {
		return nil, fmt.Errorf("failed to count survey rows: %w", err)
	}
	return s, nil
}
