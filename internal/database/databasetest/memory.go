// Package databasetest provides an in-memory implementation of the
// database store interfaces for tests.
package databasetest

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benvon/smart-survey/internal/database"
	"github.com/benvon/smart-survey/internal/models"
	"github.com/google/uuid"
)

// Memory holds every table behind one mutex. The store views returned by
// its accessors share that state, so a result written through Results is
// visible to Logs and Stats.
type Memory struct {
	mu            sync.Mutex
	results       map[uuid.UUID]*models.TestResult
	logs          []*models.UserLog
	dropouts      []*models.Dropout
	ratings       []*models.ImageRating
	imageDropouts []*models.ImageDropout
	cors          *models.CorsConfig
	rates         map[string]*models.RatelimitConfig
	nextLogID     int64
	failures      map[string]error
}

// New returns an empty Memory.
func New() *Memory {
	return &Memory{
		results:  make(map[uuid.UUID]*models.TestResult),
		rates:    make(map[string]*models.RatelimitConfig),
		failures: make(map[string]error),
	}
}

// Operation names accepted by Fail.
const (
	OpCreateResult          = "results.create"
	OpLatestBySession       = "results.latest"
	OpCompletedBySession    = "results.completed"
	OpUpdateEmail           = "results.update_email"
	OpCreateDropout         = "dropouts.create"
	OpCreateRating          = "ratings.create"
	OpCreateImageDropout    = "image_dropouts.create"
	OpLogsSetEmail          = "logs.set_email"
	OpRatingsSetEmail       = "ratings.set_email"
	OpImageDropoutsSetEmail = "image_dropouts.set_email"
)

// Fail makes every later call of op return err. A nil err clears it.
func (m *Memory) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

func (m *Memory) failure(op string) error {
	return m.failures[op]
}

// Results returns the test_results view.
func (m *Memory) Results() database.ResultStore { return resultStore{m} }

// Logs returns the user_logs view.
func (m *Memory) Logs() database.LogStore { return logStore{m} }

// Dropouts returns the user_dropouts view.
func (m *Memory) Dropouts() database.DropoutStore { return dropoutStore{m} }

// ImageRatings returns the image_ratings view.
func (m *Memory) ImageRatings() database.ImageRatingStore { return ratingStore{m} }

// ImageDropouts returns the image_dropouts view.
func (m *Memory) ImageDropouts() database.ImageDropoutStore { return imageDropoutStore{m} }

// CorsConfig returns the cors_config view.
func (m *Memory) CorsConfig() database.CorsConfigStore { return corsStore{m} }

// RatelimitConfig returns the ratelimit_config view.
func (m *Memory) RatelimitConfig() database.RatelimitConfigStore { return rateStore{m} }

// AllResults returns a snapshot of every stored result, newest first.
func (m *Memory) AllResults() []models.TestResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.TestResult, 0, len(m.results))
	for _, r := range m.sortedResults(func(*models.TestResult) bool { return true }) {
		out = append(out, *r)
	}
	return out
}

// AllLogs returns a snapshot of every stored log.
func (m *Memory) AllLogs() []models.UserLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.UserLog, len(m.logs))
	for i, l := range m.logs {
		out[i] = *l
	}
	return out
}

// AllImageRatings returns a snapshot of every stored rating.
func (m *Memory) AllImageRatings() []models.ImageRating {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ImageRating, len(m.ratings))
	for i, r := range m.ratings {
		out[i] = *r
	}
	return out
}

// AllImageDropouts returns a snapshot of every stored image dropout.
func (m *Memory) AllImageDropouts() []models.ImageDropout {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ImageDropout, len(m.imageDropouts))
	for i, d := range m.imageDropouts {
		out[i] = *d
	}
	return out
}

// AllDropouts returns a snapshot of every stored dropout.
func (m *Memory) AllDropouts() []models.Dropout {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Dropout, len(m.dropouts))
	for i, d := range m.dropouts {
		out[i] = *d
	}
	return out
}

// newerFirst orders by created_at desc, id desc like the SQL queries.
func newerFirst(a, b *models.TestResult) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) > 0
}

func (m *Memory) sortedResults(keep func(*models.TestResult) bool) []*models.TestResult {
	var out []*models.TestResult
	for _, r := range m.results {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newerFirst(out[i], out[j]) })
	return out
}

func (m *Memory) insertResult(r *models.TestResult, logs []*models.UserLog) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if _, dup := m.results[r.ID]; dup {
		return fmt.Errorf("duplicate test result id %s", r.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	stored := *r
	m.results[r.ID] = &stored
	for _, l := range logs {
		m.nextLogID++
		l.ID = m.nextLogID
		l.TestResultID = r.ID
		if l.CreatedAt.IsZero() {
			l.CreatedAt = r.CreatedAt
		}
		cp := *l
		m.logs = append(m.logs, &cp)
	}
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

type resultStore struct{ m *Memory }

func (s resultStore) CreateWithLogs(_ context.Context, r *models.TestResult, logs []*models.UserLog) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failure(OpCreateResult); err != nil {
		return err
	}
	return s.m.insertResult(r, logs)
}

func (s resultStore) CompletedBySession(_ context.Context, sessionID string) ([]*models.TestResult, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failure(OpCompletedBySession); err != nil {
		return nil, err
	}
	var out []*models.TestResult
	for _, r := range s.m.sortedResults(func(r *models.TestResult) bool {
		return r.SessionID == sessionID && r.CompletedAt != nil
	}) {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s resultStore) RecentCompletedID(_ context.Context, sessionID string, since time.Time) (uuid.UUID, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	recent := s.m.sortedResults(func(r *models.TestResult) bool {
		return r.SessionID == sessionID && r.CompletedAt != nil && !r.CreatedAt.Before(since)
	})
	if len(recent) == 0 {
		return uuid.Nil, nil
	}
	return recent[0].ID, nil
}

func (s resultStore) DeleteResults(_ context.Context, ids []uuid.UUID) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	gone := make(map[uuid.UUID]bool, len(ids))
	var n int64
	for _, id := range ids {
		if _, ok := s.m.results[id]; ok {
			delete(s.m.results, id)
			gone[id] = true
			n++
		}
	}
	kept := s.m.logs[:0]
	for _, l := range s.m.logs {
		if !gone[l.TestResultID] {
			kept = append(kept, l)
		}
	}
	s.m.logs = kept
	for _, r := range s.m.ratings {
		if r.TestResultID != nil && gone[*r.TestResultID] {
			r.TestResultID = nil
		}
	}
	for _, d := range s.m.imageDropouts {
		if d.TestResultID != nil && gone[*d.TestResultID] {
			d.TestResultID = nil
		}
	}
	return n, nil
}

func (s resultStore) LatestBySession(_ context.Context, sessionID string) (*models.TestResult, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failure(OpLatestBySession); err != nil {
		return nil, err
	}
	var best *models.TestResult
	for _, r := range s.m.results {
		if r.SessionID != sessionID {
			continue
		}
		if best == nil || laterCompletion(r, best) {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// laterCompletion mirrors ORDER BY completed_at DESC NULLS LAST, created_at DESC, id DESC.
func laterCompletion(a, b *models.TestResult) bool {
	switch {
	case a.CompletedAt != nil && b.CompletedAt == nil:
		return true
	case a.CompletedAt == nil && b.CompletedAt != nil:
		return false
	case a.CompletedAt != nil && !a.CompletedAt.Equal(*b.CompletedAt):
		return a.CompletedAt.After(*b.CompletedAt)
	}
	return newerFirst(a, b)
}

func (s resultStore) ByID(_ context.Context, id uuid.UUID) (*models.TestResult, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	r, ok := s.m.results[id]
	if !ok {
		return nil, fmt.Errorf("test result %s: %w", id, database.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s resultStore) UpdateEmail(_ context.Context, id uuid.UUID, email string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failure(OpUpdateEmail); err != nil {
		return err
	}
	r, ok := s.m.results[id]
	if !ok {
		return fmt.Errorf("test result %s: %w", id, database.ErrNotFound)
	}
	e := email
	r.Email = &e
	return nil
}

func (s resultStore) List(_ context.Context, limit, offset int) ([]*models.TestResult, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	all := s.m.sortedResults(func(*models.TestResult) bool { return true })
	var out []*models.TestResult
	for _, r := range page(all, limit, offset) {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s resultStore) SessionsWithDuplicates(_ context.Context) ([]string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	counts := make(map[string]int)
	for _, r := range s.m.results {
		if r.CompletedAt != nil {
			counts[r.SessionID]++
		}
	}
	var out []string
	for sid, n := range counts {
		if n > 1 {
			out = append(out, sid)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s resultStore) Stats(_ context.Context) (*models.Stats, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	st := &models.Stats{
		Dropouts:      len(s.m.dropouts),
		ImageRatings:  len(s.m.ratings),
		ImageDropouts: len(s.m.imageDropouts),
	}
	for _, r := range s.m.results {
		if r.CompletedAt != nil {
			st.CompletedResults++
		}
	}
	return st, nil
}

type logStore struct{ m *Memory }

func (s logStore) filter(keep func(*models.UserLog) bool) []*models.UserLog {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*models.UserLog
	for _, l := range s.m.logs {
		if keep(l) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].QuestionID != out[j].QuestionID {
			return out[i].QuestionID < out[j].QuestionID
		}
		if out[i].AnswerIndex != out[j].AnswerIndex {
			return out[i].AnswerIndex < out[j].AnswerIndex
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s logStore) BySession(_ context.Context, sessionID string) ([]*models.UserLog, error) {
	return s.filter(func(l *models.UserLog) bool { return l.SessionID == sessionID }), nil
}

func (s logStore) ByResult(_ context.Context, resultID uuid.UUID) ([]*models.UserLog, error) {
	return s.filter(func(l *models.UserLog) bool { return l.TestResultID == resultID }), nil
}

func (s logStore) SetEmailForResult(_ context.Context, resultID uuid.UUID, email string) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failure(OpLogsSetEmail); err != nil {
		return 0, err
	}
	var n int64
	for _, l := range s.m.logs {
		if l.TestResultID == resultID && l.Email == nil {
			e := email
			l.Email = &e
			n++
		}
	}
	return n, nil
}

type dropoutStore struct{ m *Memory }

func (s dropoutStore) Create(_ context.Context, d *models.Dropout, partial *models.TestResult, logs []*models.UserLog) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failure(OpCreateDropout); err != nil {
		return err
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if partial != nil {
		partial.ID = d.ID
		partial.CompletedAt = nil
		if err := s.m.insertResult(partial, logs); err != nil {
			return err
		}
	}
	cp := *d
	s.m.dropouts = append(s.m.dropouts, &cp)
	return nil
}

func (s dropoutStore) List(_ context.Context, limit, offset int) ([]*models.Dropout, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	all := make([]*models.Dropout, len(s.m.dropouts))
	for i := range s.m.dropouts {
		cp := *s.m.dropouts[len(s.m.dropouts)-1-i]
		all[i] = &cp
	}
	return page(all, limit, offset), nil
}

type ratingStore struct{ m *Memory }

func (s ratingStore) Create(_ context.Context, r *models.ImageRating) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failure(OpCreateRating); err != nil {
		return err
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	cp := *r
	s.m.ratings = append(s.m.ratings, &cp)
	return nil
}

func (s ratingStore) List(_ context.Context, limit, offset int) ([]*models.ImageRating, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	all := make([]*models.ImageRating, len(s.m.ratings))
	for i := range s.m.ratings {
		cp := *s.m.ratings[len(s.m.ratings)-1-i]
		all[i] = &cp
	}
	return page(all, limit, offset), nil
}

func (s ratingStore) SetEmailForSession(_ context.Context, sessionID, email string) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failure(OpRatingsSetEmail); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range s.m.ratings {
		if r.SessionID == sessionID && r.Email == nil {
			e := email
			r.Email = &e
			n++
		}
	}
	return n, nil
}

func (s ratingStore) Summary(_ context.Context) ([]models.ImageRatingSummary, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	byImage := make(map[string]*models.ImageRatingSummary)
	for _, r := range s.m.ratings {
		sum, ok := byImage[r.ImageFilename]
		if !ok {
			sum = &models.ImageRatingSummary{ImageFilename: r.ImageFilename}
			byImage[r.ImageFilename] = sum
		}
		switch r.Rating {
		case models.RatingGood:
			sum.Good++
		case models.RatingSoso:
			sum.Soso++
		}
	}
	out := make([]models.ImageRatingSummary, 0, len(byImage))
	for _, sum := range byImage {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImageFilename < out[j].ImageFilename })
	return out, nil
}

type imageDropoutStore struct{ m *Memory }

func (s imageDropoutStore) Create(_ context.Context, d *models.ImageDropout) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failure(OpCreateImageDropout); err != nil {
		return err
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	cp := *d
	s.m.imageDropouts = append(s.m.imageDropouts, &cp)
	return nil
}

func (s imageDropoutStore) List(_ context.Context, limit, offset int) ([]*models.ImageDropout, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	all := make([]*models.ImageDropout, len(s.m.imageDropouts))
	for i := range s.m.imageDropouts {
		cp := *s.m.imageDropouts[len(s.m.imageDropouts)-1-i]
		all[i] = &cp
	}
	return page(all, limit, offset), nil
}

func (s imageDropoutStore) SetEmailForSession(_ context.Context, sessionID, email string) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.failure(OpImageDropoutsSetEmail); err != nil {
		return 0, err
	}
	var n int64
	for _, d := range s.m.imageDropouts {
		if d.SessionID == sessionID && d.Email == nil {
			e := email
			d.Email = &e
			n++
		}
	}
	return n, nil
}

type corsStore struct{ m *Memory }

func (s corsStore) Get(context.Context) (*models.CorsConfig, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.cors == nil {
		return nil, nil
	}
	cp := *s.m.cors
	cp.AllowedOrigins = append([]string(nil), s.m.cors.AllowedOrigins...)
	return &cp, nil
}

func (s corsStore) Set(_ context.Context, c *models.CorsConfig) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed origins cannot be empty")
	}
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	cp.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	s.m.cors = &cp
	return nil
}

type rateStore struct{ m *Memory }

func (s rateStore) Get(_ context.Context, scope string) (*models.RatelimitConfig, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.rates[scope]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s rateStore) List(context.Context) ([]*models.RatelimitConfig, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]*models.RatelimitConfig, 0, len(s.m.rates))
	for _, c := range s.m.rates {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })
	return out, nil
}

func (s rateStore) Set(_ context.Context, c *models.RatelimitConfig) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if c.Scope == "" || c.Rate == "" {
		return fmt.Errorf("scope and rate cannot be empty")
	}
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	s.m.rates[c.Scope] = &cp
	return nil
}

func (s rateStore) Delete(_ context.Context, scope string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	delete(s.m.rates, scope)
	return nil
}
