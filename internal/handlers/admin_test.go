package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benvon/smart-survey/internal/database/databasetest"
	"github.com/benvon/smart-survey/internal/models"
	"github.com/gorilla/mux"
	"go.uber.org/zap/zaptest"
)

func newAdminRouter(t *testing.T, mem *databasetest.Memory) *mux.Router {
	t.Helper()
	h := NewAdminHandler(mem.Results(), mem.Logs(), mem.Dropouts(), mem.ImageRatings(), mem.ImageDropouts(), zaptest.NewLogger(t))
	r := mux.NewRouter()
	h.RegisterRoutes(r.PathPrefix("/api/v1/admin").Subrouter())
	return r
}

func adminGet(t *testing.T, r *mux.Router, path string, out any) int {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin"+path, nil))
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("Failed to decode %s response %q: %v", path, w.Body.String(), err)
	}
	return w.Code
}

func seedAdminData(t *testing.T, mem *databasetest.Memory) *models.TestResult {
	t.Helper()
	ctx := context.Background()
	done := time.Now().UTC()
	result := &models.TestResult{
		SessionID:   testSessionID,
		Answers:     []models.Answer{{QuestionID: 1, Answers: []int{2}}},
		CompletedAt: &done,
	}
	logs := []*models.UserLog{{SessionID: testSessionID, QuestionID: 1, Answer: "c", AnswerIndex: 2}}
	if err := mem.Results().CreateWithLogs(ctx, result, logs); err != nil {
		t.Fatal(err)
	}
	for _, rating := range []string{models.RatingGood, models.RatingGood, models.RatingSoso} {
		if err := mem.ImageRatings().Create(ctx, &models.ImageRating{SessionID: testSessionID, ImageFilename: "01_gyeongbokgung.jpg", Rating: rating}); err != nil {
			t.Fatal(err)
		}
	}
	if err := mem.Dropouts().Create(ctx, &models.Dropout{SessionID: "session_7c9e6679-7425-40de-944b-e07fc1f90ae7"}, nil, nil); err != nil {
		t.Fatal(err)
	}
	return result
}

func TestAdminResults(t *testing.T) {
	t.Parallel()

	mem := databasetest.New()
	seeded := seedAdminData(t, mem)
	r := newAdminRouter(t, mem)

	var list []models.TestResult
	if code := adminGet(t, r, "/results?limit=10", &list); code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", code)
	}
	if len(list) != 1 || list[0].ID != seeded.ID {
		t.Errorf("Expected the seeded result, got %+v", list)
	}

	var detail ResultDetailResponse
	if code := adminGet(t, r, "/results/"+testSessionID, &detail); code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", code)
	}
	if detail.TestResult == nil || detail.TestResult.ID != seeded.ID {
		t.Fatalf("Expected the seeded result, got %+v", detail.TestResult)
	}
	if len(detail.Logs) != 1 || detail.Logs[0].AnswerIndex != 2 {
		t.Errorf("Expected the result's log row, got %+v", detail.Logs)
	}

	var logs []models.UserLog
	if code := adminGet(t, r, "/results/"+testSessionID+"/logs", &logs); code != http.StatusOK || len(logs) != 1 {
		t.Errorf("session logs: status %d, %d rows", code, len(logs))
	}
}

func TestAdminResultNotFound(t *testing.T) {
	t.Parallel()

	r := newAdminRouter(t, databasetest.New())

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/results/session_7c9e6679-7425-40de-944b-e07fc1f90ae7", http.StatusNotFound},
		{"/results/not-a-session", http.StatusBadRequest},
	}
	for _, tt := range tests {
		var body map[string]string
		if code := adminGet(t, r, tt.path, &body); code != tt.wantStatus {
			t.Errorf("GET %s: status %d, want %d", tt.path, code, tt.wantStatus)
		}
		if body["error"] == "" {
			t.Errorf("GET %s: expected an error message", tt.path)
		}
	}
}

func TestAdminEmptyListsAreArrays(t *testing.T) {
	t.Parallel()

	r := newAdminRouter(t, databasetest.New())
	for _, path := range []string{"/results", "/dropouts", "/image-ratings", "/image-dropouts"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin"+path, nil))
		if got := w.Body.String(); got != "[]\n" {
			t.Errorf("GET %s = %q, want []", path, got)
		}
	}
}

func TestAdminStats(t *testing.T) {
	t.Parallel()

	mem := databasetest.New()
	seedAdminData(t, mem)
	r := newAdminRouter(t, mem)

	var stats models.Stats
	if code := adminGet(t, r, "/stats", &stats); code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", code)
	}
	if stats.CompletedResults != 1 || stats.Dropouts != 1 || stats.ImageRatings != 3 {
		t.Errorf("unexpected counts %+v", stats)
	}
	if len(stats.RatingsByImage) != 1 {
		t.Fatalf("Expected one image summary, got %+v", stats.RatingsByImage)
	}
	if s := stats.RatingsByImage[0]; s.Good != 2 || s.Soso != 1 {
		t.Errorf("summary = %+v, want 2 good and 1 soso", s)
	}
}

func TestAdminQueryFailure(t *testing.T) {
	t.Parallel()

	mem := databasetest.New()
	mem.Fail(databasetest.OpLatestBySession, errors.New("relation does not exist"))
	r := newAdminRouter(t, mem)

	var body map[string]string
	if code := adminGet(t, r, "/results/"+testSessionID, &body); code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", code)
	}
	if body["error"] != "Failed to fetch result" {
		t.Errorf("error = %q, the cause must not leak", body["error"])
	}
}
