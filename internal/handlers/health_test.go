package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	healthy := CheckFunc(func(context.Context) error { return nil })
	down := CheckFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		mode       string
		checks     map[string]Checker
		wantStatus int
		wantHealth string
		wantChecks map[string]string
	}{
		{
			name:       "basic mode skips checks",
			checks:     map[string]Checker{"database": down},
			wantStatus: http.StatusOK,
			wantHealth: "healthy",
		},
		{
			name:       "extended all healthy",
			mode:       "extended",
			checks:     map[string]Checker{"database": healthy, "redis": healthy},
			wantStatus: http.StatusOK,
			wantHealth: "healthy",
			wantChecks: map[string]string{"database": "healthy", "redis": "healthy"},
		},
		{
			name:       "extended with a failing dependency",
			mode:       "extended",
			checks:     map[string]Checker{"database": healthy, "queue": down},
			wantStatus: http.StatusServiceUnavailable,
			wantHealth: "unhealthy",
			wantChecks: map[string]string{"database": "healthy", "queue": "unhealthy: connection refused"},
		},
		{
			name:       "nil checkers are skipped",
			mode:       "extended",
			checks:     map[string]Checker{"database": healthy, "redis": nil},
			wantStatus: http.StatusOK,
			wantHealth: "healthy",
			wantChecks: map[string]string{"database": "healthy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthChecker(tt.checks)
			w := httptest.NewRecorder()
			h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz?mode="+tt.mode, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Status != tt.wantHealth {
				t.Errorf("Expected status %q, got %q", tt.wantHealth, resp.Status)
			}
			if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
				t.Errorf("Timestamp should be RFC3339, got %q", resp.Timestamp)
			}
			if len(resp.Checks) != len(tt.wantChecks) {
				t.Fatalf("Expected checks %v, got %v", tt.wantChecks, resp.Checks)
			}
			for name, want := range tt.wantChecks {
				if resp.Checks[name] != want {
					t.Errorf("check %s = %q, want %q", name, resp.Checks[name], want)
				}
			}
		})
	}
}

func TestHealthCheckTimeout(t *testing.T) {
	t.Parallel()

	var deadline time.Time
	h := NewHealthChecker(map[string]Checker{
		"database": CheckFunc(func(ctx context.Context) error {
			deadline, _ = ctx.Deadline()
			return nil
		}),
	})
	h.HealthCheck(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz?mode=extended", nil))

	if deadline.IsZero() || time.Until(deadline) > healthCheckTimeout {
		t.Errorf("Expected each check to run under a %v deadline", healthCheckTimeout)
	}
}

func TestVersionInfo(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	VersionInfo(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["version"] != Version {
		t.Errorf("version = %q, want %q", body["version"], Version)
	}
}
