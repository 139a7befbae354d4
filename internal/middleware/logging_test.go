package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		method        string
		path          string
		handlerStatus int
		wantLevel     zapcore.Level
	}{
		{"GET request", http.MethodGet, "/api/survey/csrf-token", http.StatusOK, zapcore.InfoLevel},
		{"POST request", http.MethodPost, "/api/survey/submit", http.StatusCreated, zapcore.InfoLevel},
		{"404 request", http.MethodGet, "/nonexistent", http.StatusNotFound, zapcore.InfoLevel},
		{"500 request", http.MethodGet, "/error", http.StatusInternalServerError, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.InfoLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.handlerStatus)
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			Logging(zap.New(core))(handler).ServeHTTP(w, req)

			if w.Code != tt.handlerStatus {
				t.Errorf("Expected status %d, got %d", tt.handlerStatus, w.Code)
			}
			entries := logs.FilterMessage("http_request").All()
			if len(entries) != 1 {
				t.Fatalf("Expected one http_request log entry, got %d", len(entries))
			}
			entry := entries[0]
			if entry.Level != tt.wantLevel {
				t.Errorf("Expected level %v, got %v", tt.wantLevel, entry.Level)
			}
			fields := entry.ContextMap()
			if fields["status_code"] != int64(tt.handlerStatus) {
				t.Errorf("Expected status_code %d, got %v", tt.handlerStatus, fields["status_code"])
			}
			if fields["method"] != tt.method {
				t.Errorf("Expected method %s, got %v", tt.method, fields["method"])
			}
		})
	}
}

func TestLoggingRequestID(t *testing.T) {
	t.Parallel()

	existing := uuid.NewString()
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when missing", "", false},
		{"kept when valid", existing, true},
		{"replaced when invalid", "<script>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			Logging(zap.NewNop())(handler).ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			if _, err := uuid.Parse(got); err != nil {
				t.Fatalf("Expected a UUID request id, got %q", got)
			}
			if tt.keep && got != tt.incoming {
				t.Errorf("Expected request id %q to be kept, got %q", tt.incoming, got)
			}
			if !tt.keep && got == tt.incoming {
				t.Errorf("Expected request id %q to be replaced", tt.incoming)
			}
		})
	}
}

func TestStatusRecorderDefaultsToOK(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	_, _ = rec.Write([]byte("body"))
	rec.WriteHeader(http.StatusTeapot)

	if rec.statusCode != http.StatusOK {
		t.Errorf("Expected implicit 200 to stick after Write, got %d", rec.statusCode)
	}
	if rec.Unwrap() != w {
		t.Error("Unwrap should return the underlying writer")
	}
}

func TestAudit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		event  string
	}{
		{http.StatusOK, ""},
		{http.StatusBadRequest, ""},
		{http.StatusUnauthorized, "security_event"},
		{http.StatusForbidden, "security_event"},
		{http.StatusConflict, "duplicate_submission"},
		{http.StatusRequestEntityTooLarge, "oversized_request"},
		{http.StatusTooManyRequests, "rate_limit_violation"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.DebugLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			req := httptest.NewRequest(http.MethodPost, "/api/survey/submit", nil)
			req.Header.Set("X-Forwarded-For", "198.51.100.9")
			Audit(zap.New(core))(handler).ServeHTTP(httptest.NewRecorder(), req)

			if tt.event == "" {
				if logs.Len() != 0 {
					t.Errorf("Expected no audit entry for %d, got %d", tt.status, logs.Len())
				}
				return
			}
			entries := logs.FilterMessage(tt.event).All()
			if len(entries) != 1 {
				t.Fatalf("Expected one %s entry, got %d", tt.event, logs.Len())
			}
			if entries[0].Level != zapcore.WarnLevel {
				t.Errorf("Expected warn level, got %v", entries[0].Level)
			}
		})
	}
}
