package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/benvon/smart-survey/internal/config"
	"github.com/benvon/smart-survey/internal/csrf"
	"github.com/benvon/smart-survey/internal/ratelimit"
	"go.uber.org/zap/zaptest"
)

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("store unavailable")
}

func newAdmission(t *testing.T, env config.Environment, store ratelimit.Store) *Admission {
	t.Helper()
	if store == nil {
		store = ratelimit.NewMemoryStore()
	}
	return &Admission{
		Limiter: ratelimit.New(store, env),
		CSRF:    csrf.NewGuard(env),
		Logger:  zaptest.NewLogger(t),
	}
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return body.Error
}

func surveyPost(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/survey/submit", strings.NewReader("{}"))
	req.Header.Set("X-Forwarded-For", ip)
	req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: "token-value"})
	req.Header.Set(csrf.HeaderName, "token-value")
	return req
}

func TestAdmissionRateLimitHeaders(t *testing.T) {
	t.Parallel()

	a := newAdmission(t, config.EnvDevelopment, nil)
	h := a.Guard(ratelimit.EndpointSubmit)(okHandler)

	for i := 1; i <= 5; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, surveyPost("203.0.113.10"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d, want 200", i, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Limit"); got != "5" {
			t.Errorf("X-RateLimit-Limit = %q, want 5", got)
		}
		if got := w.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(5-i) {
			t.Errorf("request %d: X-RateLimit-Remaining = %q, want %d", i, got, 5-i)
		}
		if w.Header().Get("X-RateLimit-Reset") == "" {
			t.Error("X-RateLimit-Reset should be set")
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, surveyPost("203.0.113.10"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After should be set on 429")
	}
	msg := decodeError(t, w)
	if !strings.HasPrefix(msg, "Rate limit exceeded. Maximum 5 requests per 60 seconds. Please try again after ") {
		t.Errorf("unexpected 429 message %q", msg)
	}

	// Another client keeps its own quota.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, surveyPost("203.0.113.11"))
	if w.Code != http.StatusOK {
		t.Errorf("other client status %d, want 200", w.Code)
	}
}

func TestAdmissionRejectsUnidentifiedInProduction(t *testing.T) {
	t.Parallel()

	a := newAdmission(t, config.EnvProduction, nil)
	h := a.Throttle(ratelimit.EndpointSession)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/survey/session", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", w.Code)
	}
	if msg := decodeError(t, w); msg != "Unable to identify client" {
		t.Errorf("message = %q", msg)
	}
}

func TestAdmissionCustomKeyFunc(t *testing.T) {
	t.Parallel()

	a := newAdmission(t, config.EnvProduction, nil)
	a.KeyFunc = TrustedRemoteKey
	h := a.Throttle(ratelimit.EndpointSession)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/survey/session", nil)
	req.RemoteAddr = "192.0.2.44:51234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status %d, want 200 when the socket peer is trusted", w.Code)
	}
}

func TestAdmissionCSRF(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		prepare    func(*http.Request)
		wantStatus int
	}{
		{
			name:       "matching cookie and header",
			prepare:    func(*http.Request) {},
			wantStatus: http.StatusOK,
		},
		{
			name:       "cookie without header",
			prepare:    func(r *http.Request) { r.Header.Del(csrf.HeaderName) },
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "mismatched header",
			prepare:    func(r *http.Request) { r.Header.Set(csrf.HeaderName, "other") },
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := newAdmission(t, config.EnvDevelopment, nil)
			h := a.Guard(ratelimit.EndpointDropout)(okHandler)
			req := surveyPost("203.0.113.20")
			tt.prepare(req)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusForbidden {
				if msg := decodeError(t, w); msg != "CSRF validation failed" {
					t.Errorf("message = %q", msg)
				}
			}
		})
	}
}

func TestAdmissionCountsRejectedCSRF(t *testing.T) {
	t.Parallel()

	a := newAdmission(t, config.EnvDevelopment, nil)
	h := a.Guard(ratelimit.EndpointEmail)(okHandler)

	for i := 0; i < 5; i++ {
		req := surveyPost("203.0.113.30")
		req.Header.Del(csrf.HeaderName)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Fatalf("attempt %d: status %d, want 403", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, surveyPost("203.0.113.30"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status %d, want 429 after the quota was spent on CSRF failures", w.Code)
	}
}

func TestAdmissionFailsOpen(t *testing.T) {
	t.Parallel()

	a := newAdmission(t, config.EnvProduction, failingStore{})
	h := a.Throttle(ratelimit.EndpointImageRating)(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/api/survey/image-rating", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.40")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status %d, want 200 when the store fails", w.Code)
	}
}

func TestAdmissionUnthrottledEndpoint(t *testing.T) {
	t.Parallel()

	a := newAdmission(t, config.EnvProduction, nil)
	h := a.Throttle("health")(okHandler)

	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit") != "" {
			t.Fatal("unthrottled endpoints should not carry rate limit headers")
		}
	}
}
