package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/benvon/smart-survey/internal/csrf"
	logpkg "github.com/benvon/smart-survey/internal/logger"
	"github.com/benvon/smart-survey/internal/ratelimit"
	"github.com/benvon/smart-survey/internal/request"
	"go.uber.org/zap"
)

// KeyFunc derives the rate limit identity of a request.
type KeyFunc func(*http.Request) string

// TrustedRemoteKey uses the proxy header chain and then the socket peer
// address. It is meant for instances exposed without a proxy.
func TrustedRemoteKey(r *http.Request) string {
	return request.ClientIP(r)
}

// Admission is the check chain run in front of survey handlers.
// Rate limiting always runs first so rejected CSRF attempts are counted.
type Admission struct {
	Limiter *ratelimit.Limiter
	CSRF    *csrf.Guard
	KeyFunc KeyFunc
	Logger  *zap.Logger
}

// Guard applies the rate limit for endpoint and then CSRF validation.
func (a *Admission) Guard(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.admit(w, r, endpoint) {
				return
			}
			if err := a.CSRF.Validate(r); err != nil {
				a.Logger.Warn("csrf_validation_failed",
					zap.String("endpoint", endpoint),
					zap.String("reason", err.Error()),
					zap.String("ip", logpkg.SanitizeIP(request.ClientIP(r))),
				)
				writeError(w, http.StatusForbidden, "CSRF validation failed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Throttle applies only the rate limit for endpoint.
func (a *Admission) Throttle(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.admit(w, r, endpoint) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Admission) identity(r *http.Request) string {
	if a.KeyFunc != nil {
		return a.KeyFunc(r)
	}
	return request.ClientIdentity(r)
}

// admit writes the rate limit headers and answers rejections. It reports
// whether the request may continue.
func (a *Admission) admit(w http.ResponseWriter, r *http.Request, endpoint string) bool {
	d, err := a.Limiter.Check(r.Context(), endpoint, a.identity(r))
	if err != nil {
		a.Logger.Error("rate_limit_store_failed",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
	}
	if !d.Throttled {
		return true
	}

	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if reset := d.ResetUnix(); reset > 0 {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
	}

	switch d.Reason {
	case ratelimit.DenyNone:
		return true
	case ratelimit.DenyUnidentified:
		a.Logger.Warn("unidentified_client_rejected",
			zap.String("endpoint", endpoint),
			zap.String("path", logpkg.SanitizePath(r.URL.Path)),
		)
		writeError(w, http.StatusForbidden, "Unable to identify client")
		return false
	default:
		h.Set("Retry-After", strconv.Itoa(d.RetryAfter))
		writeError(w, http.StatusTooManyRequests, fmt.Sprintf(
			"Rate limit exceeded. Maximum %d requests per %d seconds. Please try again after %d seconds.",
			d.Limit, int(math.Round(d.Window.Seconds())), d.RetryAfter,
		))
		return false
	}
}
