package middleware

import (
	"net/http"

	logpkg "github.com/benvon/smart-survey/internal/logger"
	"github.com/benvon/smart-survey/internal/request"
	"go.uber.org/zap"
)

// auditEvents names the statuses worth a security log line.
var auditEvents = map[int]string{
	http.StatusUnauthorized:          "security_event",
	http.StatusForbidden:             "security_event",
	http.StatusConflict:              "duplicate_submission",
	http.StatusRequestEntityTooLarge: "oversized_request",
	http.StatusTooManyRequests:       "rate_limit_violation",
}

// Audit logs rejected requests for abuse monitoring
func Audit(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			event, ok := auditEvents[wrapped.statusCode]
			if !ok {
				return
			}
			logger.Warn(event,
				zap.Int("status_code", wrapped.statusCode),
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.String("ip", logpkg.SanitizeIP(request.ClientIP(r))),
				zap.String("user_agent", logpkg.SanitizeString(r.UserAgent(), logpkg.MaxGeneralStringLength)),
			)
		})
	}
}
