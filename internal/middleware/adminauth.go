package middleware

import (
	"context"
	"net/http"
	"strings"

	logpkg "github.com/benvon/smart-survey/internal/logger"
	"github.com/benvon/smart-survey/internal/models"
	"github.com/benvon/smart-survey/internal/request"
	"go.uber.org/zap"
)

// TokenVerifier checks an admin bearer token.
type TokenVerifier interface {
	Verify(token string) (*models.AdminClaims, error)
}

type contextKey string

const adminClaimsKey contextKey = "admin_claims"

// AdminAuth requires a valid admin bearer token
func AdminAuth(verifier TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				writeError(w, http.StatusUnauthorized, "Authorization required")
				return
			}

			claims, err := verifier.Verify(strings.TrimSpace(token))
			if err != nil {
				logger.Warn("admin_token_rejected",
					zap.String("ip", logpkg.SanitizeIP(request.ClientIP(r))),
					zap.String("error", logpkg.SanitizeError(err)),
				)
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), adminClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminFromContext returns the verified admin claims, or nil.
func AdminFromContext(ctx context.Context) *models.AdminClaims {
	c, _ := ctx.Value(adminClaimsKey).(*models.AdminClaims)
	return c
}
