package middleware

import (
	"net/http"
	"strings"
)

// Maintenance answers 503 for survey routes under apiPrefix while enabled.
// Paths under any of the exempt prefixes keep working.
func Maintenance(enabled bool, apiPrefix string, exempt ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if !strings.HasPrefix(path, apiPrefix) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			for _, p := range exempt {
				if strings.HasPrefix(path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.Header().Set("Retry-After", "300")
			writeError(w, http.StatusServiceUnavailable, "Survey is under maintenance")
		})
	}
}
