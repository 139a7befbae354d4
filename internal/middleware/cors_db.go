package middleware

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/benvon/smart-survey/internal/config"
	"github.com/benvon/smart-survey/internal/csrf"
	"github.com/benvon/smart-survey/internal/database"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const (
	defaultCORSOrigin = "http://localhost:3000"
	defaultCORSMaxAge = 300
)

// CORSReloader wraps rs/cors and periodically reloads CORS config from the database.
type CORSReloader struct {
	repo     database.CorsConfigStore
	fallback []string
	log      *zap.Logger
	interval time.Duration

	mu      sync.RWMutex
	current *cors.Cors
	origins []string
}

// NewCORSReloader creates a CORS middleware. frontendURLs, a comma separated
// list, is used while no policy is stored.
func NewCORSReloader(repo database.CorsConfigStore, frontendURLs string, log *zap.Logger, reloadInterval time.Duration) *CORSReloader {
	return &CORSReloader{
		repo:     repo,
		fallback: config.AllowedOrigins(frontendURLs),
		log:      log,
		interval: reloadInterval,
	}
}

// Middleware loads the stored policy and returns a middleware applying the
// policy in effect at request time.
func (r *CORSReloader) Middleware() func(http.Handler) http.Handler {
	r.load(context.Background())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			r.mu.RLock()
			c := r.current
			r.mu.RUnlock()
			c.Handler(next).ServeHTTP(w, req)
		})
	}
}

// Start runs the reload loop until ctx is cancelled. Call after Middleware() is applied.
func (r *CORSReloader) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.load(ctx)
		}
	}
}

// Origins returns the allowed origins currently in effect.
func (r *CORSReloader) Origins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.origins)
}

func (r *CORSReloader) load(ctx context.Context) {
	origins := r.fallback
	allowCreds := true
	maxAge := defaultCORSMaxAge

	cfg, err := r.repo.Get(ctx)
	switch {
	case err != nil:
		r.log.Warn("failed_to_load_cors_config_using_fallback", zap.Error(err))
	case cfg != nil && len(cfg.AllowedOrigins) > 0:
		origins = cfg.AllowedOrigins
		allowCreds = cfg.AllowCredentials
		maxAge = cfg.MaxAge
	}
	if len(origins) == 0 {
		origins = []string{defaultCORSOrigin}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: allowCreds,
		MaxAge:           maxAge,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", csrf.HeaderName},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", RequestIDHeader},
	})
	r.mu.Lock()
	changed := !slices.Equal(r.origins, origins)
	r.current = c
	r.origins = slices.Clone(origins)
	r.mu.Unlock()
	if changed {
		r.log.Info("cors_config_loaded", zap.Strings("allowed_origins", origins))
	}
}
