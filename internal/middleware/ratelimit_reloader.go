package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benvon/smart-survey/internal/database"
	"github.com/benvon/smart-survey/internal/models"
	"github.com/benvon/smart-survey/internal/ratelimit"
	"github.com/benvon/smart-survey/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const defaultAdminRate = "60-M"

// NewAdminLimiterStore returns a Redis backed limiter store when a client is
// given and an in-process one otherwise.
func NewAdminLimiterStore(redisClient *redis.Client) (limiter.Store, error) {
	opts := limiter.StoreOptions{Prefix: "survey:admin", CleanUpInterval: time.Minute}
	if redisClient == nil {
		return memorystore.NewStoreWithOptions(opts), nil
	}
	store, err := redisstore.NewStoreWithOptions(redisClient, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
	}
	return store, nil
}

// RateLimitReloader keeps rate limits in step with the ratelimit_config table.
// The admin scope drives a ulule/limiter middleware; endpoint scopes override
// the survey limiter's default quotas.
type RateLimitReloader struct {
	store       limiter.Store
	repo        database.RatelimitConfigStore
	survey      *ratelimit.Limiter
	defaultRate string
	log         *zap.Logger
	interval    time.Duration

	mu        sync.RWMutex
	current   *stdlibmw.Middleware
	adminRate string
}

// NewRateLimitReloader creates the reloader. survey may be nil.
func NewRateLimitReloader(store limiter.Store, repo database.RatelimitConfigStore, survey *ratelimit.Limiter, defaultRate string, log *zap.Logger, reloadInterval time.Duration) *RateLimitReloader {
	if defaultRate == "" {
		defaultRate = defaultAdminRate
	}
	return &RateLimitReloader{
		store:       store,
		repo:        repo,
		survey:      survey,
		defaultRate: defaultRate,
		log:         log,
		interval:    reloadInterval,
	}
}

// Middleware loads the stored rates and returns a middleware applying the
// admin rate in effect at request time. mux builds the chain per request,
// so the returned func only wraps and never reloads.
func (r *RateLimitReloader) Middleware() func(http.Handler) http.Handler {
	r.Load(context.Background())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			r.mu.RLock()
			mw := r.current
			r.mu.RUnlock()
			if mw == nil {
				next.ServeHTTP(w, req)
				return
			}
			mw.Handler(next).ServeHTTP(w, req)
		})
	}
}

// Start runs the reload loop until ctx is cancelled. Call after Middleware() is applied.
func (r *RateLimitReloader) Start(ctx context.Context) {
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
			r.Load(ctx)
		}
	}
}

// AdminRate returns the admin rate in effect.
func (r *RateLimitReloader) AdminRate() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adminRate
}

// Load reads every stored rate and applies it.
func (r *RateLimitReloader) Load(ctx context.Context) {
	configs, err := r.repo.List(ctx)
	if err != nil {
		r.log.Warn("failed_to_load_ratelimit_config_from_db_using_current",
			zap.Error(err),
		)
		if r.AdminRate() == "" {
			r.applyAdmin(r.defaultRate)
		}
		return
	}

	adminRate := ""
	overrides := ratelimit.Policies{}
	for _, c := range configs {
		if c.Scope == models.RatelimitScopeAdmin {
			adminRate = c.Rate
			continue
		}
		policy, err := ratelimit.ParsePolicy(c.Rate)
		if err != nil {
			r.log.Error("invalid_endpoint_rate_ignored",
				zap.String("endpoint", c.Scope),
				zap.String("rate_str", c.Rate),
				zap.Error(err),
			)
			continue
		}
		overrides[c.Scope] = policy
	}

	if r.survey != nil {
		r.survey.SetPolicies(ratelimit.DefaultPolicies().Merge(overrides))
	}

	if adminRate == "" {
		adminRate = r.defaultRate
		// Save default config if none exists
		if err := r.repo.Set(ctx, &models.RatelimitConfig{Scope: models.RatelimitScopeAdmin, Rate: r.defaultRate}); err != nil {
			r.log.Error("failed_to_save_default_ratelimit_config",
				zap.Error(err),
				zap.String("default_rate", r.defaultRate),
			)
		}
	}
	r.applyAdmin(adminRate)
}

func (r *RateLimitReloader) applyAdmin(rateStr string) {
	if rateStr == r.AdminRate() {
		return
	}
	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		r.log.Error("failed_to_parse_rate_limit_using_default",
			zap.Error(err),
			zap.String("rate_str", rateStr),
			zap.String("default_rate", r.defaultRate),
		)
		rateStr = r.defaultRate
		if rate, err = limiter.NewRateFromFormatted(rateStr); err != nil {
			r.log.Error("failed_to_parse_default_rate_limit",
				zap.Error(err),
				zap.String("default_rate", r.defaultRate),
			)
			return
		}
	}

	instance := limiter.New(r.store, rate)
	mw := stdlibmw.NewMiddleware(instance,
		stdlibmw.WithKeyGetter(request.ClientIP),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		}),
		stdlibmw.WithErrorHandler(func(w http.ResponseWriter, req *http.Request, err error) {
			r.log.Error("admin_rate_limit_store_failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}),
	)
	r.mu.Lock()
	r.current = mw
	r.adminRate = rateStr
	r.mu.Unlock()
	r.log.Info("admin_rate_limit_loaded", zap.String("rate", strings.TrimSpace(rateStr)))
}
