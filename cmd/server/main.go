package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/smart-survey/internal/auth"
	"github.com/benvon/smart-survey/internal/catalog"
	"github.com/benvon/smart-survey/internal/config"
	"github.com/benvon/smart-survey/internal/csrf"
	"github.com/benvon/smart-survey/internal/database"
	"github.com/benvon/smart-survey/internal/handlers"
	"github.com/benvon/smart-survey/internal/logger"
	"github.com/benvon/smart-survey/internal/middleware"
	"github.com/benvon/smart-survey/internal/queue"
	"github.com/benvon/smart-survey/internal/ratelimit"
	"github.com/benvon/smart-survey/internal/submission"
	"github.com/benvon/smart-survey/internal/telemetry"
	"github.com/benvon/smart-survey/internal/workers"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const (
	apiPrefix      = "/api/v1"
	reloadInterval = time.Minute
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(cfg.Environment, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_server",
		zap.String("environment", string(cfg.Environment)),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.Bool("maintenance_mode", cfg.MaintenanceMode),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		cat, err = catalog.Load(cfg.CatalogPath)
		if err != nil {
			zapLogger.Fatal("failed_to_load_catalog", zap.String("path", cfg.CatalogPath), zap.Error(err))
		}
	}
	zapLogger.Info("catalog_loaded",
		zap.Int("questions", cat.Len()),
		zap.Int("images", cat.ImageCount()),
	)

	tracingEnabled := false
	if cfg.OTELEnabled {
		tp, err := telemetry.InitTracer(context.Background(), telemetry.Config{
			ServiceName:    telemetry.ServiceName,
			ServiceVersion: handlers.Version,
			Environment:    string(cfg.Environment),
			Endpoint:       cfg.OTELEndpoint,
			Insecure:       !cfg.Environment.IsProduction(),
		})
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracingEnabled = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		zapLogger.Fatal("failed_to_migrate_database", zap.Error(err))
	}

	resultRepo := database.NewResultRepository(db)
	logRepo := database.NewLogRepository(db)
	dropoutRepo := database.NewDropoutRepository(db)
	imageRatingRepo := database.NewImageRatingRepository(db)
	imageDropoutRepo := database.NewImageDropoutRepository(db)
	corsConfigRepo := database.NewCorsConfigRepository(db)
	ratelimitConfigRepo := database.NewRatelimitConfigRepository(db)

	reloadCtx, reloadCancel := context.WithCancel(context.Background())
	defer reloadCancel()

	// Rate limit counters live in Redis when configured so that every
	// instance shares one window per identity.
	var redisClient *redis.Client
	var counterStore ratelimit.Store
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			zapLogger.Fatal("invalid_redis_url", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		counterStore = ratelimit.NewRedisStore(redisClient)
		zapLogger.Info("connected_to_redis")
	} else {
		memStore := ratelimit.NewMemoryStore()
		go memStore.Start(reloadCtx, cfg.SweepInterval)
		defer memStore.Stop()
		counterStore = memStore
		zapLogger.Info("using_in_memory_rate_limit_store", zap.Duration("sweep_interval", cfg.SweepInterval))
	}

	var jobQueue queue.JobQueue
	if cfg.RabbitMQURL != "" {
		// Retry with exponential backoff to ride out broker startup delays
		const maxRetries = 10
		const initialDelay = 2 * time.Second
		var lastErr error
		for attempt := 0; attempt < maxRetries; attempt++ {
			q, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
			if err == nil {
				jobQueue = q
				zapLogger.Info("connected_to_rabbitmq")
				break
			}
			lastErr = err
			delay := initialDelay * time.Duration(1<<uint(attempt))
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}
			zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", maxRetries),
				zap.Error(err),
				zap.Duration("retry_delay", delay),
			)
			time.Sleep(delay)
		}
		if jobQueue == nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries",
				zap.Int("max_retries", maxRetries),
				zap.Error(lastErr),
			)
		}
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
	}

	inlinePropagator := workers.NewEmailPropagator(logRepo, imageRatingRepo, imageDropoutRepo, zapLogger)
	var propagator handlers.EmailPropagator = inlinePropagator
	if jobQueue != nil {
		propagator = workers.NewQueuedPropagator(jobQueue, inlinePropagator, zapLogger)
	}

	surveyLimiter := ratelimit.New(counterStore, cfg.Environment)
	admission := &middleware.Admission{
		Limiter: surveyLimiter,
		CSRF:    csrf.NewGuard(cfg.Environment),
		Logger:  zapLogger,
	}
	if cfg.TrustRemoteAddr {
		admission.KeyFunc = middleware.TrustedRemoteKey
	}

	reconciler := submission.NewReconciler(resultRepo, zapLogger,
		submission.WithTracerProvider(otel.GetTracerProvider()),
	)

	surveyHandler := handlers.NewSurveyHandler(handlers.SurveyConfig{
		Catalog:       cat,
		Reconciler:    reconciler,
		Results:       resultRepo,
		Dropouts:      dropoutRepo,
		ImageRatings:  imageRatingRepo,
		ImageDropouts: imageDropoutRepo,
		CSRF:          admission.CSRF,
		Admission:     admission,
		Propagator:    propagator,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		Logger:        zapLogger,
	})
	adminHandler := handlers.NewAdminHandler(resultRepo, logRepo, dropoutRepo, imageRatingRepo, imageDropoutRepo, zapLogger)

	checks := map[string]handlers.Checker{"database": db}
	if redisClient != nil {
		checks["redis"] = handlers.CheckFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	if jobQueue != nil {
		checks["queue"] = jobQueue
	}
	healthChecker := handlers.NewHealthChecker(checks)

	r := mux.NewRouter()

	// In gorilla/mux the middleware registered first is the outermost wrapper.
	zapLogger.Info("setting_up_middleware")
	if tracingEnabled {
		r.Use(telemetry.Middleware(telemetry.ServiceName, otel.GetTracerProvider()))
		zapLogger.Info("otel_middleware_enabled")
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	corsReloader := middleware.NewCORSReloader(corsConfigRepo, cfg.FrontendURL, zapLogger, reloadInterval)
	r.Use(corsReloader.Middleware())
	r.Use(middleware.Maintenance(cfg.MaintenanceMode, apiPrefix, apiPrefix+"/admin"))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", handlers.VersionInfo).Methods(http.MethodGet)

	apiRouter := r.PathPrefix(apiPrefix).Subrouter()

	// Admin routes are registered before the survey routes so the /admin
	// prefix is matched first.
	adminLimiterStore, err := middleware.NewAdminLimiterStore(redisClient)
	if err != nil {
		zapLogger.Fatal("failed_to_create_admin_limiter_store", zap.Error(err))
	}
	rateLimitReloader := middleware.NewRateLimitReloader(adminLimiterStore, ratelimitConfigRepo, surveyLimiter, cfg.AdminRate, zapLogger, reloadInterval)
	// Middleware performs the first load, which also applies survey endpoint overrides.
	adminRateLimit := rateLimitReloader.Middleware()
	if cfg.AdminJWTSecret != "" {
		verifier, err := auth.NewVerifier(cfg.AdminJWTSecret)
		if err != nil {
			zapLogger.Fatal("failed_to_create_admin_token_verifier", zap.Error(err))
		}
		adminRouter := apiRouter.PathPrefix("/admin").Subrouter()
		adminRouter.Use(adminRateLimit)
		adminRouter.Use(middleware.AdminAuth(verifier, zapLogger))
		adminHandler.RegisterRoutes(adminRouter)
	} else {
		zapLogger.Warn("admin_routes_disabled", zap.String("reason", "ADMIN_JWT_SECRET is not set"))
	}

	surveyHandler.RegisterRoutes(apiRouter)

	// CORS middleware has already set the preflight headers.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go corsReloader.Start(reloadCtx)
	go rateLimitReloader.Start(reloadCtx)

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	reloadCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}
