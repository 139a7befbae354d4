package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment selects production or development behavior for components
// that differ between the two (rate limiting of unknown clients, CSRF origin
// checks, cookie flags, log encoding).
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvDevelopment Environment = "development"
)

// IsProduction reports whether e is the production environment.
func (e Environment) IsProduction() bool {
	return e == EnvProduction
}

// ParseEnvironment maps APP_ENV style values onto an Environment.
// Anything that is not recognisably production is development.
func ParseEnvironment(value string) Environment {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "production", "prod":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

const (
	DefaultMaxBodyBytes     int64 = 100 * 1024
	DefaultAdminRate              = "60-M"
	DefaultSweepInterval          = time.Minute
	DefaultRabbitMQPrefetch       = 1
	DefaultReconcileInterval      = time.Hour
	DefaultDLQRetention           = 72 * time.Hour
)

// Config holds application configuration
type Config struct {
	Environment       Environment
	DatabaseURL       string
	ServerPort        string
	FrontendURL       string
	EnableHSTS        bool
	RedisURL          string
	RabbitMQURL       string
	RabbitMQPrefetch  int
	AdminJWTSecret    string
	AdminRate         string
	MaxBodyBytes      int64
	SweepInterval     time.Duration
	ReconcileInterval time.Duration
	DLQRetention      time.Duration
	TrustRemoteAddr   bool
	MaintenanceMode   bool
	CatalogPath       string
	WorkerDebugMode   bool
	ServerDebugMode   bool
	OTELEnabled       bool
	OTELEndpoint      string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom loads configuration using lookup to resolve variables.
func LoadFrom(lookup func(string) string) (*Config, error) {
	env := envSource(lookup)
	environment := ParseEnvironment(env.get("APP_ENV", string(EnvDevelopment)))

	cfg := &Config{
		Environment:       environment,
		DatabaseURL:       env.get("DATABASE_URL", ""),
		ServerPort:        env.get("SERVER_PORT", "8080"),
		FrontendURL:       env.get("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:        env.getBool("ENABLE_HSTS", environment.IsProduction()),
		RedisURL:          env.get("REDIS_URL", ""),
		RabbitMQURL:       env.get("RABBITMQ_URL", ""),
		RabbitMQPrefetch:  env.getInt("RABBITMQ_PREFETCH", DefaultRabbitMQPrefetch),
		AdminJWTSecret:    env.get("ADMIN_JWT_SECRET", ""),
		AdminRate:         env.get("ADMIN_RATE", DefaultAdminRate),
		MaxBodyBytes:      int64(env.getInt("MAX_BODY_BYTES", int(DefaultMaxBodyBytes))),
		SweepInterval:     env.getDuration("RATE_LIMIT_SWEEP_INTERVAL", DefaultSweepInterval),
		ReconcileInterval: env.getIntervalOrOff("RECONCILE_INTERVAL", DefaultReconcileInterval),
		DLQRetention:      env.getDuration("DLQ_RETENTION", DefaultDLQRetention),
		TrustRemoteAddr:   env.getBool("TRUST_REMOTE_ADDR", false),
		MaintenanceMode:   env.getBool("MAINTENANCE_MODE", false),
		CatalogPath:       env.get("CATALOG_PATH", ""),
		WorkerDebugMode:   env.getBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:   env.getBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:       env.getBool("OTEL_ENABLED", false),
		OTELEndpoint:      env.get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.Environment.IsProduction() && cfg.AdminJWTSecret == "" {
		return nil, fmt.Errorf("ADMIN_JWT_SECRET is required in production")
	}

	if cfg.AdminJWTSecret != "" && len(cfg.AdminJWTSecret) < 32 {
		return nil, fmt.Errorf("ADMIN_JWT_SECRET must be at least 32 characters")
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.RabbitMQPrefetch <= 0 {
		cfg.RabbitMQPrefetch = DefaultRabbitMQPrefetch
	}

	return cfg, nil
}

// AllowedOrigins splits a comma separated origin list, trimming and
// de-duplicating entries.
func AllowedOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(raw, ",") {
		s := strings.TrimSpace(p)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

type envSource func(string) string

func (e envSource) get(key, defaultValue string) string {
	if value := e(key); value != "" {
		return value
	}
	return defaultValue
}

func (e envSource) getBool(key string, defaultValue bool) bool {
	if value := e(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func (e envSource) getInt(key string, defaultValue int) int {
	if value := e(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (e envSource) getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := e(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

// getIntervalOrOff is getDuration that also accepts 0, meaning disabled.
func (e envSource) getIntervalOrOff(key string, defaultValue time.Duration) time.Duration {
	if e(key) == "0" {
		return 0
	}
	return e.getDuration(key, defaultValue)
}
