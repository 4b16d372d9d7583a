// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	JobsLocal = "local"
	JobsAsynq = "asynq"
)

type Config struct {
	Environment string
	Port        int

	DatabaseDriver string
	DatabaseURL    string
	StoreTimeout   time.Duration

	JWTSecret string
	JWTExpiry time.Duration

	// RedisAddr enables the Redis cache; empty means in-process cache.
	RedisAddr   string
	JobsBackend string

	CacheTTLReports     time.Duration
	CacheTTLGranularity time.Duration

	ReportCheckInterval time.Duration
	WorkerConcurrency   int

	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	OTelServiceName string
	OTelEndpoint    string

	CORSOrigins []string
}

func Load() *Config {
	return &Config{
		Environment:         envOr("APP_ENV", "development"),
		Port:                envOrInt("APP_PORT", 8080),
		DatabaseDriver:      envOr("DATABASE_DRIVER", DriverSQLite),
		DatabaseURL:         envOr("DATABASE_URL", "commerce.db"),
		StoreTimeout:        envOrDuration("STORE_TIMEOUT", 5*time.Second),
		JWTSecret:           envOr("JWT_SECRET", "development-secret-change-me"),
		JWTExpiry:           envOrDuration("JWT_EXPIRY", 24*time.Hour),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		JobsBackend:         envOr("JOBS_BACKEND", JobsLocal),
		CacheTTLReports:     envOrDuration("CACHE_TTL_REPORTS", time.Hour),
		CacheTTLGranularity: envOrDuration("CACHE_TTL_GRANULARITY", 30*time.Minute),
		ReportCheckInterval: envOrDuration("REPORT_CHECK_INTERVAL", time.Hour),
		WorkerConcurrency:   envOrInt("WORKER_CONCURRENCY", 5),
		SMTPAddr:            os.Getenv("SMTP_ADDR"),
		SMTPUsername:        os.Getenv("SMTP_USERNAME"),
		SMTPPassword:        os.Getenv("SMTP_PASSWORD"),
		MailFrom:            envOr("MAIL_FROM", "reports@commerce.local"),
		OTelServiceName:     envOr("OTEL_SERVICE_NAME", "commerce-engine"),
		OTelEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		CORSOrigins:         envOrList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
	}
}

// IsDevelopment is true for development and test, the environments where
// internal error detail may be returned to callers.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "test"
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func envOrList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
