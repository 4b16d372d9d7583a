package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	os.Clearenv()
	cfg := Load()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, "commerce.db", cfg.DatabaseURL)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, JobsLocal, cfg.JobsBackend)
	assert.Equal(t, time.Hour, cfg.CacheTTLReports)
	assert.Equal(t, 30*time.Minute, cfg.CacheTTLGranularity)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.OTelEndpoint)
	assert.Equal(t, "commerce-engine", cfg.OTelServiceName)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/commerce")
	t.Setenv("JWT_EXPIRY", "2h")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JOBS_BACKEND", "asynq")
	t.Setenv("CACHE_TTL_GRANULARITY", "10m")
	t.Setenv("CORS_ORIGINS", "https://admin.shop.test, https://ops.shop.test")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.DatabaseDriver)
	assert.Equal(t, "postgres://localhost/commerce", cfg.DatabaseURL)
	assert.Equal(t, 2*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, JobsAsynq, cfg.JobsBackend)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTLGranularity)
	assert.Equal(t, []string{"https://admin.shop.test", "https://ops.shop.test"}, cfg.CORSOrigins)
	assert.False(t, cfg.IsDevelopment())
}

func TestInvalidValuesFallBackToDefault(t *testing.T) {
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("CACHE_TTL_REPORTS", "soon")
	t.Setenv("STORE_TIMEOUT", "-1s")
	t.Setenv("CORS_ORIGINS", " , ")

	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, time.Hour, cfg.CacheTTLReports)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Len(t, cfg.CORSOrigins, 2)
}
