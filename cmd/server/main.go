/*
main.go - HTTP server entry point

PURPOSE:
  Wires configuration, storage, cache, notifications and the HTTP router,
  then serves until SIGINT/SIGTERM.

STARTUP SEQUENCE:
  1. Load config from the environment, apply flag overrides
  2. Initialize logging and OpenTelemetry
  3. Open the store (SQLite or PostgreSQL)
  4. Pick the cache (Redis when REDIS_ADDR is set, in-process otherwise)
  5. Pick the notification backend (in-process dispatcher or asynq)
  6. Start the daily report scheduler
  7. Serve HTTP

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides APP_PORT)
  -db      Database path or URL (overrides DATABASE_URL)
  -seed    Load the demo dataset before serving (resets the database)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and drain queued notifications
  4. Flush telemetry, close the database

SEE ALSO:
  - api/server.go: Router configuration
  - cmd/worker/main.go: asynq worker for JOBS_BACKEND=asynq
  - config/config.go: Environment keys
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/commerce-engine/analytics"
	"github.com/warp/commerce-engine/api"
	"github.com/warp/commerce-engine/auth"
	"github.com/warp/commerce-engine/cache"
	"github.com/warp/commerce-engine/commerce"
	"github.com/warp/commerce-engine/config"
	"github.com/warp/commerce-engine/jobs"
	"github.com/warp/commerce-engine/logging"
	"github.com/warp/commerce-engine/notify"
	"github.com/warp/commerce-engine/seed"
	"github.com/warp/commerce-engine/store"
	"github.com/warp/commerce-engine/telemetry"
)

func main() {
	cfg := config.Load()

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbURL := flag.String("db", cfg.DatabaseURL, "Database path (sqlite) or URL (postgres)")
	loadSeed := flag.Bool("seed", false, "Load the demo dataset before serving")
	flag.Parse()
	cfg.Port = *port
	cfg.DatabaseURL = *dbURL

	logging.Init(cfg.OTelServiceName, cfg.IsDevelopment())
	log := logging.Logger()
	ctx := context.Background()

	tp, err := telemetry.Init(ctx, cfg.OTelServiceName, cfg.OTelEndpoint, cfg.Environment)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}

	// Store
	st, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("failed to initialize database")
	}
	defer st.Close()

	if *loadSeed {
		if _, err := seed.Load(ctx, st, seed.DefaultOptions()); err != nil {
			log.Fatal().Err(err).Msg("failed to load demo data")
		}
	}

	// Cache
	var aggregateCache cache.Cache = cache.NewMemory()
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), "commerce:")
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, reads will fall through to the database")
		}
		aggregateCache = redisCache
	}

	// Notifications
	mailer := notify.NewMailer(cfg.SMTPAddr, cfg.MailFrom, cfg.SMTPUsername, cfg.SMTPPassword)
	var (
		notifier   commerce.Notifier
		enqueuer   notify.ReportEnqueuer
		dispatcher *notify.Dispatcher
	)
	switch cfg.JobsBackend {
	case config.JobsAsynq:
		client := jobs.NewClient(cfg.RedisAddr)
		defer client.Close()
		notifier, enqueuer = client, client
	default:
		dispatcher = notify.NewDispatcher(
			notify.NewFirstPurchaseHandler(st, mailer),
			notify.NewDailyReportHandler(st, mailer),
			notify.DefaultDispatcherConfig(),
		)
		dispatcher.Start()
		notifier, enqueuer = dispatcher, dispatcher
	}

	scheduler := notify.NewDailyReportScheduler(st, enqueuer)
	scheduler.CheckInterval = cfg.ReportCheckInterval
	scheduler.Start()

	// Domain services
	engine := analytics.NewEngine(st,
		analytics.WithCache(aggregateCache),
		analytics.WithTTLs(analytics.TTLs{Reports: cfg.CacheTTLReports, Granularity: cfg.CacheTTLGranularity}),
	)
	ledger := commerce.NewPurchaseLedger(st,
		commerce.WithNotifier(notifier),
		commerce.WithTimeout(cfg.StoreTimeout),
	)
	authService := auth.NewService(st,
		auth.NewTokenManager(auth.TokenConfig{Secret: cfg.JWTSecret, Expiry: cfg.JWTExpiry, Issuer: cfg.OTelServiceName}),
		auth.NewPasswordHasher(auth.DefaultBcryptCost),
	)

	handler := api.NewHandler(st, engine, ledger, authService, cfg.Environment)
	router := api.NewRouter(handler, api.RouterConfig{
		ServiceName:    cfg.OTelServiceName,
		AllowedOrigins: cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Int("port", cfg.Port).
			Str("environment", cfg.Environment).
			Str("database", cfg.DatabaseDriver).
			Str("jobs", cfg.JobsBackend).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	scheduler.Stop()
	if dispatcher != nil {
		dispatcher.Stop(shutdownCtx)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("failed to flush telemetry")
	}

	log.Info().Msg("server stopped")
}
