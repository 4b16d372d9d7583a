// Command worker processes the notification jobs enqueued by the server
// when JOBS_BACKEND=asynq.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/commerce-engine/config"
	"github.com/warp/commerce-engine/jobs"
	"github.com/warp/commerce-engine/logging"
	"github.com/warp/commerce-engine/notify"
	"github.com/warp/commerce-engine/store"
	"github.com/warp/commerce-engine/telemetry"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.OTelServiceName+"-worker", cfg.IsDevelopment())
	log := logging.Logger()
	ctx := context.Background()

	if cfg.RedisAddr == "" {
		log.Fatal().Msg("REDIS_ADDR is required by the worker")
	}

	tp, err := telemetry.Init(ctx, cfg.OTelServiceName+"-worker", cfg.OTelEndpoint, cfg.Environment)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}

	st, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer st.Close()

	mailer := notify.NewMailer(cfg.SMTPAddr, cfg.MailFrom, cfg.SMTPUsername, cfg.SMTPPassword)
	server := jobs.NewServer(cfg.RedisAddr, cfg.WorkerConcurrency,
		notify.NewFirstPurchaseHandler(st, mailer),
		notify.NewDailyReportHandler(st, mailer),
	)
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start worker")
	}
	log.Info().Str("redis", cfg.RedisAddr).Int("concurrency", cfg.WorkerConcurrency).Msg("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	server.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("failed to flush telemetry")
	}
}
