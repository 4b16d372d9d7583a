package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/warp/commerce-engine/commerce"
	"github.com/warp/commerce-engine/logging"
	"github.com/warp/commerce-engine/notify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
)

var (
	jobsCompleted metric.Int64Counter
	jobsFailed    metric.Int64Counter
	jobsDuration  metric.Float64Histogram
)

func init() {
	var err error

	jobsCompleted, err = meter.Int64Counter(
		"jobs.completed",
		metric.WithDescription("Total number of jobs completed successfully"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create jobs completed counter")
	}

	jobsFailed, err = meter.Int64Counter(
		"jobs.failed",
		metric.WithDescription("Total number of jobs failed"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create jobs failed counter")
	}

	jobsDuration, err = meter.Float64Histogram(
		"jobs.duration_ms",
		metric.WithDescription("Job processing duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create jobs duration histogram")
	}
}

// =============================================================================
// SERVER
// =============================================================================

type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewServer(redisAddr string, concurrency int, firstPurchase *notify.FirstPurchaseHandler, dailyReport *notify.DailyReportHandler) *Server {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				DefaultQueue: 10,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				event := logging.Warn(ctx)
				if retried >= maxRetry {
					event = logging.Error(ctx)
				}
				event.
					Err(err).
					Str("task_type", task.Type()).
					Int("retried", retried).
					Int("max_retry", maxRetry).
					Msg("task failed")
			}),
		},
	)

	return &Server{server: server, mux: NewServeMux(firstPurchase, dailyReport)}
}

// NewServeMux routes both notification task types to their handlers.
func NewServeMux(firstPurchase *notify.FirstPurchaseHandler, dailyReport *notify.DailyReportHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeFirstPurchase, HandleFirstPurchase(firstPurchase))
	mux.HandleFunc(TypeDailyReport, HandleDailyReport(dailyReport))
	return mux
}

func (s *Server) Start() error {
	logging.Logger().Info().Msg("starting asynq worker")
	return s.server.Start(s.mux)
}

func (s *Server) Shutdown() {
	logging.Logger().Info().Msg("shutting down asynq worker")
	s.server.Shutdown()
}

// =============================================================================
// HANDLERS
// =============================================================================

func HandleFirstPurchase(h *notify.FirstPurchaseHandler) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload FirstPurchasePayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			recordJobMetrics(ctx, task.Type(), false, 0)
			return fmt.Errorf("bad payload: %v: %w", err, asynq.SkipRetry)
		}
		return run(ctx, task.Type(), payload.TraceContext,
			[]attribute.KeyValue{attribute.Int64("purchase.id", payload.PurchaseID)},
			func(ctx context.Context) error {
				return h.Handle(ctx, commerce.PurchaseID(payload.PurchaseID))
			})
	}
}

func HandleDailyReport(h *notify.DailyReportHandler) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload DailyReportPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			recordJobMetrics(ctx, task.Type(), false, 0)
			return fmt.Errorf("bad payload: %v: %w", err, asynq.SkipRetry)
		}
		day, err := commerce.ParseDate(payload.Date)
		if err != nil {
			recordJobMetrics(ctx, task.Type(), false, 0)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return run(ctx, task.Type(), payload.TraceContext,
			[]attribute.KeyValue{attribute.String("report.date", payload.Date)},
			func(ctx context.Context) error { return h.Handle(ctx, day) })
	}
}

// run restores the producer's trace, runs fn in a span and records metrics.
// Permanent handler errors skip asynq's retries.
func run(ctx context.Context, jobType string, carrier map[string]string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	start := time.Now()

	parent := otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(carrier))
	ctx, span := tracer.Start(parent, "job."+jobType)
	defer span.End()
	span.SetAttributes(append(attrs, attribute.String("job.type", jobType))...)

	err := fn(ctx)
	recordJobMetrics(ctx, jobType, err == nil, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if notify.IsPermanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	span.SetStatus(codes.Ok, "job processed")
	return nil
}

func recordJobMetrics(ctx context.Context, jobType string, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("job.type", jobType))

	if success {
		if jobsCompleted != nil {
			jobsCompleted.Add(ctx, 1, attrs)
		}
	} else if jobsFailed != nil {
		jobsFailed.Add(ctx, 1, attrs)
	}

	if jobsDuration != nil {
		jobsDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}
