/*
client.go - asynq producer for notification jobs

PURPOSE:
  Implements commerce.Notifier and notify.ReportEnqueuer over Redis, so the
  API process only enqueues and cmd/worker does the sending.

DEDUPLICATION:
  Each task carries a TaskID derived from its input
  (first_purchase:<id>, daily_report:<date>). Enqueueing a duplicate while
  the original is still known to asynq returns ErrTaskIDConflict, which is
  treated as success.

RETRIES:
  First purchase: asynq.MaxRetry(3). Daily report: asynq.MaxRetry(2).

TRACING:
  The caller's trace context travels in the payload and is restored by
  the worker.

SEE ALSO:
  - server.go: Consumes these tasks
  - notify/dispatcher.go: In-process alternative
*/
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/warp/commerce-engine/commerce"
	"github.com/warp/commerce-engine/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
)

const (
	TypeFirstPurchase = "notify:first_purchase"
	TypeDailyReport   = "notify:daily_report"
	DefaultQueue      = "default"

	FirstPurchaseMaxRetry = 3
	DailyReportMaxRetry   = 2

	enqueueTimeout = 2 * time.Second
)

var (
	tracer       = otel.Tracer("github.com/warp/commerce-engine/jobs")
	meter        = otel.Meter("github.com/warp/commerce-engine/jobs")
	jobsEnqueued metric.Int64Counter
)

func init() {
	var err error
	jobsEnqueued, err = meter.Int64Counter(
		"jobs.enqueued",
		metric.WithDescription("Total number of jobs enqueued"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create jobs enqueued counter")
	}
}

type FirstPurchasePayload struct {
	PurchaseID   int64             `json:"purchase_id"`
	TraceContext map[string]string `json:"trace_context"`
}

type DailyReportPayload struct {
	Date         string            `json:"date"`
	TraceContext map[string]string `json:"trace_context"`
}

// =============================================================================
// TASKS
// =============================================================================

// NewFirstPurchaseTask builds the task for a first-purchase signal.
func NewFirstPurchaseTask(ctx context.Context, id commerce.PurchaseID) (*asynq.Task, error) {
	payload, err := json.Marshal(FirstPurchasePayload{PurchaseID: int64(id), TraceContext: traceCarrier(ctx)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeFirstPurchase, payload,
		asynq.Queue(DefaultQueue),
		asynq.MaxRetry(FirstPurchaseMaxRetry),
		asynq.TaskID("first_purchase:"+id.String()),
	), nil
}

// NewDailyReportTask builds the task for the UTC day containing day.
func NewDailyReportTask(ctx context.Context, day time.Time) (*asynq.Task, error) {
	date := day.UTC().Format(commerce.DateLayout)
	payload, err := json.Marshal(DailyReportPayload{Date: date, TraceContext: traceCarrier(ctx)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDailyReport, payload,
		asynq.Queue(DefaultQueue),
		asynq.MaxRetry(DailyReportMaxRetry),
		asynq.TaskID("daily_report:"+date),
	), nil
}

func traceCarrier(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier
}

// =============================================================================
// CLIENT
// =============================================================================

type Client struct {
	client *asynq.Client
}

func NewClient(redisAddr string) *Client {
	return &Client{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) NotifyFirstPurchase(ctx context.Context, id commerce.PurchaseID) error {
	task, err := NewFirstPurchaseTask(ctx, id)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, attribute.Int64("purchase.id", int64(id)))
}

func (c *Client) EnqueueDailyReport(ctx context.Context, day time.Time) error {
	task, err := NewDailyReportTask(ctx, day)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, attribute.String("report.date", day.UTC().Format(commerce.DateLayout)))
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, attrs ...attribute.KeyValue) error {
	ctx, span := tracer.Start(ctx, "job.enqueue."+task.Type())
	defer span.End()
	span.SetAttributes(append(attrs, attribute.String("job.type", task.Type()))...)

	ctx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()

	info, err := c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logging.Debug(ctx).Str("job_type", task.Type()).Msg("job already enqueued")
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to enqueue %s: %w", task.Type(), err)
	}

	if jobsEnqueued != nil {
		jobsEnqueued.Add(ctx, 1, metric.WithAttributes(
			attribute.String("job.type", task.Type()),
		))
	}
	span.SetAttributes(
		attribute.String("job.id", info.ID),
		attribute.String("job.queue", info.Queue),
	)
	logging.Info(ctx).
		Str("job_id", info.ID).
		Str("job_type", task.Type()).
		Msg("job enqueued")
	return nil
}
