/*
dispatcher.go - In-process notification dispatcher

PURPOSE:
  Implements commerce.Notifier without a broker. Signals go into a bounded
  queue and a small worker pool runs the handlers with exponential backoff.

GUARANTEES:
  - NotifyFirstPurchase and EnqueueDailyReport never block: a full queue
    returns ErrQueueFull immediately.
  - At-least-once while the process is alive. Handlers are idempotent, so
    a retry after a partial failure is harmless.
  - Exhausted retries are logged at error level and counted; they never
    reach the purchase that triggered them.

RETRIES:
  First purchase: 3 retries. Daily report: 2 retries.

LIFECYCLE:
  d := NewDispatcher(firstPurchase, dailyReport, DefaultDispatcherConfig())
  d.Start()
  defer d.Stop(ctx) // drains the queue until ctx is done

SEE ALSO:
  - handlers.go: What each job does
  - jobs/client.go: Same contract over asynq, for multi-process deployments
*/
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/warp/commerce-engine/commerce"
	"github.com/warp/commerce-engine/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrQueueFull         = errors.New("notification queue full")
	ErrDispatcherStopped = errors.New("notification dispatcher stopped")
)

var (
	tracer               = otel.Tracer("github.com/warp/commerce-engine/notify")
	meter                = otel.Meter("github.com/warp/commerce-engine/notify")
	notificationsSent    metric.Int64Counter
	notificationsFailed  metric.Int64Counter
	notificationsDropped metric.Int64Counter
)

func init() {
	var err error

	notificationsSent, err = meter.Int64Counter(
		"notifications.sent",
		metric.WithDescription("Notification jobs that completed"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create notifications sent counter")
	}

	notificationsFailed, err = meter.Int64Counter(
		"notifications.failed",
		metric.WithDescription("Notification jobs that exhausted their retries"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create notifications failed counter")
	}

	notificationsDropped, err = meter.Int64Counter(
		"notifications.dropped",
		metric.WithDescription("Notification signals refused because the queue was full"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create notifications dropped counter")
	}
}

// ReportEnqueuer schedules a daily report. Implemented by Dispatcher and
// jobs.Client.
type ReportEnqueuer interface {
	EnqueueDailyReport(ctx context.Context, day time.Time) error
}

// =============================================================================
// CONFIG
// =============================================================================

type DispatcherConfig struct {
	Workers              int
	QueueSize            int
	FirstPurchaseRetries uint
	DailyReportRetries   uint
	InitialInterval      time.Duration
	MaxInterval          time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:              2,
		QueueSize:            256,
		FirstPurchaseRetries: 3,
		DailyReportRetries:   2,
		InitialInterval:      time.Second,
		MaxInterval:          30 * time.Second,
	}
}

// =============================================================================
// DISPATCHER
// =============================================================================

type job struct {
	ctx     context.Context
	kind    string
	ref     string
	retries uint
	run     func(context.Context) error
}

type Dispatcher struct {
	firstPurchase *FirstPurchaseHandler
	dailyReport   *DailyReportHandler
	cfg           DispatcherConfig

	queue   chan job
	root    context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
	started bool
}

func NewDispatcher(firstPurchase *FirstPurchaseHandler, dailyReport *DailyReportHandler, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	root, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		firstPurchase: firstPurchase,
		dailyReport:   dailyReport,
		cfg:           cfg,
		queue:         make(chan job, cfg.QueueSize),
		root:          root,
		cancel:        cancel,
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	logging.Logger().Info().Int("workers", d.cfg.Workers).Msg("notification dispatcher started")
}

// Stop refuses new jobs, lets the workers drain the queue and waits for
// them. When ctx ends first, running retries are cancelled.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		d.cancel()
		return
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.cancel()
		<-done
	}
	d.cancel()
	logging.Logger().Info().Msg("notification dispatcher stopped")
}

// NotifyFirstPurchase queues a first-purchase notification.
func (d *Dispatcher) NotifyFirstPurchase(ctx context.Context, id commerce.PurchaseID) error {
	return d.enqueue(job{
		ctx:     context.WithoutCancel(ctx),
		kind:    KindFirstPurchase,
		ref:     id.String(),
		retries: d.cfg.FirstPurchaseRetries,
		run:     func(ctx context.Context) error { return d.firstPurchase.Handle(ctx, id) },
	})
}

// EnqueueDailyReport queues the report for the UTC day containing day.
func (d *Dispatcher) EnqueueDailyReport(ctx context.Context, day time.Time) error {
	day = reportDay(day)
	return d.enqueue(job{
		ctx:     context.WithoutCancel(ctx),
		kind:    KindDailyReport,
		ref:     day.Format(commerce.DateLayout),
		retries: d.cfg.DailyReportRetries,
		run:     func(ctx context.Context) error { return d.dailyReport.Handle(ctx, day) },
	})
}

func (d *Dispatcher) enqueue(j job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}

	select {
	case d.queue <- j:
		return nil
	default:
		if notificationsDropped != nil {
			notificationsDropped.Add(j.ctx, 1, metric.WithAttributes(attribute.String("kind", j.kind)))
		}
		return ErrQueueFull
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		d.process(j)
	}
}

func (d *Dispatcher) process(j job) {
	ctx, cancel := context.WithCancel(j.ctx)
	defer cancel()
	stop := context.AfterFunc(d.root, cancel)
	defer stop()

	ctx, span := tracer.Start(ctx, "notify."+j.kind)
	defer span.End()
	span.SetAttributes(attribute.String("notification.kind", j.kind), attribute.String("notification.ref", j.ref))

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.InitialInterval
	bo.MaxInterval = d.cfg.MaxInterval

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := j.run(ctx)
		if err != nil && !IsPermanent(err) {
			logging.Warn(ctx).Err(err).Str("kind", j.kind).Str("ref", j.ref).Int("attempt", attempts).Msg("notification attempt failed")
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(j.retries+1),
	)

	attrs := metric.WithAttributes(attribute.String("kind", j.kind))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if notificationsFailed != nil {
			notificationsFailed.Add(ctx, 1, attrs)
		}
		logging.Error(ctx).Err(err).Str("kind", j.kind).Str("ref", j.ref).Int("attempts", attempts).Msg("notification failed")
		return
	}
	if notificationsSent != nil {
		notificationsSent.Add(ctx, 1, attrs)
	}
}
