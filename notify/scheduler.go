/*
scheduler.go - Daily sales report scheduler

PURPOSE:
  Periodically checks whether yesterday's sales report has been sent and
  enqueues it when it has not.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Looks only at the previous UTC day
  - Skips days already recorded in the delivery log
  - Enqueues instead of sending, so retries stay with the dispatcher

  A check that enqueues a report which is then still running when the next
  check fires enqueues it again. The handler's delivery log check makes the
  duplicate a no-op.

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewDailyReportScheduler(store, dispatcher)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: DailyReportHandler
  - dispatcher.go, jobs/client.go: ReportEnqueuer implementations
*/
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/warp/commerce-engine/commerce"
	"github.com/warp/commerce-engine/logging"
)

// DailyReportScheduler enqueues the previous day's sales report.
type DailyReportScheduler struct {
	Deliveries    commerce.DeliveryLog
	Enqueuer      ReportEnqueuer
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewDailyReportScheduler creates a new scheduler.
func NewDailyReportScheduler(deliveries commerce.DeliveryLog, enqueuer ReportEnqueuer) *DailyReportScheduler {
	return &DailyReportScheduler{
		Deliveries:    deliveries,
		Enqueuer:      enqueuer,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Now:           time.Now,
	}
}

// Start begins the scheduler.
func (s *DailyReportScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		logging.Logger().Info().Msg("daily report scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker.C, s.stop)

	logging.Logger().Info().Dur("check_interval", s.CheckInterval).Msg("daily report scheduler started")
}

// Stop stops the scheduler.
func (s *DailyReportScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		logging.Logger().Info().Msg("daily report scheduler stopped")
	}
}

func (s *DailyReportScheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.checkAndEnqueue(context.Background())

	for {
		select {
		case <-tick:
			s.checkAndEnqueue(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow triggers an immediate check and reports whether a report was
// enqueued.
func (s *DailyReportScheduler) RunNow(ctx context.Context) bool {
	return s.checkAndEnqueue(ctx)
}

// NextRunTime returns when the next scheduled check will occur.
func (s *DailyReportScheduler) NextRunTime() time.Time {
	return s.Now().Add(s.CheckInterval)
}

func (s *DailyReportScheduler) checkAndEnqueue(ctx context.Context) bool {
	yesterday := reportDay(s.Now()).AddDate(0, 0, -1)
	ref := yesterday.Format(commerce.DateLayout)

	delivered, err := s.Deliveries.DeliveryRecorded(ctx, KindDailyReport, ref)
	if err != nil {
		logging.Error(ctx).Err(err).Str("report_date", ref).Msg("failed to check daily report delivery")
		return false
	}
	if delivered {
		return false
	}

	if err := s.Enqueuer.EnqueueDailyReport(ctx, yesterday); err != nil {
		logging.Error(ctx).Err(err).Str("report_date", ref).Msg("failed to enqueue daily report")
		return false
	}
	logging.Info(ctx).Str("report_date", ref).Msg("daily report enqueued")
	return true
}
