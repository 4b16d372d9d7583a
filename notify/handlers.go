/*
handlers.go - Notification consumers

PURPOSE:
  Turns a first-purchase signal or a report date into an email. Both
  handlers are safe to run more than once for the same input: delivery is
  at-least-once, so they re-check current state and the delivery log
  before sending.

FIRST PURCHASE:
  1. Load the purchase snapshot. A missing purchase is dropped.
  2. Re-check IsFirstCompletedPurchase. A stale signal is dropped.
  3. Skip if first_purchase/<id> was already delivered.
  4. Mail the product's creator, other active administrators on cc.
  5. Record the delivery.

DAILY REPORT:
  1. Skip if daily_report/<YYYY-MM-DD> was already delivered.
  2. Summarize that UTC day's completed purchases.
  3. Mail every active administrator.
  4. Record the delivery.

ERRORS:
  Returned errors are retried by the caller (Dispatcher or asynq). Inputs
  that can never succeed return a backoff.Permanent error.

SEE ALSO:
  - dispatcher.go: In-process retrying worker pool
  - jobs/server.go: asynq worker running the same handlers
*/
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/warp/commerce-engine/commerce"
	"github.com/warp/commerce-engine/logging"
)

// Delivery log kinds.
const (
	KindFirstPurchase = "first_purchase"
	KindDailyReport   = "daily_report"
)

// DailyReportTopProducts is how many products the daily report ranks.
const DailyReportTopProducts = 5

// Store is everything the handlers read and record.
type Store interface {
	commerce.FirstPurchaseReader
	commerce.DeliveryLog
	GetPurchaseDetail(ctx context.Context, id commerce.PurchaseID) (*commerce.PurchaseDetail, error)
	ListActiveAdministrators(ctx context.Context) ([]commerce.Administrator, error)
	DailySummary(ctx context.Context, day time.Time, topN int) (*commerce.DailySummary, error)
}

// =============================================================================
// FIRST PURCHASE
// =============================================================================

type FirstPurchaseHandler struct {
	store  Store
	mailer Mailer
}

func NewFirstPurchaseHandler(store Store, mailer Mailer) *FirstPurchaseHandler {
	return &FirstPurchaseHandler{store: store, mailer: mailer}
}

func (h *FirstPurchaseHandler) Handle(ctx context.Context, id commerce.PurchaseID) error {
	log := logging.WithContext(ctx).With().Int64("purchase_id", int64(id)).Logger()

	detail, err := h.store.GetPurchaseDetail(ctx, id)
	if commerce.IsNotFound(err) {
		log.Warn().Msg("first purchase signal for unknown purchase dropped")
		return backoff.Permanent(err)
	}
	if err != nil {
		return err
	}

	first, err := commerce.IsFirstCompletedPurchase(ctx, h.store, detail.ProductID, id)
	if err != nil {
		return err
	}
	if !first {
		log.Info().Msg("purchase is no longer the first of its product, signal dropped")
		return nil
	}

	ref := id.String()
	delivered, err := h.store.DeliveryRecorded(ctx, KindFirstPurchase, ref)
	if err != nil {
		return err
	}
	if delivered {
		log.Debug().Msg("first purchase already notified")
		return nil
	}

	admins, err := h.store.ListActiveAdministrators(ctx)
	if err != nil {
		return err
	}
	owner := detail.Product.Administrator
	var cc []string
	for _, a := range admins {
		if a.ID != owner.ID {
			cc = append(cc, a.Email)
		}
	}

	body, err := renderFirstPurchase(detail)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to render first purchase mail: %w", err))
	}
	msg := Message{
		To:      []string{owner.Email},
		Cc:      cc,
		Subject: fmt.Sprintf("First purchase: %s", detail.Product.Name),
		Body:    body,
	}
	if err := h.mailer.Send(ctx, msg); err != nil {
		return err
	}

	if err := h.store.RecordDelivery(ctx, KindFirstPurchase, ref); err != nil {
		return err
	}
	log.Info().Str("to", owner.Email).Int("cc", len(cc)).Msg("first purchase notification sent")
	return nil
}

// =============================================================================
// DAILY REPORT
// =============================================================================

type DailyReportHandler struct {
	store  Store
	mailer Mailer
}

func NewDailyReportHandler(store Store, mailer Mailer) *DailyReportHandler {
	return &DailyReportHandler{store: store, mailer: mailer}
}

// Handle sends the report for the UTC day containing day.
func (h *DailyReportHandler) Handle(ctx context.Context, day time.Time) error {
	day = reportDay(day)
	ref := day.Format(commerce.DateLayout)
	log := logging.WithContext(ctx).With().Str("report_date", ref).Logger()

	delivered, err := h.store.DeliveryRecorded(ctx, KindDailyReport, ref)
	if err != nil {
		return err
	}
	if delivered {
		log.Debug().Msg("daily report already sent")
		return nil
	}

	admins, err := h.store.ListActiveAdministrators(ctx)
	if err != nil {
		return err
	}
	if len(admins) == 0 {
		log.Warn().Msg("no active administrators, daily report not sent")
		return nil
	}

	summary, err := h.store.DailySummary(ctx, day, DailyReportTopProducts)
	if err != nil {
		return err
	}
	body, err := renderDailyReport(summary)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to render daily report: %w", err))
	}

	to := make([]string, len(admins))
	for i, a := range admins {
		to[i] = a.Email
	}
	msg := Message{
		To:      to,
		Subject: "Daily sales report " + ref,
		Body:    body,
	}
	if err := h.mailer.Send(ctx, msg); err != nil {
		return err
	}

	if err := h.store.RecordDelivery(ctx, KindDailyReport, ref); err != nil {
		return err
	}
	log.Info().
		Int("recipients", len(to)).
		Int64("purchases", summary.TotalPurchases).
		Msg("daily report sent")
	return nil
}

func reportDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsPermanent reports whether a handler error should not be retried.
func IsPermanent(err error) bool {
	var permanent *backoff.PermanentError
	return errors.As(err, &permanent)
}
