/*
ledger.go - Purchase ledger and stock ledger

PURPOSE:
  The PurchaseLedger is the only writer of purchases and of stock
  decrements. Every purchase goes through one explicit unit of work:

    validate -> lock product -> check stock -> insert purchase
      -> decrement stock -> decide first purchase -> commit -> notify

  There are no save hooks; the order above is the code below.

CRITICAL INVARIANTS:
  1. STOCK NEVER NEGATIVE: the decrement is one conditional UPDATE
     (stock >= quantity), never read-then-write.
  2. ALL OR NOTHING: purchase row and stock decrement commit together.
  3. ONE FIRST PURCHASE: the first-purchase check runs under a per-product
     lock in the same transaction as the insert, so two concurrent
     purchases cannot both conclude they are first.
  4. TOTAL IS DERIVED: total_amount = quantity x unit_price, computed here.

FIRST PURCHASE:
  Among completed purchases of a product, the one with the earliest
  purchase_date; equal timestamps go to the lowest purchase id. A purchase
  without an explicit date is stamped inside the lock, so default dates
  follow commit order.

NOTIFICATION:
  The Notifier is called only after commit, on a context detached from the
  request. Its errors are logged and never returned: a purchase that
  committed stays committed. Consumers re-check IsFirstCompletedPurchase.

TIMEOUTS:
  Each unit of work runs under the ledger timeout. A timeout rolls the
  transaction back; the caller may retry.

SEE ALSO:
  - store.go: TxStore, LockProduct, DecrementStock
  - errors.go: InsufficientStockError, StockDecrementError
  - notify/first_purchase.go: Consumer of the first-purchase signal
*/
package commerce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/commerce-engine/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultLedgerTimeout bounds a single purchase unit of work.
const DefaultLedgerTimeout = 5 * time.Second

var (
	tracer            = otel.Tracer("github.com/warp/commerce-engine/commerce")
	meter             = otel.Meter("github.com/warp/commerce-engine/commerce")
	purchasesRecorded metric.Int64Counter
	purchasesRejected metric.Int64Counter
)

func init() {
	var err error

	purchasesRecorded, err = meter.Int64Counter(
		"purchases.recorded",
		metric.WithDescription("Purchases persisted by the ledger"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create purchases recorded counter")
	}

	purchasesRejected, err = meter.Int64Counter(
		"purchases.rejected",
		metric.WithDescription("Purchases rejected by the ledger"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create purchases rejected counter")
	}
}

// =============================================================================
// REQUEST / RESULT
// =============================================================================

// PurchaseRequest is the input of RecordPurchase. There is deliberately no
// total amount field.
type PurchaseRequest struct {
	ProductID    ProductID
	ClientID     ClientID
	Quantity     int
	UnitPrice    *Money     // overrides the product price when set
	PurchaseDate *time.Time // defaults to now
	Status       PurchaseStatus
}

// Validate checks the request before anything touches the store.
func (r PurchaseRequest) Validate() error {
	v := NewValidationError()
	if r.ProductID <= 0 {
		v.Add("product", "must exist")
	}
	if r.ClientID <= 0 {
		v.Add("client", "must exist")
	}
	if r.Quantity <= 0 {
		v.Add("quantity", "must be greater than 0")
	}
	// The override is stored in cents, so it must stay positive once rounded.
	if r.UnitPrice != nil && !r.UnitPrice.Round().IsPositive() {
		v.Add("unit_price", "must be greater than 0")
	}
	if r.Status != "" && !r.Status.Valid() {
		v.Add("status", "is not included in the list")
	}
	return v.OrNil()
}

// PurchaseResult is what a committed unit of work produced.
type PurchaseResult struct {
	Purchase      Purchase
	FirstPurchase bool
}

// =============================================================================
// PURCHASE LEDGER
// =============================================================================

type PurchaseLedger struct {
	store    TxStore
	notifier Notifier
	timeout  time.Duration
	now      func() time.Time
}

type LedgerOption func(*PurchaseLedger)

func WithNotifier(n Notifier) LedgerOption {
	return func(l *PurchaseLedger) { l.notifier = n }
}

func WithTimeout(d time.Duration) LedgerOption {
	return func(l *PurchaseLedger) { l.timeout = d }
}

func WithClock(now func() time.Time) LedgerOption {
	return func(l *PurchaseLedger) { l.now = now }
}

func NewPurchaseLedger(store TxStore, opts ...LedgerOption) *PurchaseLedger {
	l := &PurchaseLedger{
		store:    store,
		notifier: NopNotifier{},
		timeout:  DefaultLedgerTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordPurchase validates and persists a purchase. Completed purchases
// decrement stock and are checked for being the product's first.
//
// Errors: *ValidationError, *NotFoundError, *InsufficientStockError,
// *StockDecrementError, or a wrapped store/context error.
func (l *PurchaseLedger) RecordPurchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	ctx, span := tracer.Start(ctx, "ledger.record_purchase", trace.WithAttributes(
		attribute.Int64("product.id", int64(req.ProductID)),
		attribute.Int64("client.id", int64(req.ClientID)),
		attribute.Int("purchase.quantity", req.Quantity),
	))
	defer span.End()

	if req.Status == "" {
		req.Status = StatusCompleted
	}
	if err := req.Validate(); err != nil {
		return nil, l.reject(ctx, span, err)
	}

	opCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var result PurchaseResult
	err := l.store.WithTx(opCtx, func(tx PurchaseStore) error {
		if _, err := tx.GetClient(opCtx, req.ClientID); err != nil {
			return err
		}
		if err := tx.LockProduct(opCtx, req.ProductID); err != nil {
			return fmt.Errorf("failed to lock product %d: %w", req.ProductID, err)
		}
		product, err := tx.GetProduct(opCtx, req.ProductID)
		if err != nil {
			return err
		}
		if req.Quantity > product.Stock {
			return &InsufficientStockError{ProductID: product.ID, Available: product.Stock, Requested: req.Quantity}
		}

		unitPrice := product.Price
		if req.UnitPrice != nil {
			unitPrice = req.UnitPrice.Round()
		}
		purchaseDate := l.now().UTC()
		if req.PurchaseDate != nil {
			purchaseDate = req.PurchaseDate.UTC()
		}

		p := Purchase{
			ProductID:    product.ID,
			ClientID:     req.ClientID,
			Quantity:     req.Quantity,
			UnitPrice:    unitPrice,
			TotalAmount:  unitPrice.Times(req.Quantity),
			PurchaseDate: purchaseDate,
			Status:       req.Status,
		}
		if err := tx.InsertPurchase(opCtx, &p); err != nil {
			return err
		}

		if p.Status == StatusCompleted {
			first, err := l.completeLocked(opCtx, tx, &p)
			if err != nil {
				return err
			}
			result.FirstPurchase = first
		}
		result.Purchase = p
		return nil
	})
	if err != nil {
		return nil, l.reject(ctx, span, err)
	}

	l.committed(ctx, span, &result)
	return &result, nil
}

// CompletePurchase moves a pending purchase to completed, decrementing stock
// and re-evaluating first-purchase status in one unit of work.
func (l *PurchaseLedger) CompletePurchase(ctx context.Context, id PurchaseID) (*PurchaseResult, error) {
	ctx, span := tracer.Start(ctx, "ledger.complete_purchase", trace.WithAttributes(
		attribute.Int64("purchase.id", int64(id)),
	))
	defer span.End()

	opCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var result PurchaseResult
	err := l.store.WithTx(opCtx, func(tx PurchaseStore) error {
		p, err := tx.GetPurchase(opCtx, id)
		if err != nil {
			return err
		}
		if p.Status != StatusPending {
			v := NewValidationError()
			v.Add("status", fmt.Sprintf("must be pending to complete (is %s)", p.Status))
			return v
		}
		if err := tx.LockProduct(opCtx, p.ProductID); err != nil {
			return fmt.Errorf("failed to lock product %d: %w", p.ProductID, err)
		}
		product, err := tx.GetProduct(opCtx, p.ProductID)
		if err != nil {
			return err
		}
		if p.Quantity > product.Stock {
			return &InsufficientStockError{ProductID: product.ID, Available: product.Stock, Requested: p.Quantity}
		}

		ok, err := tx.UpdatePurchaseStatus(opCtx, id, StatusPending, StatusCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentModification
		}
		p.Status = StatusCompleted

		first, err := l.completeLocked(opCtx, tx, p)
		if err != nil {
			return err
		}
		result = PurchaseResult{Purchase: *p, FirstPurchase: first}
		return nil
	})
	if err != nil {
		return nil, l.reject(ctx, span, err)
	}

	l.committed(ctx, span, &result)
	return &result, nil
}

// IsFirstCompletedPurchase re-evaluates against current persisted state.
func (l *PurchaseLedger) IsFirstCompletedPurchase(ctx context.Context, productID ProductID, id PurchaseID) (bool, error) {
	return IsFirstCompletedPurchase(ctx, l.store, productID, id)
}

// IsFirstCompletedPurchase is the read-only predicate shared by the ledger
// and the notification consumers.
func IsFirstCompletedPurchase(ctx context.Context, store FirstPurchaseReader, productID ProductID, id PurchaseID) (bool, error) {
	firstID, ok, err := store.FirstCompletedPurchase(ctx, productID)
	if err != nil {
		return false, err
	}
	return ok && firstID == id, nil
}

// completeLocked decrements stock and decides first-purchase status.
// Caller holds the product lock inside tx.
func (l *PurchaseLedger) completeLocked(ctx context.Context, tx PurchaseStore, p *Purchase) (bool, error) {
	if err := NewStockLedger(tx).DecrementStock(ctx, p.ProductID, p.Quantity); err != nil {
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			return false, &StockDecrementError{ProductID: p.ProductID, Requested: p.Quantity, Err: err}
		}
		return false, err
	}
	return IsFirstCompletedPurchase(ctx, tx, p.ProductID, p.ID)
}

func (l *PurchaseLedger) committed(ctx context.Context, span trace.Span, result *PurchaseResult) {
	p := result.Purchase
	span.SetAttributes(
		attribute.Int64("purchase.id", int64(p.ID)),
		attribute.String("purchase.status", string(p.Status)),
		attribute.Bool("purchase.first", result.FirstPurchase),
	)
	if purchasesRecorded != nil {
		purchasesRecorded.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(p.Status)),
			attribute.Bool("first", result.FirstPurchase),
		))
	}

	logging.Info(ctx).
		Int64("purchase_id", int64(p.ID)).
		Int64("product_id", int64(p.ProductID)).
		Int("quantity", p.Quantity).
		Str("total_amount", p.TotalAmount.String()).
		Str("status", string(p.Status)).
		Bool("first_purchase", result.FirstPurchase).
		Msg("purchase recorded")

	if !result.FirstPurchase {
		return
	}
	if err := l.notifier.NotifyFirstPurchase(context.WithoutCancel(ctx), p.ID); err != nil {
		logging.Warn(ctx).
			Err(err).
			Int64("purchase_id", int64(p.ID)).
			Msg("first purchase notification not dispatched")
	}
}

func (l *PurchaseLedger) reject(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if purchasesRejected != nil {
		purchasesRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectionReason(err))))
	}
	return err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInsufficientStock) && !errors.Is(err, ErrStockDecrement):
		return "insufficient_stock"
	case errors.Is(err, ErrStockDecrement):
		return "stock_decrement"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "error"
}

// =============================================================================
// STOCK LEDGER
// =============================================================================

// StockLedger owns stock decrements. It is bound to a store view, usually
// the transactional one handed out by WithTx.
type StockLedger struct {
	store PurchaseStore
}

func NewStockLedger(store PurchaseStore) *StockLedger {
	return &StockLedger{store: store}
}

// DecrementStock subtracts quantity if and only if stock >= quantity.
// On failure nothing changes and the error carries the current stock.
func (s *StockLedger) DecrementStock(ctx context.Context, productID ProductID, quantity int) error {
	if quantity <= 0 {
		v := NewValidationError()
		v.Add("quantity", "must be greater than 0")
		return v
	}

	ok, err := s.store.DecrementStock(ctx, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to decrement stock for product %d: %w", productID, err)
	}
	if ok {
		return nil
	}

	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	return &InsufficientStockError{ProductID: productID, Available: product.Stock, Requested: quantity}
}
