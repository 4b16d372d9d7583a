package commerce_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commerce-engine/commerce"
	"github.com/warp/commerce-engine/commerce/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type recordingNotifier struct {
	mu  sync.Mutex
	ids []commerce.PurchaseID
	err error
}

func (n *recordingNotifier) NotifyFirstPurchase(_ context.Context, id commerce.PurchaseID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, id)
	return n.err
}

func (n *recordingNotifier) calls() []commerce.PurchaseID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]commerce.PurchaseID(nil), n.ids...)
}

func newTestPurchaseLedger(t *testing.T, stock int) (*commerce.PurchaseLedger, *store.Memory, *recordingNotifier) {
	t.Helper()
	mem := store.NewMemory()
	mem.PutProduct(commerce.Product{
		ID:     1,
		Name:   "Wireless Mouse",
		SKU:    "PRD-0000AAAA",
		Price:  commerce.NewMoney(19.99),
		Stock:  stock,
		Active: true,
	})
	mem.PutClient(commerce.Client{ID: 1, Name: "Ada Lovelace", Email: "ada@example.com", Active: true})
	mem.PutClient(commerce.Client{ID: 2, Name: "Alan Turing", Email: "alan@example.com", Active: true})

	notifier := &recordingNotifier{}
	return commerce.NewPurchaseLedger(mem, commerce.WithNotifier(notifier)), mem, notifier
}

func at(day, hour int) *time.Time {
	t := time.Date(2025, time.March, day, hour, 0, 0, 0, time.UTC)
	return &t
}

func currentStock(t *testing.T, mem *store.Memory) int {
	t.Helper()
	p, err := mem.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	return p.Stock
}

// =============================================================================
// RECORD PURCHASE
// =============================================================================

func TestRecordPurchase_Completed_DecrementsStockAndDerivesTotal(t *testing.T) {
	// GIVEN: A product priced 19.99 with 10 in stock
	// WHEN: A client buys 3
	// THEN: Total is 59.97, stock drops to 7, and it is the first purchase

	ledger, mem, notifier := newTestPurchaseLedger(t, 10)

	result, err := ledger.RecordPurchase(context.Background(), commerce.PurchaseRequest{
		ProductID: 1,
		ClientID:  1,
		Quantity:  3,
	})
	require.NoError(t, err)

	assert.Equal(t, commerce.StatusCompleted, result.Purchase.Status)
	assert.Equal(t, "19.99", result.Purchase.UnitPrice.String())
	assert.Equal(t, "59.97", result.Purchase.TotalAmount.String())
	assert.True(t, result.FirstPurchase)
	assert.Equal(t, 7, currentStock(t, mem))
	assert.Equal(t, []commerce.PurchaseID{result.Purchase.ID}, notifier.calls())
}

func TestRecordPurchase_UnitPriceOverride_RoundedToCents(t *testing.T) {
	ledger, _, _ := newTestPurchaseLedger(t, 10)

	price := commerce.NewMoney(9.999)
	result, err := ledger.RecordPurchase(context.Background(), commerce.PurchaseRequest{
		ProductID: 1,
		ClientID:  1,
		Quantity:  2,
		UnitPrice: &price,
	})
	require.NoError(t, err)

	assert.Equal(t, "10.00", result.Purchase.UnitPrice.String())
	assert.Equal(t, "20.00", result.Purchase.TotalAmount.String())
}

func TestRecordPurchase_UnitPriceRoundingToZero_Rejected(t *testing.T) {
	// GIVEN: A unit price override below half a cent
	// WHEN: The purchase is recorded
	// THEN: It fails validation and nothing is written

	ledger, mem, _ := newTestPurchaseLedger(t, 10)

	price := commerce.Money{Amount: decimal.RequireFromString("0.004")}
	_, err := ledger.RecordPurchase(context.Background(), commerce.PurchaseRequest{
		ProductID: 1,
		ClientID:  1,
		Quantity:  1,
		UnitPrice: &price,
	})

	var vErr *commerce.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "unit_price")
	assert.Empty(t, mem.Purchases(1))
}

func TestRecordPurchase_InvalidInput_RejectedBeforePersistence(t *testing.T) {
	ledger, mem, _ := newTestPurchaseLedger(t, 10)

	_, err := ledger.RecordPurchase(context.Background(), commerce.PurchaseRequest{
		ProductID: 1,
		ClientID:  1,
		Quantity:  0,
		Status:    "shipped",
	})

	var vErr *commerce.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "quantity")
	assert.Contains(t, vErr.Fields, "status")
	assert.Contains(t, vErr.FullMessages(), "Quantity must be greater than 0")
	assert.Empty(t, mem.Purchases(1))
}

func TestRecordPurchase_QuantityExceedsStock_RejectedWithAvailable(t *testing.T) {
	// GIVEN: 2 in stock
	// WHEN: Buying 5
	// THEN: InsufficientStockError reports 2 available, nothing is written

	ledger, mem, notifier := newTestPurchaseLedger(t, 2)

	_, err := ledger.RecordPurchase(context.Background(), commerce.PurchaseRequest{
		ProductID: 1,
		ClientID:  1,
		Quantity:  5,
	})

	var stockErr *commerce.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 2, stockErr.Available)
	assert.False(t, commerce.IsRetryable(err))
	assert.Equal(t, 2, currentStock(t, mem))
	assert.Empty(t, mem.Purchases(1))
	assert.Empty(t, notifier.calls())
}

func TestRecordPurchase_UnknownClient_NotFound(t *testing.T) {
	ledger, _, _ := newTestPurchaseLedger(t, 10)

	_, err := ledger.RecordPurchase(context.Background(), commerce.PurchaseRequest{
		ProductID: 1,
		ClientID:  99,
		Quantity:  1,
	})

	assert.True(t, commerce.IsNotFound(err))
}

func TestRecordPurchase_Pending_LeavesStockAndIsNotFirst(t *testing.T) {
	ledger, mem, notifier := newTestPurchaseLedger(t, 10)

	result, err := ledger.RecordPurchase(context.Background(), commerce.PurchaseRequest{
		ProductID: 1,
		ClientID:  1,
		Quantity:  4,
		Status:    commerce.StatusPending,
	})
	require.NoError(t, err)

	assert.False(t, result.FirstPurchase)
	assert.Equal(t, 10, currentStock(t, mem))
	assert.Empty(t, notifier.calls())
}

func TestRecordPurchase_SecondPurchase_NotFirstAndNotNotified(t *testing.T) {
	ledger, _, notifier := newTestPurchaseLedger(t, 10)
	ctx := context.Background()

	first, err := ledger.RecordPurchase(ctx, commerce.PurchaseRequest{ProductID: 1, ClientID: 1, Quantity: 1})
	require.NoError(t, err)
	second, err := ledger.RecordPurchase(ctx, commerce.PurchaseRequest{ProductID: 1, ClientID: 2, Quantity: 1})
	require.NoError(t, err)

	assert.True(t, first.FirstPurchase)
	assert.False(t, second.FirstPurchase)
	assert.Len(t, notifier.calls(), 1)
}

func TestRecordPurchase_NotifierFailure_PurchaseStillCommits(t *testing.T) {
	// GIVEN: A notifier that always fails
	// WHEN: The first purchase is recorded
	// THEN: The purchase commits and no error reaches the caller

	ledger, mem, notifier := newTestPurchaseLedger(t, 10)
	notifier.err = errors.New("queue unavailable")

	result, err := ledger.RecordPurchase(context.Background(), commerce.PurchaseRequest{ProductID: 1, ClientID: 1, Quantity: 1})
	require.NoError(t, err)

	assert.True(t, result.FirstPurchase)
	assert.Len(t, mem.Purchases(1), 1)
	assert.Equal(t, 9, currentStock(t, mem))
}

// losingDecrementStore makes every conditional stock update miss, as if a
// concurrent writer had taken the stock after the check.
type losingDecrementStore struct {
	*store.Memory
}

func (s losingDecrementStore) WithTx(ctx context.Context, fn func(commerce.PurchaseStore) error) error {
	return s.Memory.WithTx(ctx, func(tx commerce.PurchaseStore) error {
		return fn(losingDecrement{tx})
	})
}

type losingDecrement struct {
	commerce.PurchaseStore
}

func (losingDecrement) DecrementStock(context.Context, commerce.ProductID, int) (bool, error) {
	return false, nil
}

func TestRecordPurchase_DecrementLost_RollsBackPurchase(t *testing.T) {
	// GIVEN: Stock check passes but the atomic decrement loses the race
	// WHEN: Recording a completed purchase
	// THEN: StockDecrementError (retryable) and no purchase row survives

	_, mem, notifier := newTestPurchaseLedger(t, 10)
	ledger := commerce.NewPurchaseLedger(losingDecrementStore{mem}, commerce.WithNotifier(notifier))

	_, err := ledger.RecordPurchase(context.Background(), commerce.PurchaseRequest{ProductID: 1, ClientID: 1, Quantity: 1})

	var decErr *commerce.StockDecrementError
	require.ErrorAs(t, err, &decErr)
	assert.True(t, commerce.IsRetryable(err))
	assert.False(t, commerce.IsClientError(err))
	assert.Empty(t, mem.Purchases(1))
	assert.Equal(t, 10, currentStock(t, mem))
	assert.Empty(t, notifier.calls())
}

// =============================================================================
// FIRST PURCHASE
// =============================================================================

func TestIsFirstCompletedPurchase_EarliestDateWins(t *testing.T) {
	// GIVEN: A purchase on March 10 recorded after one on March 12
	// WHEN: Asking which is first
	// THEN: The March 10 purchase, regardless of insertion order

	ledger, _, _ := newTestPurchaseLedger(t, 10)
	ctx := context.Background()

	later, err := ledger.RecordPurchase(ctx, commerce.PurchaseRequest{ProductID: 1, ClientID: 1, Quantity: 1, PurchaseDate: at(12, 9)})
	require.NoError(t, err)
	earlier, err := ledger.RecordPurchase(ctx, commerce.PurchaseRequest{ProductID: 1, ClientID: 2, Quantity: 1, PurchaseDate: at(10, 9)})
	require.NoError(t, err)

	first, err := ledger.IsFirstCompletedPurchase(ctx, 1, earlier.Purchase.ID)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = ledger.IsFirstCompletedPurchase(ctx, 1, later.Purchase.ID)
	require.NoError(t, err)
	assert.False(t, first)
}

func TestIsFirstCompletedPurchase_TieGoesToLowestID(t *testing.T) {
	ledger, _, _ := newTestPurchaseLedger(t, 10)
	ctx := context.Background()

	a, err := ledger.RecordPurchase(ctx, commerce.PurchaseRequest{ProductID: 1, ClientID: 1, Quantity: 1, PurchaseDate: at(10, 9)})
	require.NoError(t, err)
	b, err := ledger.RecordPurchase(ctx, commerce.PurchaseRequest{ProductID: 1, ClientID: 2, Quantity: 1, PurchaseDate: at(10, 9)})
	require.NoError(t, err)

	assert.True(t, a.FirstPurchase)
	assert.False(t, b.FirstPurchase)
}

func TestIsFirstCompletedPurchase_PendingIgnored(t *testing.T) {
	ledger, _, _ := newTestPurchaseLedger(t, 10)
	ctx := context.Background()

	pending, err := ledger.RecordPurchase(ctx, commerce.PurchaseRequest{
		ProductID: 1, ClientID: 1, Quantity: 1, PurchaseDate: at(1, 9), Status: commerce.StatusPending,
	})
	require.NoError(t, err)
	completed, err := ledger.RecordPurchase(ctx, commerce.PurchaseRequest{ProductID: 1, ClientID: 2, Quantity: 1, PurchaseDate: at(5, 9)})
	require.NoError(t, err)

	assert.True(t, completed.FirstPurchase)
	first, err := ledger.IsFirstCompletedPurchase(ctx, 1, pending.Purchase.ID)
	require.NoError(t, err)
	assert.False(t, first)
}

func TestRecordPurchase_Concurrent_ExactlyOneFirst(t *testing.T) {
	// GIVEN: 20 clients buying the same product at the same moment
	// WHEN: All purchases complete concurrently
	// THEN: Exactly one result is flagged first and exactly one notification is sent

	ledger, mem, notifier := newTestPurchaseLedger(t, 100)
	ctx := context.Background()

	const n = 20
	results := make([]*commerce.PurchaseResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := ledger.RecordPurchase(ctx, commerce.PurchaseRequest{ProductID: 1, ClientID: 1, Quantity: 1})
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	firsts := 0
	for _, r := range results {
		require.NotNil(t, r)
		if r.FirstPurchase {
			firsts++
		}
	}
	assert.Equal(t, 1, firsts)
	assert.Len(t, notifier.calls(), 1)
	assert.Equal(t, 100-n, currentStock(t, mem))
}

func TestRecordPurchase_ConcurrentExplicitDates_EarliestIsFirst(t *testing.T) {
	// GIVEN: Concurrent purchases carrying explicit dates March 1..10
	// WHEN: They commit in arbitrary order
	// THEN: Re-evaluation picks exactly one, the March 1 purchase

	ledger, _, _ := newTestPurchaseLedger(t, 100)
	ctx := context.Background()

	const n = 10
	ids := make([]commerce.PurchaseID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := ledger.RecordPurchase(ctx, commerce.PurchaseRequest{
				ProductID: 1, ClientID: 1, Quantity: 1, PurchaseDate: at(n-i, 12),
			})
			if assert.NoError(t, err) {
				ids[i] = r.Purchase.ID
			}
		}(i)
	}
	wg.Wait()

	var firstIdx []int
	for i, id := range ids {
		first, err := ledger.IsFirstCompletedPurchase(ctx, 1, id)
		require.NoError(t, err)
		if first {
			firstIdx = append(firstIdx, i)
		}
	}
	assert.Equal(t, []int{n - 1}, firstIdx, "purchase dated March 1 should be the only first")
}

// =============================================================================
// STOCK
// =============================================================================

func TestRecordPurchase_ConcurrentStock_NeverOversells(t *testing.T) {
	// GIVEN: 5 in stock
	// WHEN: 12 concurrent purchases of 1
	// THEN: Exactly 5 succeed, the rest are rejected, stock ends at 0

	ledger, mem, _ := newTestPurchaseLedger(t, 5)
	ctx := context.Background()

	const n = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.RecordPurchase(ctx, commerce.PurchaseRequest{ProductID: 1, ClientID: 2, Quantity: 1})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, commerce.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	assert.Equal(t, n-5, rejected)
	assert.Equal(t, 0, currentStock(t, mem))
}

func TestStockLedger_DecrementStock(t *testing.T) {
	_, mem, _ := newTestPurchaseLedger(t, 3)
	ctx := context.Background()
	stock := commerce.NewStockLedger(mem)

	require.NoError(t, stock.DecrementStock(ctx, 1, 2))
	assert.Equal(t, 1, currentStock(t, mem))

	err := stock.DecrementStock(ctx, 1, 2)
	var stockErr *commerce.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 1, currentStock(t, mem))

	err = stock.DecrementStock(ctx, 1, 0)
	assert.ErrorIs(t, err, commerce.ErrValidation)
}

// =============================================================================
// COMPLETE PURCHASE
// =============================================================================

func TestCompletePurchase_PendingToCompleted(t *testing.T) {
	// GIVEN: A pending purchase of 4
	// WHEN: It is completed
	// THEN: Stock is decremented, it becomes the first purchase, and is notified

	ledger, mem, notifier := newTestPurchaseLedger(t, 10)
	ctx := context.Background()

	pending, err := ledger.RecordPurchase(ctx, commerce.PurchaseRequest{
		ProductID: 1, ClientID: 1, Quantity: 4, Status: commerce.StatusPending,
	})
	require.NoError(t, err)

	result, err := ledger.CompletePurchase(ctx, pending.Purchase.ID)
	require.NoError(t, err)

	assert.Equal(t, commerce.StatusCompleted, result.Purchase.Status)
	assert.True(t, result.FirstPurchase)
	assert.Equal(t, 6, currentStock(t, mem))
	assert.Equal(t, []commerce.PurchaseID{pending.Purchase.ID}, notifier.calls())
}

func TestCompletePurchase_AlreadyCompleted_Rejected(t *testing.T) {
	ledger, mem, _ := newTestPurchaseLedger(t, 10)
	ctx := context.Background()

	done, err := ledger.RecordPurchase(ctx, commerce.PurchaseRequest{ProductID: 1, ClientID: 1, Quantity: 1})
	require.NoError(t, err)

	_, err = ledger.CompletePurchase(ctx, done.Purchase.ID)
	assert.ErrorIs(t, err, commerce.ErrValidation)
	assert.Equal(t, 9, currentStock(t, mem))
}

func TestCompletePurchase_Missing_NotFound(t *testing.T) {
	ledger, _, _ := newTestPurchaseLedger(t, 10)

	_, err := ledger.CompletePurchase(context.Background(), 404)

	var nf *commerce.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Couldn't find Purchase with 'id'=404", nf.Error())
}
