/*
store.go - Persistence interfaces for purchases, catalog and analytics

PURPOSE:
  Defines the boundary between the ledger/analytics logic and the database.
  The ledger only sees PurchaseStore; analytics only sees AnalyticsStore.
  One SQL implementation serves SQLite and PostgreSQL.

KEY INTERFACES:
  PurchaseStore:  Everything the ledger reads and writes in a unit of work
  TxStore:        PurchaseStore + WithTx (atomic unit of work)
  CatalogStore:   Administrators, categories, products, clients
  AnalyticsStore: Grouped/aggregated read queries (pushdown, no row loading)
  DeliveryLog:    Idempotency record for sent notifications

ATOMIC UNIT OF WORK:
  WithTx() runs fn against a transactional view. Insert purchase, decrement
  stock and the first-purchase check either all commit or none do.

SERIALIZATION:
  LockProduct() must be called inside WithTx before the first-purchase
  check. PostgreSQL takes pg_advisory_xact_lock(product_id); SQLite runs one
  writer at a time so the transaction itself is the lock.

STOCK:
  DecrementStock() is one conditional UPDATE (stock >= quantity). It reports
  false, not an error, when the condition did not hold.

IMPLEMENTATIONS:
  - store/sqlstore: SQL (SQLite via store/sqlite, PostgreSQL via store/postgres)
  - commerce/store/memory.go: In-memory TxStore for ledger tests

SEE ALSO:
  - ledger.go: Uses PurchaseStore/TxStore
  - analytics/engine.go: Uses AnalyticsStore
*/
package commerce

import (
	"context"
	"time"
)

// =============================================================================
// PURCHASE STORE - What the ledger needs
// =============================================================================

type PurchaseStore interface {
	// GetProduct returns a *NotFoundError when the product doesn't exist.
	GetProduct(ctx context.Context, id ProductID) (*Product, error)

	// GetClient returns a *NotFoundError when the client doesn't exist.
	GetClient(ctx context.Context, id ClientID) (*Client, error)

	// GetPurchase returns a *NotFoundError when the purchase doesn't exist.
	GetPurchase(ctx context.Context, id PurchaseID) (*Purchase, error)

	// LockProduct serializes first-purchase decisions for a product until
	// the surrounding transaction ends.
	LockProduct(ctx context.Context, id ProductID) error

	// InsertPurchase persists p and assigns p.ID and p.CreatedAt.
	InsertPurchase(ctx context.Context, p *Purchase) error

	// UpdatePurchaseStatus moves a purchase from one status to another.
	// Returns false when the purchase was not in status `from`.
	UpdatePurchaseStatus(ctx context.Context, id PurchaseID, from, to PurchaseStatus) (bool, error)

	// DecrementStock atomically subtracts quantity if stock >= quantity.
	DecrementStock(ctx context.Context, id ProductID, quantity int) (bool, error)

	// FirstCompletedPurchase returns the completed purchase of the product with
	// the earliest purchase date, lowest id on ties.
	FirstCompletedPurchase(ctx context.Context, id ProductID) (PurchaseID, bool, error)
}

// FirstPurchaseReader is the one read first-purchase decisions need.
type FirstPurchaseReader interface {
	FirstCompletedPurchase(ctx context.Context, id ProductID) (PurchaseID, bool, error)
}

// TxStore extends PurchaseStore with an atomic unit of work.
type TxStore interface {
	PurchaseStore

	// WithTx executes fn within a transaction. If fn returns an error, the
	// transaction is rolled back.
	WithTx(ctx context.Context, fn func(store PurchaseStore) error) error
}

// =============================================================================
// CATALOG STORE - Plain validated records
// =============================================================================

type CatalogStore interface {
	CreateAdministrator(ctx context.Context, a *Administrator) error
	GetAdministrator(ctx context.Context, id AdministratorID) (*Administrator, error)
	GetAdministratorByEmail(ctx context.Context, email string) (*Administrator, error)
	ListActiveAdministrators(ctx context.Context) ([]Administrator, error)

	CreateCategory(ctx context.Context, c *Category) error
	ListCategories(ctx context.Context) ([]Category, error)

	// CreateProduct persists the product and its category links together.
	CreateProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, id ProductID) (*Product, error)

	CreateClient(ctx context.Context, c *Client) error
	GetClient(ctx context.Context, id ClientID) (*Client, error)
}

// =============================================================================
// ANALYTICS STORE - Aggregation pushdown
// =============================================================================

type AnalyticsStore interface {
	// MostPurchasedByCategory returns one row per active category.
	MostPurchasedByCategory(ctx context.Context) ([]CategoryTopProduct, error)

	// TopRevenueByCategory returns one row per active category with at most
	// limit products.
	TopRevenueByCategory(ctx context.Context, limit int) ([]CategoryRevenue, error)

	// ListPurchases returns one page of completed purchases.
	ListPurchases(ctx context.Context, filter PurchaseFilter, page PageRequest) (*PurchasePage, error)

	// CountPurchasesByBucket counts completed purchases per calendar bucket.
	CountPurchasesByBucket(ctx context.Context, g Granularity, filter PurchaseFilter) (BucketCounts, error)

	GetPurchaseDetail(ctx context.Context, id PurchaseID) (*PurchaseDetail, error)

	// DailySummary aggregates completed purchases of one UTC day.
	DailySummary(ctx context.Context, day time.Time, topN int) (*DailySummary, error)
}

// =============================================================================
// DELIVERY LOG - Consumer-side idempotency for notifications
// =============================================================================

type DeliveryLog interface {
	DeliveryRecorded(ctx context.Context, kind, ref string) (bool, error)

	// RecordDelivery is idempotent: recording twice is not an error.
	RecordDelivery(ctx context.Context, kind, ref string) error
}

// =============================================================================
// NOTIFIER - Consumed by the ledger after commit
// =============================================================================

// Notifier receives first-purchase signals. Implementations must not block
// on delivery and must accept duplicate signals for the same purchase.
type Notifier interface {
	NotifyFirstPurchase(ctx context.Context, id PurchaseID) error
}

// NopNotifier discards signals.
type NopNotifier struct{}

func (NopNotifier) NotifyFirstPurchase(context.Context, PurchaseID) error { return nil }
