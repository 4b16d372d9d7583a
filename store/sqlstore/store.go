/*
Package sqlstore provides the SQL implementation of the commerce storage interfaces.

PURPOSE:
  One implementation of every persistence interface (TxStore, CatalogStore,
  AnalyticsStore, DeliveryLog) over sqlx. SQLite and PostgreSQL differ only
  in the schema DDL, the time bucket expressions and the product lock; the
  Dialect value carries those differences.

INTERFACES IMPLEMENTED:
  commerce.TxStore:        Purchases, conditional stock decrement, first purchase
  commerce.CatalogStore:   Administrators, categories, products, clients
  commerce.AnalyticsStore: Aggregation pushdown (GROUP BY, window functions)
  commerce.DeliveryLog:    Notification idempotency records

KEY TABLES:
  administrators, categories, products, product_categories, clients,
  purchases, notification_deliveries

MONEY:
  Stored as integer cents (price_cents, unit_price_cents,
  total_amount_cents) so SUM is exact on every dialect.

TIMESTAMPS:
  Always UTC. SQLite stores fixed-width text so string order equals time
  order; PostgreSQL uses TIMESTAMPTZ.

CONCURRENCY:
  - Stock: UPDATE ... WHERE stock >= ? (never read-then-write)
  - First purchase: LockProduct inside WithTx. PostgreSQL takes
    pg_advisory_xact_lock; SQLite allows one writer at a time, so the
    write transaction is already the lock.

QUERY STYLE:
  Queries are written with ? placeholders and passed through Rebind, so the
  same text runs on both drivers.

USAGE:
  st, err := sqlite.New(":memory:")
  ledger := commerce.NewPurchaseLedger(st)

SEE ALSO:
  - store/sqlite: SQLite opener (mattn/go-sqlite3)
  - store/postgres: PostgreSQL opener (pgx)
  - commerce/store.go: Interface definitions
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/warp/commerce-engine/commerce"
)

// Store implements all storage interfaces on a sqlx.DB.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	now     func() time.Time
}

// New wraps an open database and migrates the schema.
func New(ctx context.Context, db *sqlx.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Dialect() Dialect { return s.dialect }

// Ping runs SELECT 1; used by the health check.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.GetContext(ctx, &one, "SELECT 1")
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w\n%s", err, stmt)
		}
	}
	return nil
}

// Reset deletes every row. Used by the seed loader and tests.
func (s *Store) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(q queryer) error {
		for _, table := range []string{
			"notification_deliveries",
			"purchases",
			"product_categories",
			"products",
			"categories",
			"clients",
			"administrators",
		} {
			if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to reset %s: %w", table, err)
			}
		}
		return nil
	})
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer = sqlx.ExtContext

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store commerce.PurchaseStore) error) error {
	return s.inTx(ctx, func(q queryer) error {
		return fn(&txStore{q: q, parent: s})
	})
}

func (s *Store) inTx(ctx context.Context, fn func(q queryer) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore is the PurchaseStore handed to WithTx callbacks. Every call goes
// through the transaction; SQLite has a single connection and would
// deadlock otherwise.
type txStore struct {
	q      queryer
	parent *Store
}

func (ts *txStore) GetProduct(ctx context.Context, id commerce.ProductID) (*commerce.Product, error) {
	return ts.parent.getProduct(ctx, ts.q, id)
}

func (ts *txStore) GetClient(ctx context.Context, id commerce.ClientID) (*commerce.Client, error) {
	return ts.parent.getClient(ctx, ts.q, id)
}

func (ts *txStore) GetPurchase(ctx context.Context, id commerce.PurchaseID) (*commerce.Purchase, error) {
	return ts.parent.getPurchase(ctx, ts.q, id)
}

func (ts *txStore) LockProduct(ctx context.Context, id commerce.ProductID) error {
	return ts.parent.dialect.lockProduct(ctx, ts.q, id)
}

func (ts *txStore) InsertPurchase(ctx context.Context, p *commerce.Purchase) error {
	return ts.parent.insertPurchase(ctx, ts.q, p)
}

func (ts *txStore) UpdatePurchaseStatus(ctx context.Context, id commerce.PurchaseID, from, to commerce.PurchaseStatus) (bool, error) {
	return ts.parent.updatePurchaseStatus(ctx, ts.q, id, from, to)
}

func (ts *txStore) DecrementStock(ctx context.Context, id commerce.ProductID, quantity int) (bool, error) {
	return ts.parent.decrementStock(ctx, ts.q, id, quantity)
}

func (ts *txStore) FirstCompletedPurchase(ctx context.Context, id commerce.ProductID) (commerce.PurchaseID, bool, error) {
	return ts.parent.firstCompletedPurchase(ctx, ts.q, id)
}

// =============================================================================
// HELPERS
// =============================================================================

// sqliteTimeLayout is fixed width so lexical order equals chronological order.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

// timeArg encodes a timestamp for the dialect.
func (s *Store) timeArg(t time.Time) any {
	t = t.UTC()
	if s.dialect == SQLite {
		return t.Format(sqliteTimeLayout)
	}
	return t
}

// dbTime scans a timestamp stored as TIMESTAMPTZ or as text.
type dbTime struct {
	time.Time
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	}
	return fmt.Errorf("cannot scan %T into timestamp", src)
}

func (t *dbTime) parse(s string) error {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05", commerce.DateLayout} {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse timestamp %q", s)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// notFound maps sql.ErrNoRows to a commerce.NotFoundError.
func notFound(err error, resource string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &commerce.NotFoundError{Resource: resource, ID: id}
	}
	return fmt.Errorf("failed to load %s %v: %w", resource, id, err)
}
