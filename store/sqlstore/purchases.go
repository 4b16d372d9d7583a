package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/warp/commerce-engine/commerce"
)

// =============================================================================
// PURCHASE STORE (commerce.PurchaseStore interface)
// =============================================================================
// Outside WithTx each call runs on its own; the ledger always goes through
// WithTx for writes.

type purchaseRow struct {
	ID               int64  `db:"id"`
	ProductID        int64  `db:"product_id"`
	ClientID         int64  `db:"client_id"`
	Quantity         int    `db:"quantity"`
	UnitPriceCents   int64  `db:"unit_price_cents"`
	TotalAmountCents int64  `db:"total_amount_cents"`
	PurchaseDate     dbTime `db:"purchase_date"`
	Status           string `db:"status"`
	CreatedAt        dbTime `db:"created_at"`
}

func (r purchaseRow) toDomain() commerce.Purchase {
	return commerce.Purchase{
		ID:           commerce.PurchaseID(r.ID),
		ProductID:    commerce.ProductID(r.ProductID),
		ClientID:     commerce.ClientID(r.ClientID),
		Quantity:     r.Quantity,
		UnitPrice:    commerce.MoneyFromCents(r.UnitPriceCents),
		TotalAmount:  commerce.MoneyFromCents(r.TotalAmountCents),
		PurchaseDate: r.PurchaseDate.Time,
		Status:       commerce.PurchaseStatus(r.Status),
		CreatedAt:    r.CreatedAt.Time,
	}
}

const purchaseColumns = `id, product_id, client_id, quantity, unit_price_cents, total_amount_cents, purchase_date, status, created_at`

func (s *Store) GetPurchase(ctx context.Context, id commerce.PurchaseID) (*commerce.Purchase, error) {
	return s.getPurchase(ctx, s.db, id)
}

// LockProduct outside a transaction has nothing to hold the lock for.
func (s *Store) LockProduct(context.Context, commerce.ProductID) error { return nil }

func (s *Store) InsertPurchase(ctx context.Context, p *commerce.Purchase) error {
	return s.insertPurchase(ctx, s.db, p)
}

func (s *Store) UpdatePurchaseStatus(ctx context.Context, id commerce.PurchaseID, from, to commerce.PurchaseStatus) (bool, error) {
	return s.updatePurchaseStatus(ctx, s.db, id, from, to)
}

func (s *Store) DecrementStock(ctx context.Context, id commerce.ProductID, quantity int) (bool, error) {
	return s.decrementStock(ctx, s.db, id, quantity)
}

func (s *Store) FirstCompletedPurchase(ctx context.Context, id commerce.ProductID) (commerce.PurchaseID, bool, error) {
	return s.firstCompletedPurchase(ctx, s.db, id)
}

// =============================================================================
// IMPLEMENTATION - Shared by Store and txStore
// =============================================================================

func (s *Store) getPurchase(ctx context.Context, q queryer, id commerce.PurchaseID) (*commerce.Purchase, error) {
	var row purchaseRow
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = ?`
	if err := sqlx.GetContext(ctx, q, &row, q.Rebind(query), int64(id)); err != nil {
		return nil, notFound(err, "Purchase", id)
	}
	p := row.toDomain()
	return &p, nil
}

func (s *Store) insertPurchase(ctx context.Context, q queryer, p *commerce.Purchase) error {
	p.CreatedAt = s.now().UTC()
	query := `
		INSERT INTO purchases
		(product_id, client_id, quantity, unit_price_cents, total_amount_cents, purchase_date, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	var id int64
	err := q.QueryRowxContext(ctx, q.Rebind(query),
		int64(p.ProductID),
		int64(p.ClientID),
		p.Quantity,
		p.UnitPrice.Cents(),
		p.TotalAmount.Cents(),
		s.timeArg(p.PurchaseDate),
		string(p.Status),
		s.timeArg(p.CreatedAt),
	).Scan(&id)
	if err != nil {
		if isForeignKeyError(err) {
			return &commerce.NotFoundError{Resource: "Product", ID: p.ProductID}
		}
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	p.ID = commerce.PurchaseID(id)
	return nil
}

func (s *Store) updatePurchaseStatus(ctx context.Context, q queryer, id commerce.PurchaseID, from, to commerce.PurchaseStatus) (bool, error) {
	res, err := q.ExecContext(ctx,
		q.Rebind(`UPDATE purchases SET status = ? WHERE id = ? AND status = ?`),
		string(to), int64(id), string(from),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update purchase %d status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// decrementStock is the only statement that lowers stock. The WHERE clause
// makes check and write one atomic step.
func (s *Store) decrementStock(ctx context.Context, q queryer, id commerce.ProductID, quantity int) (bool, error) {
	res, err := q.ExecContext(ctx,
		q.Rebind(`UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?`),
		quantity, int64(id), quantity,
	)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock of product %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) firstCompletedPurchase(ctx context.Context, q queryer, id commerce.ProductID) (commerce.PurchaseID, bool, error) {
	var first int64
	query := `
		SELECT id FROM purchases
		WHERE product_id = ? AND status = 'completed'
		ORDER BY purchase_date ASC, id ASC
		LIMIT 1`
	err := sqlx.GetContext(ctx, q, &first, q.Rebind(query), int64(id))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to find first purchase of product %d: %w", id, err)
	}
	return commerce.PurchaseID(first), true, nil
}
