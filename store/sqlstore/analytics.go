package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/warp/commerce-engine/commerce"
)

// =============================================================================
// ANALYTICS STORE (commerce.AnalyticsStore interface)
// =============================================================================
// Every aggregate is computed by the database. Nothing here loads purchase
// rows to group them in Go. SUMs are cast to BIGINT because PostgreSQL
// widens SUM(bigint) to numeric.

// MostPurchasedByCategory ranks products inside each category by number of
// completed purchases; ties go to the lowest product id.
func (s *Store) MostPurchasedByCategory(ctx context.Context) ([]commerce.CategoryTopProduct, error) {
	query := `
		WITH ranked AS (
			SELECT pc.category_id,
			       p.id AS product_id,
			       p.name AS product_name,
			       p.sku AS product_sku,
			       COUNT(pu.id) AS purchase_count,
			       ROW_NUMBER() OVER (
			           PARTITION BY pc.category_id
			           ORDER BY COUNT(pu.id) DESC, p.id ASC
			       ) AS rn
			FROM product_categories pc
			JOIN products p ON p.id = pc.product_id
			JOIN purchases pu ON pu.product_id = p.id AND pu.status = 'completed'
			GROUP BY pc.category_id, p.id, p.name, p.sku
		)
		SELECT c.id AS category_id,
		       c.name AS category_name,
		       r.product_id,
		       r.product_name,
		       r.product_sku,
		       r.purchase_count
		FROM categories c
		LEFT JOIN ranked r ON r.category_id = c.id AND r.rn = 1
		WHERE c.active = TRUE
		ORDER BY c.id`

	var rows []struct {
		CategoryID    int64          `db:"category_id"`
		CategoryName  string         `db:"category_name"`
		ProductID     sql.NullInt64  `db:"product_id"`
		ProductName   sql.NullString `db:"product_name"`
		ProductSKU    sql.NullString `db:"product_sku"`
		PurchaseCount sql.NullInt64  `db:"purchase_count"`
	}
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to query most purchased by category: %w", err)
	}

	out := make([]commerce.CategoryTopProduct, 0, len(rows))
	for _, r := range rows {
		item := commerce.CategoryTopProduct{
			CategoryID:   commerce.CategoryID(r.CategoryID),
			CategoryName: r.CategoryName,
		}
		if r.ProductID.Valid {
			item.Product = &commerce.ProductCount{
				ID:            commerce.ProductID(r.ProductID.Int64),
				Name:          r.ProductName.String,
				SKU:           r.ProductSKU.String,
				PurchaseCount: r.PurchaseCount.Int64,
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// TopRevenueByCategory ranks products inside each category by completed
// revenue and keeps at most limit of them. Lists are never padded.
func (s *Store) TopRevenueByCategory(ctx context.Context, limit int) ([]commerce.CategoryRevenue, error) {
	query := `
		WITH ranked AS (
			SELECT pc.category_id,
			       p.id AS product_id,
			       p.name AS product_name,
			       p.sku AS product_sku,
			       CAST(SUM(pu.total_amount_cents) AS BIGINT) AS revenue_cents,
			       ROW_NUMBER() OVER (
			           PARTITION BY pc.category_id
			           ORDER BY SUM(pu.total_amount_cents) DESC, p.id ASC
			       ) AS rn
			FROM product_categories pc
			JOIN products p ON p.id = pc.product_id
			JOIN purchases pu ON pu.product_id = p.id AND pu.status = 'completed'
			GROUP BY pc.category_id, p.id, p.name, p.sku
		)
		SELECT c.id AS category_id,
		       c.name AS category_name,
		       r.product_id,
		       r.product_name,
		       r.product_sku,
		       r.revenue_cents
		FROM categories c
		LEFT JOIN ranked r ON r.category_id = c.id AND r.rn <= ?
		WHERE c.active = TRUE
		ORDER BY c.id, r.rn`

	var rows []struct {
		CategoryID   int64          `db:"category_id"`
		CategoryName string         `db:"category_name"`
		ProductID    sql.NullInt64  `db:"product_id"`
		ProductName  sql.NullString `db:"product_name"`
		ProductSKU   sql.NullString `db:"product_sku"`
		RevenueCents sql.NullInt64  `db:"revenue_cents"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), limit); err != nil {
		return nil, fmt.Errorf("failed to query top revenue by category: %w", err)
	}

	var out []commerce.CategoryRevenue
	for _, r := range rows {
		if len(out) == 0 || out[len(out)-1].CategoryID != commerce.CategoryID(r.CategoryID) {
			out = append(out, commerce.CategoryRevenue{
				CategoryID:   commerce.CategoryID(r.CategoryID),
				CategoryName: r.CategoryName,
				TopProducts:  []commerce.ProductRevenue{},
			})
		}
		if !r.ProductID.Valid {
			continue
		}
		last := &out[len(out)-1]
		last.TopProducts = append(last.TopProducts, commerce.ProductRevenue{
			ID:           commerce.ProductID(r.ProductID.Int64),
			Name:         r.ProductName.String,
			SKU:          r.ProductSKU.String,
			TotalRevenue: commerce.MoneyFromCents(r.RevenueCents.Int64),
		})
	}
	if out == nil {
		out = []commerce.CategoryRevenue{}
	}
	return out, nil
}

// =============================================================================
// PURCHASE LISTING
// =============================================================================

const detailSelect = `
	SELECT pu.id, pu.product_id, pu.client_id, pu.quantity, pu.unit_price_cents,
	       pu.total_amount_cents, pu.purchase_date, pu.status, pu.created_at,
	       p.name AS product_name,
	       p.sku AS product_sku,
	       a.id AS administrator_id,
	       a.name AS administrator_name,
	       a.email AS administrator_email,
	       c.name AS client_name,
	       c.email AS client_email
	FROM purchases pu
	JOIN products p ON p.id = pu.product_id
	JOIN administrators a ON a.id = p.administrator_id
	JOIN clients c ON c.id = pu.client_id`

type purchaseDetailRow struct {
	purchaseRow
	ProductName        string `db:"product_name"`
	ProductSKU         string `db:"product_sku"`
	AdministratorID    int64  `db:"administrator_id"`
	AdministratorName  string `db:"administrator_name"`
	AdministratorEmail string `db:"administrator_email"`
	ClientName         string `db:"client_name"`
	ClientEmail        string `db:"client_email"`
}

func (r purchaseDetailRow) toDomain() commerce.PurchaseDetail {
	p := r.purchaseRow.toDomain()
	return commerce.PurchaseDetail{
		Purchase: p,
		Product: commerce.ProductSummary{
			ID:         p.ProductID,
			Name:       r.ProductName,
			SKU:        r.ProductSKU,
			Categories: []string{},
			Administrator: commerce.AdministratorSummary{
				ID:    commerce.AdministratorID(r.AdministratorID),
				Name:  r.AdministratorName,
				Email: r.AdministratorEmail,
			},
		},
		Client: commerce.ClientSummary{
			ID:    p.ClientID,
			Name:  r.ClientName,
			Email: r.ClientEmail,
		},
	}
}

// ListPurchases returns completed purchases, newest first.
func (s *Store) ListPurchases(ctx context.Context, filter commerce.PurchaseFilter, page commerce.PageRequest) (*commerce.PurchasePage, error) {
	page = page.Normalize()
	where, args := s.purchaseWhere(filter)

	var total int64
	countQuery := `SELECT COUNT(*) FROM purchases pu JOIN products p ON p.id = pu.product_id WHERE ` + where
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(countQuery), args...); err != nil {
		return nil, fmt.Errorf("failed to count purchases: %w", err)
	}

	var rows []purchaseDetailRow
	query := detailSelect + ` WHERE ` + where + ` ORDER BY pu.purchase_date DESC, pu.id DESC LIMIT ? OFFSET ?`
	pageArgs := append(append([]any{}, args...), page.PerPage, page.Offset())
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), pageArgs...); err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}

	details := make([]commerce.PurchaseDetail, len(rows))
	for i, r := range rows {
		details[i] = r.toDomain()
	}
	if err := s.attachCategoryNames(ctx, details); err != nil {
		return nil, err
	}

	return &commerce.PurchasePage{
		Purchases:  details,
		Page:       page.Page,
		PerPage:    page.PerPage,
		TotalCount: total,
		TotalPages: commerce.TotalPages(total, page.PerPage),
	}, nil
}

// GetPurchaseDetail loads one purchase with its product/client snapshot,
// whatever its status.
func (s *Store) GetPurchaseDetail(ctx context.Context, id commerce.PurchaseID) (*commerce.PurchaseDetail, error) {
	var row purchaseDetailRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(detailSelect+` WHERE pu.id = ?`), int64(id)); err != nil {
		return nil, notFound(err, "Purchase", id)
	}
	details := []commerce.PurchaseDetail{row.toDomain()}
	if err := s.attachCategoryNames(ctx, details); err != nil {
		return nil, err
	}
	return &details[0], nil
}

// attachCategoryNames fills Product.Categories with one IN query.
func (s *Store) attachCategoryNames(ctx context.Context, details []commerce.PurchaseDetail) error {
	if len(details) == 0 {
		return nil
	}
	seen := make(map[commerce.ProductID]bool)
	var productIDs []int64
	for _, d := range details {
		if !seen[d.ProductID] {
			seen[d.ProductID] = true
			productIDs = append(productIDs, int64(d.ProductID))
		}
	}

	query, args, err := sqlx.In(`
		SELECT pc.product_id, c.name
		FROM product_categories pc
		JOIN categories c ON c.id = pc.category_id
		WHERE pc.product_id IN (?)
		ORDER BY pc.product_id, c.id`, productIDs)
	if err != nil {
		return fmt.Errorf("failed to build category query: %w", err)
	}

	var rows []struct {
		ProductID int64  `db:"product_id"`
		Name      string `db:"name"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load category names: %w", err)
	}

	names := make(map[commerce.ProductID][]string)
	for _, r := range rows {
		id := commerce.ProductID(r.ProductID)
		names[id] = append(names[id], r.Name)
	}
	for i := range details {
		if n, ok := names[details[i].ProductID]; ok {
			details[i].Product.Categories = n
		}
	}
	return nil
}

// =============================================================================
// TIME BUCKETS
// =============================================================================

// CountPurchasesByBucket groups completed purchases by calendar bucket in
// SQL. Buckets without purchases are absent.
func (s *Store) CountPurchasesByBucket(ctx context.Context, g commerce.Granularity, filter commerce.PurchaseFilter) (commerce.BucketCounts, error) {
	where, args := s.purchaseWhere(filter)
	query := `
		SELECT ` + s.dialect.bucketExpr(g) + ` AS bucket, COUNT(*) AS purchase_count
		FROM purchases pu
		JOIN products p ON p.id = pu.product_id
		WHERE ` + where + `
		GROUP BY bucket
		ORDER BY bucket`

	var rows []struct {
		Bucket string `db:"bucket"`
		Count  int64  `db:"purchase_count"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to count purchases by %s: %w", g, err)
	}

	out := make(commerce.BucketCounts, len(rows))
	for _, r := range rows {
		out[r.Bucket] = r.Count
	}
	return out, nil
}

// purchaseWhere builds the filter shared by listing and bucketing. It
// expects purchases aliased pu and products aliased p.
func (s *Store) purchaseWhere(f commerce.PurchaseFilter) (string, []any) {
	clauses := []string{"pu.status = 'completed'"}
	var args []any

	lower, upper := f.Range.Bounds()
	if !lower.IsZero() {
		clauses = append(clauses, "pu.purchase_date >= ?")
		args = append(args, s.timeArg(lower))
	}
	if !upper.IsZero() {
		clauses = append(clauses, "pu.purchase_date < ?")
		args = append(args, s.timeArg(upper))
	}
	if f.CategoryID != nil {
		// EXISTS keeps a purchase from counting once per matching category row.
		clauses = append(clauses, `EXISTS (
			SELECT 1 FROM product_categories pcf
			WHERE pcf.product_id = pu.product_id AND pcf.category_id = ?)`)
		args = append(args, int64(*f.CategoryID))
	}
	if f.ClientID != nil {
		clauses = append(clauses, "pu.client_id = ?")
		args = append(args, int64(*f.ClientID))
	}
	if f.AdministratorID != nil {
		clauses = append(clauses, "p.administrator_id = ?")
		args = append(args, int64(*f.AdministratorID))
	}
	return strings.Join(clauses, " AND "), args
}

// =============================================================================
// DAILY SUMMARY
// =============================================================================

// DailySummary aggregates completed purchases of one UTC day.
func (s *Store) DailySummary(ctx context.Context, day time.Time, topN int) (*commerce.DailySummary, error) {
	dayRange := commerce.NewDateRange(day, day)
	where, args := s.purchaseWhere(commerce.PurchaseFilter{Range: dayRange})
	from := `FROM purchases pu JOIN products p ON p.id = pu.product_id WHERE ` + where

	var totals struct {
		Count        int64 `db:"purchase_count"`
		RevenueCents int64 `db:"revenue_cents"`
	}
	if err := s.db.GetContext(ctx, &totals, s.db.Rebind(
		`SELECT COUNT(*) AS purchase_count, CAST(COALESCE(SUM(pu.total_amount_cents), 0) AS BIGINT) AS revenue_cents `+from,
	), args...); err != nil {
		return nil, fmt.Errorf("failed to total daily purchases: %w", err)
	}

	var sold []struct {
		Name     string `db:"name"`
		Quantity int64  `db:"quantity"`
	}
	if err := s.db.SelectContext(ctx, &sold, s.db.Rebind(
		`SELECT p.name AS name, CAST(SUM(pu.quantity) AS BIGINT) AS quantity `+from+` GROUP BY p.name ORDER BY p.name`,
	), args...); err != nil {
		return nil, fmt.Errorf("failed to sum products sold: %w", err)
	}

	var top []struct {
		ID    int64  `db:"id"`
		Name  string `db:"name"`
		SKU   string `db:"sku"`
		Count int64  `db:"purchase_count"`
	}
	topArgs := append(append([]any{}, args...), topN)
	if err := s.db.SelectContext(ctx, &top, s.db.Rebind(
		`SELECT p.id AS id, p.name AS name, p.sku AS sku, COUNT(pu.id) AS purchase_count `+from+`
		GROUP BY p.id, p.name, p.sku
		ORDER BY purchase_count DESC, p.id ASC
		LIMIT ?`,
	), topArgs...); err != nil {
		return nil, fmt.Errorf("failed to rank daily products: %w", err)
	}

	lower, _ := dayRange.Bounds()
	summary := &commerce.DailySummary{
		Date:           lower,
		TotalPurchases: totals.Count,
		TotalRevenue:   commerce.MoneyFromCents(totals.RevenueCents),
		ProductsSold:   make(map[string]int64, len(sold)),
		TopProducts:    make([]commerce.ProductCount, 0, len(top)),
	}
	for _, r := range sold {
		summary.ProductsSold[r.Name] = r.Quantity
	}
	for _, r := range top {
		summary.TopProducts = append(summary.TopProducts, commerce.ProductCount{
			ID:            commerce.ProductID(r.ID),
			Name:          r.Name,
			SKU:           r.SKU,
			PurchaseCount: r.Count,
		})
	}
	return summary, nil
}
