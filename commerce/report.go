package commerce

import "time"

// =============================================================================
// AGGREGATE VIEWS - Read-only, computed by the store, cached by analytics
// =============================================================================

// CategoryTopProduct is one row of "most purchased product per category".
// Product is nil when the category has no completed purchases.
type CategoryTopProduct struct {
	CategoryID   CategoryID    `json:"category_id"`
	CategoryName string        `json:"category_name"`
	Product      *ProductCount `json:"product"`
}

type ProductCount struct {
	ID            ProductID `json:"id"`
	Name          string    `json:"name"`
	SKU           string    `json:"sku"`
	PurchaseCount int64     `json:"purchase_count"`
}

// CategoryRevenue is one row of "top products by revenue per category".
type CategoryRevenue struct {
	CategoryID   CategoryID       `json:"category_id"`
	CategoryName string           `json:"category_name"`
	TopProducts  []ProductRevenue `json:"top_products"`
}

type ProductRevenue struct {
	ID           ProductID `json:"id"`
	Name         string    `json:"name"`
	SKU          string    `json:"sku"`
	TotalRevenue Money     `json:"total_revenue"`
}

// PurchasePage is one page of the filtered purchase listing.
type PurchasePage struct {
	Purchases  []PurchaseDetail `json:"purchases"`
	Page       int              `json:"current_page"`
	PerPage    int              `json:"per_page"`
	TotalCount int64            `json:"total_count"`
	TotalPages int              `json:"total_pages"`
}

// BucketCounts maps a bucket label to its purchase count. Empty buckets are absent.
type BucketCounts map[string]int64

// DailySummary backs the daily sales report.
type DailySummary struct {
	Date           time.Time        `json:"date"`
	TotalPurchases int64            `json:"total_purchases"`
	TotalRevenue   Money            `json:"total_revenue"`
	ProductsSold   map[string]int64 `json:"products_sold"`
	TopProducts    []ProductCount   `json:"top_products"`
}
