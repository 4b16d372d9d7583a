package cache

import (
	"strconv"
	"strings"
	"time"

	"github.com/warp/commerce-engine/commerce"
)

// =============================================================================
// KEYS
// =============================================================================

const (
	KeyMostPurchasedByCategory = "analytics:most_purchased_by_category"
	KeyTopRevenueByCategory    = "analytics:top_revenue_by_category"

	granularityPrefix = "analytics:purchases_by_granularity"
)

// absent marks an unset key component so it can never collide with a value.
const absent = "-"

// GranularityKey names one purchases-by-granularity result. Every component
// is written in a fixed order with a name, so two different queries cannot
// produce the same key:
//
//	analytics:purchases_by_granularity:g=day:from=2024-01-01:to=2024-01-31:cat=3:client=-:admin=-
func GranularityKey(g commerce.Granularity, f commerce.PurchaseFilter) string {
	parts := []string{
		granularityPrefix,
		"g=" + g.String(),
		"from=" + dateComponent(f.Range.From),
		"to=" + dateComponent(f.Range.To),
		"cat=" + idComponent(f.CategoryID),
		"client=" + idComponent(f.ClientID),
		"admin=" + idComponent(f.AdministratorID),
	}
	return strings.Join(parts, ":")
}

func dateComponent(t time.Time) string {
	if t.IsZero() {
		return absent
	}
	return t.UTC().Format(commerce.DateLayout)
}

func idComponent[ID ~int64](id *ID) string {
	if id == nil {
		return absent
	}
	return strconv.FormatInt(int64(*id), 10)
}
