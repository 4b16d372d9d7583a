/*
engine.go - Aggregation engine for the analytics endpoints

PURPOSE:
  Serves the four analytics queries. Grouping, counting and summing all
  happen in the database (commerce.AnalyticsStore); the engine adds
  defaults, validation, tracing and the read-through cache.

CACHING:
  Query                      Key                                       TTL
  MostPurchasedByCategory    analytics:most_purchased_by_category      Reports (1h)
  TopRevenueByCategory       analytics:top_revenue_by_category         Reports (1h)
  ListPurchases              not cached
  PurchasesByGranularity     cache.GranularityKey(g, filter)           Granularity (30m)

  Results may be stale by up to their TTL. Without a cache every call
  goes to the store.

DEFAULTS:
  - Granularity: unknown values fall back to day (see ParseGranularity).
  - Granularity range: one month ago through today, UTC.
  - Page: 1, per page 25, capped at 100.

SEE ALSO:
  - cache/cache.go: Fetch, ReadThrough
  - store/sqlstore/analytics.go: The SQL behind each query
*/
package analytics

import (
	"context"
	"time"

	"github.com/warp/commerce-engine/cache"
	"github.com/warp/commerce-engine/commerce"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TopRevenueLimit is how many products each category lists by revenue.
const TopRevenueLimit = 3

var tracer = otel.Tracer("github.com/warp/commerce-engine/analytics")

// TTLs bound how stale each cached aggregate may be.
type TTLs struct {
	Reports     time.Duration
	Granularity time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{Reports: time.Hour, Granularity: 30 * time.Minute}
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store commerce.AnalyticsStore
	cache *cache.ReadThrough
	ttls  TTLs
	now   func() time.Time
}

type Option func(*Engine)

// WithCache enables read-through caching of queries 1, 2 and 4.
func WithCache(c cache.Cache) Option {
	return func(e *Engine) { e.cache = cache.NewReadThrough(c) }
}

func WithTTLs(ttls TTLs) Option {
	return func(e *Engine) { e.ttls = ttls }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store commerce.AnalyticsStore, opts ...Option) *Engine {
	e := &Engine{store: store, ttls: DefaultTTLs(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CacheStats reports hit/miss counters, or false when caching is off.
func (e *Engine) CacheStats() (cache.StatsSnapshot, bool) {
	if e.cache == nil {
		return cache.StatsSnapshot{}, false
	}
	return e.cache.Stats(), true
}

// =============================================================================
// QUERIES
// =============================================================================

// MostPurchasedByCategory lists every active category with its product that
// has the most completed purchases, or a nil product.
func (e *Engine) MostPurchasedByCategory(ctx context.Context) ([]commerce.CategoryTopProduct, error) {
	ctx, span := tracer.Start(ctx, "analytics.most_purchased_by_category")
	defer span.End()

	rows, err := fetch(ctx, e, cache.KeyMostPurchasedByCategory, e.ttls.Reports, e.store.MostPurchasedByCategory)
	return rows, spanErr(span, err)
}

// TopRevenueByCategory lists every active category with up to three
// products by completed revenue.
func (e *Engine) TopRevenueByCategory(ctx context.Context) ([]commerce.CategoryRevenue, error) {
	ctx, span := tracer.Start(ctx, "analytics.top_revenue_by_category")
	defer span.End()

	rows, err := fetch(ctx, e, cache.KeyTopRevenueByCategory, e.ttls.Reports,
		func(ctx context.Context) ([]commerce.CategoryRevenue, error) {
			return e.store.TopRevenueByCategory(ctx, TopRevenueLimit)
		})
	return rows, spanErr(span, err)
}

// ListPurchases pages through completed purchases, newest first. Never cached.
func (e *Engine) ListPurchases(ctx context.Context, filter commerce.PurchaseFilter, page commerce.PageRequest) (*commerce.PurchasePage, error) {
	ctx, span := tracer.Start(ctx, "analytics.list_purchases")
	defer span.End()

	if err := validateRange(filter.Range); err != nil {
		return nil, spanErr(span, err)
	}
	page = page.Normalize()
	span.SetAttributes(attribute.Int("page", page.Page), attribute.Int("per_page", page.PerPage))

	result, err := e.store.ListPurchases(ctx, filter, page)
	return result, spanErr(span, err)
}

// GranularityReport is the result of PurchasesByGranularity.
type GranularityReport struct {
	Granularity commerce.Granularity
	StartDate   time.Time
	EndDate     time.Time
	Data        commerce.BucketCounts
}

// PurchasesByGranularity counts completed purchases per UTC calendar bucket.
// A missing start defaults to one month before today, a missing end to today.
func (e *Engine) PurchasesByGranularity(ctx context.Context, g commerce.Granularity, filter commerce.PurchaseFilter) (*GranularityReport, error) {
	ctx, span := tracer.Start(ctx, "analytics.purchases_by_granularity")
	defer span.End()

	today := e.now().UTC()
	if filter.Range.To.IsZero() {
		filter.Range.To = today
	}
	if filter.Range.From.IsZero() {
		filter.Range.From = today.AddDate(0, -1, 0)
	}
	filter.Range = commerce.NewDateRange(filter.Range.From, filter.Range.To)
	if err := validateRange(filter.Range); err != nil {
		return nil, spanErr(span, err)
	}

	key := cache.GranularityKey(g, filter)
	span.SetAttributes(attribute.String("granularity", g.String()), attribute.String("cache.key", key))

	counts, err := fetch(ctx, e, key, e.ttls.Granularity, func(ctx context.Context) (commerce.BucketCounts, error) {
		return e.store.CountPurchasesByBucket(ctx, g, filter)
	})
	if err != nil {
		return nil, spanErr(span, err)
	}
	return &GranularityReport{
		Granularity: g,
		StartDate:   filter.Range.From,
		EndDate:     filter.Range.To,
		Data:        counts,
	}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func fetch[T any](ctx context.Context, e *Engine, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if e.cache == nil {
		return compute(ctx)
	}
	return cache.Fetch(ctx, e.cache, key, ttl, compute)
}

func validateRange(r commerce.DateRange) error {
	if r.Valid() {
		return nil
	}
	v := commerce.NewValidationError()
	v.Add("end_date", "must be on or after start_date")
	return v
}

func spanErr(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
