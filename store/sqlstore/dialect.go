package sqlstore

import (
	"context"
	"fmt"

	"github.com/warp/commerce-engine/commerce"
)

// =============================================================================
// DIALECT - The only place SQLite and PostgreSQL differ
// =============================================================================

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// bucketExpr returns the SQL expression labelling a purchase's bucket.
// Labels match commerce.Granularity.Label: hours as 2006-01-02T15:00:00Z,
// everything else as 2006-01-02. Weeks start on Monday.
func (d Dialect) bucketExpr(g commerce.Granularity) string {
	if d == Postgres {
		const utc = "(pu.purchase_date AT TIME ZONE 'UTC')"
		switch g {
		case commerce.GranularityHour:
			return `to_char(date_trunc('hour', ` + utc + `), 'YYYY-MM-DD"T"HH24:00:00"Z"')`
		case commerce.GranularityWeek:
			return `to_char(date_trunc('week', ` + utc + `), 'YYYY-MM-DD')`
		case commerce.GranularityYear:
			return `to_char(date_trunc('year', ` + utc + `), 'YYYY-MM-DD')`
		default:
			return `to_char(date_trunc('day', ` + utc + `), 'YYYY-MM-DD')`
		}
	}

	switch g {
	case commerce.GranularityHour:
		return `strftime('%Y-%m-%dT%H:00:00Z', pu.purchase_date)`
	case commerce.GranularityWeek:
		// 'weekday 0' moves forward to Sunday (or stays), -6 days is that week's Monday.
		return `date(pu.purchase_date, 'weekday 0', '-6 days')`
	case commerce.GranularityYear:
		return `strftime('%Y-01-01', pu.purchase_date)`
	default:
		return `strftime('%Y-%m-%d', pu.purchase_date)`
	}
}

// lockProduct serializes first-purchase decisions for one product until the
// transaction ends.
func (d Dialect) lockProduct(ctx context.Context, q queryer, id commerce.ProductID) error {
	if d != Postgres {
		return nil
	}
	if _, err := q.ExecContext(ctx, q.Rebind("SELECT pg_advisory_xact_lock(?)"), int64(id)); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}

func (d Dialect) schema() []string {
	if d == Postgres {
		return postgresSchema
	}
	return sqliteSchema
}
