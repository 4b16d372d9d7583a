// Package postgres opens the SQL store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/warp/commerce-engine/store/sqlstore"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

const driverName = "pgx"

// New connects, pings and migrates. First-purchase decisions are serialized
// with pg_advisory_xact_lock, so any pool size is safe.
func New(ctx context.Context, databaseURL string) (*sqlstore.Store, error) {
	db, err := otelsql.Open(driverName, databaseURL,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(
		semconv.DBSystemPostgreSQL,
	)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register db metrics: %w", err)
	}

	sqlxDB := sqlx.NewDb(db, driverName)
	if err := sqlxDB.PingContext(ctx); err != nil {
		sqlxDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlxDB.SetMaxOpenConns(25)
	sqlxDB.SetMaxIdleConns(5)

	store, err := sqlstore.New(ctx, sqlxDB, sqlstore.Postgres)
	if err != nil {
		sqlxDB.Close()
		return nil, err
	}
	return store, nil
}
