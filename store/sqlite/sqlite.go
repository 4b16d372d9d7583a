/*
Package sqlite opens the SQL store on SQLite.

PURPOSE:
  Local development, tests and single-node deployments. The database is
  opened through otelsql so every statement gets a span.

CONCURRENCY:
  The pool is capped at one connection. SQLite only has one writer anyway,
  and a single connection keeps ":memory:" databases shared and makes each
  write transaction the product lock the ledger asks for.

WAL MODE:
  Opened with WAL (Write-Ahead Logging) and foreign keys on.

USAGE:
  store, err := sqlite.New("./data/commerce.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - store/sqlstore: The store implementation
  - store/postgres: PostgreSQL opener
*/
package sqlite

import (
	"context"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/commerce-engine/store/sqlstore"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

const driverName = "sqlite3"

// New opens (and migrates) a SQLite database at path.
// Use ":memory:" for an in-memory database.
func New(path string) (*sqlstore.Store, error) {
	db, err := otelsql.Open(driverName, path+"?_foreign_keys=on&_journal_mode=WAL",
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemSqlite)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register db metrics: %w", err)
	}

	store, err := sqlstore.New(context.Background(), sqlx.NewDb(db, driverName), sqlstore.SQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
