// Package store selects the SQL backend named by configuration.
package store

import (
	"context"
	"fmt"

	"github.com/warp/commerce-engine/store/postgres"
	"github.com/warp/commerce-engine/store/sqlite"
	"github.com/warp/commerce-engine/store/sqlstore"
)

// Open returns a migrated store for driver "sqlite" (dsn is a file path or
// ":memory:") or "postgres" (dsn is a connection URL).
func Open(ctx context.Context, driver, dsn string) (*sqlstore.Store, error) {
	switch driver {
	case "sqlite", "":
		return sqlite.New(dsn)
	case "postgres":
		return postgres.New(ctx, dsn)
	}
	return nil, fmt.Errorf("unknown database driver %q", driver)
}
