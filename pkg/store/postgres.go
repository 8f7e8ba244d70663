package store

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const defaultPostgresDSN = "postgres://localhost/laborledger?sslmode=disable"

// NewPostgresStore opens a Postgres-backed store; an empty dsn falls back to a local
// default. Plan rows are locked with SELECT ... FOR UPDATE inside units of work.
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	if dsn == "" {
		dsn = defaultPostgresDSN
	}
	return openSQLStore(ctx, postgresDialect, dsn)
}

// Open picks the dialect by driver name: "sqlite" (default) or "postgres".
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	switch driver {
	case "", "sqlite", "sqlite3":
		if dsn == "" {
			dsn = "laborledger.db"
		}
		return NewSQLiteStore(dsn)
	case "postgres", "pgx":
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
