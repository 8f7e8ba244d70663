package store

import (
	"context"
	"strings"
)

// sqliteParams enables foreign keys and WAL, and opens every transaction IMMEDIATE so
// a unit of work holds the write lock from its first read.
const sqliteParams = "_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000"

// NewSQLiteStore opens (or creates) the SQLite database at path and initializes the schema.
func NewSQLiteStore(path string) (*SQLStore, error) {
	dsn := "file:" + path
	if strings.Contains(dsn, "?") {
		dsn += "&" + sqliteParams
	} else {
		dsn += "?" + sqliteParams
	}
	return openSQLStore(context.Background(), sqliteDialect, dsn)
}
