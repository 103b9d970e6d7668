// Package sqlite opens the SQL store on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cyp0633/smartdate/storage/sqlstore"
)

// Open opens (creating if needed) the database file at path. WAL mode lets readers
// proceed while a write is in flight; a single connection serializes writers.
func Open(ctx context.Context, path string) (*sqlstore.Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	return sqlstore.New(db, sqlstore.SQLite), nil
}
