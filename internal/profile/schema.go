package profile

import (
	"context"
	"database/sql"
	"fmt"

	// Register the pure-Go SQLite driver (no CGO required).
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver used for the profile database.
const DriverName = "sqlite"

// DSN returns the connection string for the profile database at path. WAL
// mode and a long busy timeout let many workers read the same file while one
// of them writes.
func DSN(path string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)&_pragma=synchronous(NORMAL)",
		path,
	)
}

// Open opens the profile database at path with the package DSN.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		name  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cookies (
		host      TEXT NOT NULL,
		name      TEXT NOT NULL,
		value     TEXT NOT NULL,
		path      TEXT NOT NULL DEFAULT '/',
		secure    INTEGER NOT NULL DEFAULT 0,
		http_only INTEGER NOT NULL DEFAULT 0,
		expires   INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (host, name, path)
	)`,
}

// createSchema creates every profile table inside a single transaction.
func createSchema(ctx context.Context, db *sql.DB) (retErr error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
