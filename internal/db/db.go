package db

import (
	"context"
	"database/sql"
	"fmt"

	// Registers "libsql" with database/sql for libsql://, https:// and wss:// URLs.
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	// Pure-Go SQLite driver; libsql-client-go hands file: URLs to it.
	_ "modernc.org/sqlite"
)

// driverName is the database/sql driver to use; tests may replace it.
var driverName = "libsql"

// Connect opens a database and verifies it with a ping bounded by ctx.
//
// Supported URL schemes:
//
//	Local file:   "file:path/to/keyrelay.db"
//	Remote Turso: "libsql://[db-name].turso.io?authToken=[token]"
func Connect(ctx context.Context, dbURL string) (*sql.DB, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("database URL must not be empty")
	}

	conn, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return conn, nil
}

// Migrate runs each statement in order inside one transaction. Statements
// must be idempotent (CREATE ... IF NOT EXISTS) since Migrate runs on every open.
func Migrate(ctx context.Context, conn *sql.DB, statements ...string) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate begin: %w", err)
	}
	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate commit: %w", err)
	}
	return nil
}
