package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"keyrelay/internal/db"
	"keyrelay/internal/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS quarantine_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		key_index   INTEGER NOT NULL,
		masked      TEXT    NOT NULL,
		fingerprint TEXT    NOT NULL,
		reason      TEXT    NOT NULL DEFAULT '',
		at_unix_ns  INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_quarantine_events_fingerprint ON quarantine_events(fingerprint)`,
}

// connectFn opens the database; tests may replace it.
var connectFn = db.Connect

// SQLLedger stores events in SQLite or libSQL (Turso).
type SQLLedger struct {
	db *sql.DB
}

// OpenSQL connects to url (file:... or libsql://...) and creates the events table if needed.
func OpenSQL(ctx context.Context, url string) (*SQLLedger, error) {
	conn, err := connectFn(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("ledger sql: %w", err)
	}
	if err := db.Migrate(ctx, conn, schema...); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger sql: %w", err)
	}
	return &SQLLedger{db: conn}, nil
}

func (l *SQLLedger) Record(ctx context.Context, ev domain.QuarantineEvent) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO quarantine_events (key_index, masked, fingerprint, reason, at_unix_ns) VALUES (?, ?, ?, ?, ?)`,
		ev.Index, ev.Masked, ev.Fingerprint, ev.Reason, ev.At.UnixNano())
	if err != nil {
		return fmt.Errorf("ledger sql record: %w", err)
	}
	return nil
}

// List returns up to limit events, newest first. limit <= 0 returns all.
func (l *SQLLedger) List(ctx context.Context, limit int) ([]domain.QuarantineEvent, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT key_index, masked, fingerprint, reason, at_unix_ns FROM quarantine_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger sql list: %w", err)
	}
	defer rows.Close()

	var out []domain.QuarantineEvent
	for rows.Next() {
		var ev domain.QuarantineEvent
		var ns int64
		if err := rows.Scan(&ev.Index, &ev.Masked, &ev.Fingerprint, &ev.Reason, &ns); err != nil {
			return nil, fmt.Errorf("ledger sql scan: %w", err)
		}
		ev.At = time.Unix(0, ns).UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger sql list: %w", err)
	}
	return out, nil
}

func (l *SQLLedger) Close() error { return l.db.Close() }

var _ domain.QuarantineLedger = (*SQLLedger)(nil)
