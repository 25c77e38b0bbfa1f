// Package sqlite provides a SQLite-backed implementation of
// packlog.Repository.
//
// WAL mode is enabled on Open so that readers never block writers and vice
// versa — the scan path appends while the activity endpoint may be reading.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avelez/packstation/internal/packlog"

	// Register the pure-Go SQLite driver. modernc.org/sqlite avoids CGO,
	// which keeps Alpine/Docker builds simple.
	_ "modernc.org/sqlite"
)

// schema is the DDL executed once on startup. The table is append-only:
// each row is an immutable packing event.
const schema = `
CREATE TABLE IF NOT EXISTS pack_log (
    id          TEXT    PRIMARY KEY,

    -- Business identifier: the order being packed.
    order_id    TEXT    NOT NULL,

    -- Item the event concerns; empty for completion rows.
    item_id     TEXT    NOT NULL DEFAULT '',

    -- Verified count for the item after this event.
    quantity    INTEGER NOT NULL DEFAULT 0,

    -- UNIT_VERIFIED, ALREADY_VERIFIED or ORDER_PACKED.
    event       TEXT    NOT NULL,

    -- Operator/terminal that produced the event.
    actor       TEXT    NOT NULL DEFAULT '',

    -- W3C trace/span ids from the active OTel span, for trace correlation.
    trace_id    TEXT    NOT NULL DEFAULT '',
    span_id     TEXT    NOT NULL DEFAULT '',

    -- RFC3339 stored as TEXT, SQLite idiom.
    occurred_at TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pack_log_order_id ON pack_log(order_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_pack_log_trace_id ON pack_log(trace_id);
`

// Repository is the SQLite implementation of packlog.Repository.
type Repository struct {
	db *sql.DB
}

var _ packlog.Repository = (*Repository)(nil)

// Open opens (or creates) the database at the given path and applies the
// schema.
func Open(path string) (*Repository, error) {
	// The pure-Go driver configures connection state via _pragma parameters.
	// WAL enables concurrent readers; busy_timeout waits for locks instead of
	// failing immediately.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close releases the database connection. Call it with defer in main().
func (r *Repository) Close() error {
	return r.db.Close()
}

// Append inserts a new log row. Safe to call concurrently.
func (r *Repository) Append(ctx context.Context, entry *packlog.Entry) error {
	const q = `
		INSERT INTO pack_log
			(id, order_id, item_id, quantity, event, actor, trace_id, span_id, occurred_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		entry.ID,
		entry.OrderID,
		entry.ItemID,
		entry.Quantity,
		string(entry.Event),
		entry.Actor,
		entry.TraceID,
		entry.SpanID,
		entry.OccurredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append pack log for %q: %w", entry.OrderID, err)
	}
	return nil
}

// ListByOrder returns every event recorded for an order, oldest first.
// Backs the activity endpoint.
func (r *Repository) ListByOrder(ctx context.Context, orderID string) ([]*packlog.Entry, error) {
	const q = `
		SELECT id, order_id, item_id, quantity, event, actor, trace_id, span_id, occurred_at
		FROM   pack_log
		WHERE  order_id = ?
		ORDER  BY occurred_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list pack log for %q: %w", orderID, err)
	}
	defer rows.Close()

	var out []*packlog.Entry
	for rows.Next() {
		var e packlog.Entry
		var occurredAt string
		if err := rows.Scan(&e.ID, &e.OrderID, &e.ItemID, &e.Quantity, &e.Event,
			&e.Actor, &e.TraceID, &e.SpanID, &occurredAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan pack log row: %w", err)
		}
		e.OccurredAt, err = parseRFC3339(occurredAt)
		if err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
