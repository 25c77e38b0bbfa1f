// Package packlog defines the durable activity log for packing terminals.
//
// Every confirmed unit, every over-scan of a fully verified item, and every
// completion commit is appended as an immutable row. The log serves two purposes:
//
//  1. Audit: who verified what, on which order, and when — queryable after
//     the fact and joinable with business data via the order id.
//
//  2. Observability: each row carries the trace_id/span_id of the OTel span
//     that was active when it was written, so a row links directly to the
//     distributed trace for that scan.
//
// The log is best-effort from the session's point of view: a failed append
// is logged and never fails the scan that produced it.
package packlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// EventType is the kind of packing activity a row records.
type EventType string

const (
	// EventUnitVerified records one physical unit confirmed against an order.
	EventUnitVerified EventType = "UNIT_VERIFIED"

	// EventAlreadyVerified records a scan of an item whose ordered quantity
	// was already fully verified. The counter does not move; the row exists so
	// over-scans show up in the audit trail.
	EventAlreadyVerified EventType = "ALREADY_VERIFIED"

	// EventOrderPacked records the terminal completion commit.
	EventOrderPacked EventType = "ORDER_PACKED"
)

// Entry is a single row in the pack_log table.
type Entry struct {
	// ID is a per-row identifier, assigned at creation.
	ID string

	// OrderID joins the row with the order ledger.
	OrderID string

	// ItemID is the item the event concerns. Empty for ORDER_PACKED rows.
	ItemID string

	// Quantity is the verified count for the item after this event.
	Quantity int

	// Event is the activity kind.
	Event EventType

	// Actor is the operator/terminal that produced the event.
	Actor string

	// TraceID is the W3C trace ID (32 hex chars) of the active span, empty
	// when no span was recording (e.g. in unit tests).
	TraceID string

	// SpanID is the W3C span ID (16 hex chars) within that trace.
	SpanID string

	// OccurredAt is the wall-clock time of the event.
	OccurredAt time.Time
}

// Repository is the port for persisting log entries. The session engine
// depends on this abstraction, not on SQLite directly.
type Repository interface {
	// Append persists a new row. The table is append-only, never upserted.
	Append(ctx context.Context, entry *Entry) error
}

// NewEntry builds an Entry with trace identifiers extracted from the active
// OpenTelemetry span in ctx, if any.
func NewEntry(ctx context.Context, orderID, itemID string, quantity int, event EventType, actor string) *Entry {
	e := &Entry{
		ID:         uuid.NewString(),
		OrderID:    orderID,
		ItemID:     itemID,
		Quantity:   quantity,
		Event:      event,
		Actor:      actor,
		OccurredAt: time.Now().UTC(),
	}

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		e.TraceID = sc.TraceID().String()
		e.SpanID = sc.SpanID().String()
	}
	return e
}
