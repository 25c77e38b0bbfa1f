// Package ledger defines the shared order ledger: the domain types for a
// customer order and the port through which every terminal reads, watches,
// and mutates the authoritative remote record.
//
// The ledger is multi-writer (several terminals may work the same order), so
// the port deliberately exposes only narrow, field-scoped mutations: a single
// item counter, or the status+timeline pair on completion. Nothing here ever
// rewrites a whole order document.
package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an order or catalog item does not exist.
	ErrNotFound = errors.New("ledger: not found")

	// ErrAlreadyPacked is returned by CompleteOrder when the remote order has
	// already reached its terminal status.
	ErrAlreadyPacked = errors.New("ledger: order already packed")
)

// DeliveryStatus is the lifecycle state of an order.
type DeliveryStatus string

const (
	StatusPending DeliveryStatus = "PENDING"
	StatusPacked  DeliveryStatus = "PACKED"
	StatusShipped DeliveryStatus = "SHIPPED"
)

// LineItem is an immutable snapshot of a catalog item at order time.
// RackID and ImageRef are fallbacks for when the live catalog lookup has not
// resolved yet.
type LineItem struct {
	ItemID    string
	Title     string
	UnitPrice float64
	Quantity  int
	RackID    string
	ImageRef  string
}

// TimelineEntry is one append-only event in an order's delivery history.
type TimelineEntry struct {
	ID        string
	Status    DeliveryStatus
	Actor     string
	Note      string
	Timestamp time.Time
}

// Order is the unit of work. Items are fixed once the order is placed;
// Progress maps item id to the quantity verified so far and only carries
// keys for items with at least one verified unit.
type Order struct {
	ID           string
	CustomerName string
	Items        []LineItem
	Progress     map[string]int
	Status       DeliveryStatus
	Timeline     []TimelineEntry
	CreatedAt    time.Time
}

// Item returns the line item with the given id, if present.
func (o *Order) Item(itemID string) (LineItem, bool) {
	for _, it := range o.Items {
		if it.ItemID == itemID {
			return it, true
		}
	}
	return LineItem{}, false
}

// TotalQuantity is the number of physical units the order contains.
func (o *Order) TotalQuantity() int {
	total := 0
	for _, it := range o.Items {
		total += it.Quantity
	}
	return total
}

// CatalogEntry is live item metadata, read-only from the terminal's side.
type CatalogEntry struct {
	ItemID   string
	Title    string
	RackID   string
	ImageRef string
	Variant  string
}

// Unsubscribe tears down a subscription. Safe to call more than once.
type Unsubscribe func()

// Store is the port to the remote ledger. Implementations must keep writes
// field-scoped so that terminals confirming different items on the same
// order never clobber each other.
type Store interface {
	// GetOrder fetches the current order document.
	// Returns ErrNotFound when no order has that id.
	GetOrder(ctx context.Context, id string) (*Order, error)

	// FindOrdersByCustomerName returns orders whose customer name matches
	// exactly. Used only as a resolution fallback for typed input.
	FindOrdersByCustomerName(ctx context.Context, name string) ([]*Order, error)

	// SubscribeOrder registers onChange to be invoked with a fresh snapshot
	// whenever the order document changes, until the returned Unsubscribe is
	// called. Callbacks for one subscription are delivered sequentially.
	SubscribeOrder(ctx context.Context, id string, onChange func(*Order)) (Unsubscribe, error)

	// UpdateProgress writes the absolute verified quantity for one item.
	// It touches only that item's counter field.
	UpdateProgress(ctx context.Context, orderID, itemID string, quantity int) error

	// CompleteOrder atomically sets the terminal status and appends the given
	// timeline entry. It must refuse with ErrAlreadyPacked if the order has
	// already been completed elsewhere.
	CompleteOrder(ctx context.Context, orderID string, entry TimelineEntry) error

	// GetCatalogItem fetches live metadata for one item.
	// Returns ErrNotFound for unknown ids.
	GetCatalogItem(ctx context.Context, itemID string) (*CatalogEntry, error)
}
