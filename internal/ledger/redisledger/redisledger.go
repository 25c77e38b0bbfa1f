// Package redisledger is the Redis-backed implementation of ledger.Store.
//
// Each order is a single hash at "order:<id>". Scalar fields (customer name,
// status, the immutable items blob) live next to one hash field per verified
// item counter ("progress:<itemID>"), so a progress write is an HSET on
// exactly one field — two terminals confirming different items on the same
// order touch disjoint fields and never clobber each other. The delivery
// timeline is an append-only list at "order:<id>:timeline".
//
// Change notification uses pub/sub on "order.updates.<id>". Messages carry no
// payload authority: a subscriber treats them as a wake-up and re-reads the
// hash, which stays the single source of truth.
package redisledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avelez/packstation/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

const (
	fieldCustomer  = "customer_name"
	fieldStatus    = "status"
	fieldItems     = "items"
	fieldCreatedAt = "created_at"

	progressPrefix = "progress:"
)

type Store struct {
	client *redis.Client
}

// New connects to the Redis instance at addr.
func New(addr string) *Store {
	return &Store{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func orderKey(id string) string    { return "order:" + id }
func timelineKey(id string) string { return "order:" + id + ":timeline" }
func nameKey(name string) string   { return "orders:by-name:" + strings.ToLower(name) }
func catalogKey(id string) string  { return "catalog:" + id }
func channel(id string) string     { return "order.updates." + id }

// lineItemDoc is the JSON shape of one element of the items blob.
// Items are fixed once the order is placed, so the whole sequence is stored
// as a single field; only the per-item counters need field granularity.
type lineItemDoc struct {
	ItemID    string  `json:"item_id"`
	Title     string  `json:"title"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	RackID    string  `json:"rack_id,omitempty"`
	ImageRef  string  `json:"image_ref,omitempty"`
}

type timelineDoc struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Actor     string `json:"actor"`
	Note      string `json:"note,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (s *Store) GetOrder(ctx context.Context, id string) (*ledger.Order, error) {
	fields, err := s.client.HGetAll(ctx, orderKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisledger: get order %q: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ledger.ErrNotFound
	}

	entries, err := s.client.LRange(ctx, timelineKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisledger: get timeline %q: %w", id, err)
	}

	return decodeOrder(id, fields, entries)
}

func (s *Store) FindOrdersByCustomerName(ctx context.Context, name string) ([]*ledger.Order, error) {
	ids, err := s.client.SMembers(ctx, nameKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisledger: lookup by name %q: %w", name, err)
	}

	orders := make([]*ledger.Order, 0, len(ids))
	for _, id := range ids {
		o, err := s.GetOrder(ctx, id)
		if errors.Is(err, ledger.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (s *Store) SubscribeOrder(ctx context.Context, id string, onChange func(*ledger.Order)) (ledger.Unsubscribe, error) {
	sub := s.client.Subscribe(ctx, channel(id))
	// Force the SUBSCRIBE round-trip so a broken connection surfaces here,
	// not silently inside the receive loop.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redisledger: subscribe order %q: %w", id, err)
	}

	done := make(chan struct{})
	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				o, err := s.GetOrder(ctx, id)
				if err != nil {
					slog.WarnContext(ctx, "order refresh after update notification failed",
						"order_id", id, "error", err)
					continue
				}
				onChange(o)
			}
		}
	}()

	unsub := func() {
		select {
		case <-done:
		default:
			close(done)
		}
		_ = sub.Close()
	}
	return unsub, nil
}

func (s *Store) UpdateProgress(ctx context.Context, orderID, itemID string, quantity int) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, orderKey(orderID), progressPrefix+itemID, quantity)
	pipe.Publish(ctx, channel(orderID), itemID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisledger: update progress %s/%s: %w", orderID, itemID, err)
	}
	return nil
}

func (s *Store) CompleteOrder(ctx context.Context, orderID string, entry ledger.TimelineEntry) error {
	key := orderKey(orderID)

	// Optimistic check-and-set on the status field: WATCH the hash, verify the
	// order is still open, then commit status + timeline + notification as one
	// transaction. A concurrent completion aborts the EXEC and we report it.
	txn := func(tx *redis.Tx) error {
		status, err := tx.HGet(ctx, key, fieldStatus).Result()
		if err == redis.Nil {
			return ledger.ErrNotFound
		}
		if err != nil {
			return err
		}
		if ledger.DeliveryStatus(status) == ledger.StatusPacked {
			return ledger.ErrAlreadyPacked
		}

		raw, err := json.Marshal(timelineDoc{
			ID:        entry.ID,
			Status:    string(entry.Status),
			Actor:     entry.Actor,
			Note:      entry.Note,
			Timestamp: entry.Timestamp.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldStatus, string(ledger.StatusPacked))
			pipe.RPush(ctx, timelineKey(orderID), raw)
			pipe.Publish(ctx, channel(orderID), "status")
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Someone else wrote the order between WATCH and EXEC; by far the most
		// likely writer is another terminal completing it.
		return ledger.ErrAlreadyPacked
	}
	if errors.Is(err, ledger.ErrNotFound) || errors.Is(err, ledger.ErrAlreadyPacked) {
		return err
	}
	if err != nil {
		return fmt.Errorf("redisledger: complete order %q: %w", orderID, err)
	}
	return nil
}

func (s *Store) GetCatalogItem(ctx context.Context, itemID string) (*ledger.CatalogEntry, error) {
	fields, err := s.client.HGetAll(ctx, catalogKey(itemID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisledger: get catalog item %q: %w", itemID, err)
	}
	if len(fields) == 0 {
		return nil, ledger.ErrNotFound
	}
	return &ledger.CatalogEntry{
		ItemID:   itemID,
		Title:    fields["title"],
		RackID:   fields["rack_id"],
		ImageRef: fields["image_ref"],
		Variant:  fields["variant"],
	}, nil
}

// PutOrder writes a full order document. Not part of the ledger.Store port —
// orders are created by the storefront checkout flow — but needed by fixtures
// and the seeding tool.
func (s *Store) PutOrder(ctx context.Context, o *ledger.Order) error {
	items := make([]lineItemDoc, len(o.Items))
	for i, it := range o.Items {
		items[i] = lineItemDoc{
			ItemID:    it.ItemID,
			Title:     it.Title,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			RackID:    it.RackID,
			ImageRef:  it.ImageRef,
		}
	}
	blob, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("redisledger: marshal items for %q: %w", o.ID, err)
	}

	status := o.Status
	if status == "" {
		status = ledger.StatusPending
	}

	fields := map[string]any{
		fieldCustomer:  o.CustomerName,
		fieldStatus:    string(status),
		fieldItems:     string(blob),
		fieldCreatedAt: o.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	for itemID, qty := range o.Progress {
		fields[progressPrefix+itemID] = qty
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, orderKey(o.ID), fields)
	if o.CustomerName != "" {
		pipe.SAdd(ctx, nameKey(o.CustomerName), o.ID)
	}
	pipe.Publish(ctx, channel(o.ID), "document")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisledger: put order %q: %w", o.ID, err)
	}
	return nil
}

// PutCatalogItem writes a catalog entry. Fixture/seeding helper, same caveat
// as PutOrder.
func (s *Store) PutCatalogItem(ctx context.Context, e ledger.CatalogEntry) error {
	err := s.client.HSet(ctx, catalogKey(e.ItemID), map[string]any{
		"title":     e.Title,
		"rack_id":   e.RackID,
		"image_ref": e.ImageRef,
		"variant":   e.Variant,
	}).Err()
	if err != nil {
		return fmt.Errorf("redisledger: put catalog item %q: %w", e.ItemID, err)
	}
	return nil
}

// decodeOrder rebuilds a ledger.Order from its hash fields and timeline rows.
func decodeOrder(id string, fields map[string]string, timeline []string) (*ledger.Order, error) {
	o := &ledger.Order{
		ID:           id,
		CustomerName: fields[fieldCustomer],
		Status:       ledger.DeliveryStatus(fields[fieldStatus]),
		Progress:     make(map[string]int),
	}

	if raw := fields[fieldItems]; raw != "" {
		var docs []lineItemDoc
		if err := json.Unmarshal([]byte(raw), &docs); err != nil {
			return nil, fmt.Errorf("redisledger: decode items for %q: %w", id, err)
		}
		o.Items = make([]ledger.LineItem, len(docs))
		for i, d := range docs {
			o.Items[i] = ledger.LineItem{
				ItemID:    d.ItemID,
				Title:     d.Title,
				UnitPrice: d.UnitPrice,
				Quantity:  d.Quantity,
				RackID:    d.RackID,
				ImageRef:  d.ImageRef,
			}
		}
	}

	if raw := fields[fieldCreatedAt]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("redisledger: decode created_at for %q: %w", id, err)
		}
		o.CreatedAt = t
	}

	for field, value := range fields {
		itemID, ok := strings.CutPrefix(field, progressPrefix)
		if !ok {
			continue
		}
		qty, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("redisledger: decode progress %s/%s: %w", id, itemID, err)
		}
		o.Progress[itemID] = qty
	}

	for _, raw := range timeline {
		var d timelineDoc
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("redisledger: decode timeline for %q: %w", id, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, d.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("redisledger: decode timeline timestamp for %q: %w", id, err)
		}
		o.Timeline = append(o.Timeline, ledger.TimelineEntry{
			ID:        d.ID,
			Status:    ledger.DeliveryStatus(d.Status),
			Actor:     d.Actor,
			Note:      d.Note,
			Timestamp: ts,
		})
	}

	return o, nil
}
