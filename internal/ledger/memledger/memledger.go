// Package memledger is an in-memory implementation of ledger.Store intended
// for local development and tests. It mirrors the field-scoped write and
// subscription semantics of the Redis adapter closely enough that the session
// engine cannot tell them apart.
package memledger

import (
	"context"
	"strings"
	"sync"

	"github.com/avelez/packstation/internal/ledger"
)

// Ensure the port is satisfied at compile time.
var _ ledger.Store = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	orders  map[string]*ledger.Order
	catalog map[string]ledger.CatalogEntry

	nextSub int
	subs    map[string]map[int]func(*ledger.Order)
}

func New() *Store {
	return &Store{
		orders:  make(map[string]*ledger.Order),
		catalog: make(map[string]ledger.CatalogEntry),
		subs:    make(map[string]map[int]func(*ledger.Order)),
	}
}

// PutOrder seeds or replaces an order document and notifies subscribers.
// Used by tests and by dev fixtures; production orders come from checkout.
func (s *Store) PutOrder(o *ledger.Order) {
	s.mu.Lock()
	s.orders[o.ID] = snapshot(o)
	s.mu.Unlock()
	s.notify(o.ID)
}

// PutCatalogItem seeds a catalog entry.
func (s *Store) PutCatalogItem(e ledger.CatalogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog[e.ItemID] = e
}

func (s *Store) GetOrder(ctx context.Context, id string) (*ledger.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return snapshot(o), nil
}

func (s *Store) FindOrdersByCustomerName(ctx context.Context, name string) ([]*ledger.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ledger.Order
	for _, o := range s.orders {
		if strings.EqualFold(o.CustomerName, name) {
			out = append(out, snapshot(o))
		}
	}
	return out, nil
}

func (s *Store) SubscribeOrder(ctx context.Context, id string, onChange func(*ledger.Order)) (ledger.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	subID := s.nextSub
	if s.subs[id] == nil {
		s.subs[id] = make(map[int]func(*ledger.Order))
	}
	s.subs[id][subID] = onChange

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[id], subID)
			s.mu.Unlock()
		})
	}
	return unsub, nil
}

func (s *Store) UpdateProgress(ctx context.Context, orderID, itemID string, quantity int) error {
	s.mu.Lock()
	o, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return ledger.ErrNotFound
	}
	if o.Progress == nil {
		o.Progress = make(map[string]int)
	}
	o.Progress[itemID] = quantity
	s.mu.Unlock()

	s.notify(orderID)
	return nil
}

func (s *Store) CompleteOrder(ctx context.Context, orderID string, entry ledger.TimelineEntry) error {
	s.mu.Lock()
	o, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return ledger.ErrNotFound
	}
	if o.Status == ledger.StatusPacked {
		s.mu.Unlock()
		return ledger.ErrAlreadyPacked
	}
	o.Status = ledger.StatusPacked
	o.Timeline = append(o.Timeline, entry)
	s.mu.Unlock()

	s.notify(orderID)
	return nil
}

func (s *Store) GetCatalogItem(ctx context.Context, itemID string) (*ledger.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.catalog[itemID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return &e, nil
}

// notify delivers a fresh snapshot to every subscriber of the order,
// synchronously, as the Redis adapter's pub/sub loop does per subscription.
func (s *Store) notify(orderID string) {
	s.mu.RLock()
	o, ok := s.orders[orderID]
	var callbacks []func(*ledger.Order)
	for _, cb := range s.subs[orderID] {
		callbacks = append(callbacks, cb)
	}
	var snap *ledger.Order
	if ok {
		snap = snapshot(o)
	}
	s.mu.RUnlock()

	if !ok {
		return
	}
	for _, cb := range callbacks {
		cb(snapshot(snap))
	}
}

// snapshot deep-copies an order so callers can never mutate shared state.
func snapshot(o *ledger.Order) *ledger.Order {
	cp := *o
	cp.Items = append([]ledger.LineItem(nil), o.Items...)
	cp.Timeline = append([]ledger.TimelineEntry(nil), o.Timeline...)
	cp.Progress = make(map[string]int, len(o.Progress))
	for k, v := range o.Progress {
		cp.Progress[k] = v
	}
	return &cp
}
