// Package session implements the packing session engine: the local,
// per-terminal working state for the order currently being packed, kept
// reconciled against the shared remote ledger.
//
// Each terminal runs one logical session loop with two event sources —
// operator scans and push updates from the ledger subscription. Both funnel
// into the Manager and serialise on its mutex, so session state has a single
// writer per process even though the ledger itself is multi-writer across
// terminals.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avelez/packstation/internal/catalog"
	"github.com/avelez/packstation/internal/ledger"
	"github.com/avelez/packstation/internal/packlog"
	"github.com/avelez/packstation/internal/scan"
)

var (
	// ErrNoSession is returned when an operation needs an open order and none is.
	ErrNoSession = errors.New("session: no active order")

	// ErrIncomplete is returned by CompletePacking while any item is short.
	ErrIncomplete = errors.New("session: not every item is fully verified")

	// ErrCompletedElsewhere is returned when another terminal packed the
	// order first.
	ErrCompletedElsewhere = errors.New("session: order completed on another terminal")
)

// State is the explicit lifecycle of a terminal's session. The only legal
// edges are Idle→Packing (open), Packing→Ready (last unit verified),
// Ready→Packing (remote regression), Ready→Idle (commit) and *→Idle (close).
type State string

const (
	// StateIdle means no order is loaded.
	StateIdle State = "IDLE"
	// StatePacking means an order is loaded and at least one unit is missing.
	StatePacking State = "PACKING"
	// StateReady means every item is fully verified; the completion gate holds.
	StateReady State = "READY"
)

// minNameLookupLen is the token length the customer-name fallback requires;
// shorter tokens never trigger the expensive name query.
const minNameLookupLen = 3

// active is the transient per-terminal state for one loaded order.
type active struct {
	order    *ledger.Order
	verified map[string]int
	racks    map[string]struct{}
	rack     string // last-scanned rack, a guidance hint, never persisted
	state    State

	completedElsewhere bool
	unsub              ledger.Unsubscribe
}

// Manager owns the packing session lifecycle for one terminal.
type Manager struct {
	store   ledger.Store
	catalog *catalog.Cache
	actor   string
	log     packlog.Repository // nil-safe: activity logging skipped if nil

	mu       sync.Mutex
	active   *active
	recent   *recentIndex
	onChange func(Snapshot)
}

// NewManager builds a session manager for the given operator/terminal actor.
// plog may be nil — activity is then not persisted.
func NewManager(store ledger.Store, cat *catalog.Cache, plog packlog.Repository, actor string) *Manager {
	return &Manager{
		store:   store,
		catalog: cat,
		log:     plog,
		actor:   actor,
		recent:  newRecentIndex(32),
	}
}

// SetOnChange registers a callback invoked with a fresh snapshot after every
// observable state change. Used by the presentation layer for push rendering.
func (m *Manager) SetOnChange(fn func(Snapshot)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Outcome tags the result of one scan for the operator.
type Outcome string

const (
	OutcomeOrderOpened     Outcome = "ORDER_OPENED"
	OutcomeOrderNotFound   Outcome = "ORDER_NOT_FOUND"
	OutcomeRackNeeded      Outcome = "RACK_NEEDED"
	OutcomeRackNotNeeded   Outcome = "RACK_NOT_NEEDED"
	OutcomeUnitVerified    Outcome = "UNIT_VERIFIED"
	OutcomeAlreadyVerified Outcome = "ALREADY_FULLY_VERIFIED"
	OutcomeNotInOrder      Outcome = "ITEM_NOT_IN_ORDER"
	OutcomeNoSession       Outcome = "NO_ACTIVE_ORDER"
)

// ScanResult reports what one scan did.
type ScanResult struct {
	Outcome Outcome   `json:"outcome"`
	Kind    scan.Kind `json:"kind"`
	Value   string    `json:"value"`
	ItemID  string    `json:"item_id,omitempty"`
	// Quantity is the verified count for the item after the scan.
	Quantity int `json:"quantity,omitempty"`
	// Synced is false when the optimistic local increment could not be
	// persisted; the local count stands, the operator should expect a retry.
	Synced bool `json:"synced"`
	// MatchedItemIDs lists the items shelved on a just-scanned rack.
	MatchedItemIDs []string `json:"matched_item_ids,omitempty"`
	Percent        int      `json:"percent"`
}

// HandleScan classifies a raw scanned token and dispatches it: order tokens
// open a session, rack tokens update the rack context, product tokens
// confirm one physical unit.
func (m *Manager) HandleScan(ctx context.Context, raw string) (ScanResult, error) {
	tok := scan.Classify(raw)
	switch tok.Kind {
	case scan.KindOrder:
		return m.openResolved(ctx, tok)
	case scan.KindRack:
		return m.recordRack(ctx, tok), nil
	default:
		return m.confirmUnit(ctx, tok), nil
	}
}

// OpenOrder resolves a token (scanned or typed: an order barcode, a bare id,
// or a customer name) and installs the order as the active session.
func (m *Manager) OpenOrder(ctx context.Context, raw string) (ScanResult, error) {
	return m.openResolved(ctx, scan.Classify(raw))
}

// Close discards the local session state. The order itself is never mutated;
// an in-flight write, if any, will land in the ledger and be picked up by
// the next session that opens the same order.
func (m *Manager) Close() {
	m.mu.Lock()
	m.teardownLocked()
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) openResolved(ctx context.Context, tok scan.Token) (ScanResult, error) {
	res := ScanResult{Kind: tok.Kind, Value: tok.Value, Synced: true}

	order, err := m.resolve(ctx, tok.Value)
	if errors.Is(err, ledger.ErrNotFound) {
		res.Outcome = OutcomeOrderNotFound
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("session: resolve order %q: %w", tok.Value, err)
	}

	if err := m.open(ctx, order); err != nil {
		return res, err
	}

	slog.InfoContext(ctx, "order opened", "order_id", order.ID, "actor", m.actor,
		"items", len(order.Items), "status", string(order.Status))

	res.Outcome = OutcomeOrderOpened
	res.Value = order.ID
	res.Percent = m.ProgressPercent()
	m.notify()
	return res, nil
}

// resolve tries three stages in fixed order and short-circuits on the first
// hit: direct id lookup, the local recent-orders index (case-insensitive),
// then an exact customer-name query for tokens long enough to be a name.
func (m *Manager) resolve(ctx context.Context, token string) (*ledger.Order, error) {
	o, err := m.store.GetOrder(ctx, token)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}

	m.mu.Lock()
	cached, ok := m.recent.match(token)
	m.mu.Unlock()
	if ok {
		// Re-fetch so the session seeds from the true remote state, not from
		// whatever was current when the index last saw this order.
		return m.store.GetOrder(ctx, cached.ID)
	}

	if len(token) <= minNameLookupLen {
		return nil, ledger.ErrNotFound
	}
	matches, err := m.store.FindOrdersByCustomerName(ctx, token)
	if err != nil {
		return nil, err
	}
	if best := pickOpenOrder(matches); best != nil {
		return best, nil
	}
	return nil, ledger.ErrNotFound
}

// pickOpenOrder prefers the newest order still awaiting packing; a packed
// order is returned only when nothing open matches.
func pickOpenOrder(orders []*ledger.Order) *ledger.Order {
	var best *ledger.Order
	for _, o := range orders {
		if best == nil {
			best = o
			continue
		}
		bestOpen := best.Status != ledger.StatusPacked
		oOpen := o.Status != ledger.StatusPacked
		if oOpen != bestOpen {
			if oOpen {
				best = o
			}
			continue
		}
		if o.CreatedAt.After(best.CreatedAt) {
			best = o
		}
	}
	return best
}

// open installs the order as the active session: local progress is seeded
// from the order's current remote state (a partially-packed order must not
// restart from zero), the rack context is cleared, the ledger subscription
// is established, and catalog resolution kicks off in the background.
func (m *Manager) open(ctx context.Context, order *ledger.Order) error {
	verified := make(map[string]int, len(order.Progress))
	for itemID, qty := range order.Progress {
		verified[itemID] = qty
	}

	sess := &active{
		order:              order,
		verified:           verified,
		racks:              make(map[string]struct{}),
		completedElsewhere: order.Status == ledger.StatusPacked,
	}
	sess.state = deriveState(order.Items, verified)

	// The subscription must outlive the request that opened the order.
	subCtx := context.WithoutCancel(ctx)
	unsub, err := m.store.SubscribeOrder(subCtx, order.ID, m.applyRemote)
	if err != nil {
		return fmt.Errorf("session: subscribe order %q: %w", order.ID, err)
	}
	sess.unsub = unsub

	m.mu.Lock()
	m.teardownLocked()
	m.active = sess
	m.recent.add(order)
	m.mu.Unlock()

	// Fire-and-forget relative to scan handling: catalog misses degrade to
	// the line-item snapshot, so nothing waits on this.
	go m.catalog.Ensure(subCtx, itemIDs(order.Items))
	return nil
}

// recordRack stores the scanned rack as the current context and reports
// which of the order's items it holds. A rack no item references is "not
// needed for this order" but still recorded — the operator may be staging
// for an order not opened yet.
func (m *Manager) recordRack(ctx context.Context, tok scan.Token) ScanResult {
	res := ScanResult{Kind: tok.Kind, Value: tok.Value, Synced: true}

	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		res.Outcome = OutcomeNoSession
		return res
	}

	m.active.rack = tok.Value
	matched := m.rackMatchesLocked(tok.Value)
	if len(matched) > 0 {
		m.active.racks[tok.Value] = struct{}{}
		res.Outcome = OutcomeRackNeeded
		res.MatchedItemIDs = matched
	} else {
		res.Outcome = OutcomeRackNotNeeded
	}
	res.Percent = completionLocked(m.active)
	m.mu.Unlock()

	slog.InfoContext(ctx, "rack scanned", "rack", tok.Value, "matched_items", len(matched))
	m.notify()
	return res
}

// confirmUnit verifies one physical unit of a product against the active
// order: the local counter advances optimistically (saturating at the
// ordered quantity) and the new absolute count is persisted to the ledger as
// a field-scoped write. A failed write does not roll the counter back (the
// physical unit genuinely was verified); it is reported via Synced=false.
func (m *Manager) confirmUnit(ctx context.Context, tok scan.Token) ScanResult {
	res := ScanResult{Kind: tok.Kind, Value: tok.Value, Synced: true}

	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		res.Outcome = OutcomeNoSession
		return res
	}

	item, ok := m.active.order.Item(tok.Value)
	if !ok {
		res.Outcome = OutcomeNotInOrder
		res.Percent = completionLocked(m.active)
		m.mu.Unlock()
		return res
	}

	res.ItemID = item.ItemID
	current := m.active.verified[item.ItemID]
	if current >= item.Quantity {
		orderID := m.active.order.ID
		res.Outcome = OutcomeAlreadyVerified
		res.Quantity = current
		res.Percent = completionLocked(m.active)
		m.mu.Unlock()

		m.appendLog(ctx, packlog.NewEntry(ctx, orderID, item.ItemID, current, packlog.EventAlreadyVerified, m.actor))
		return res
	}

	current++
	m.active.verified[item.ItemID] = current
	m.active.state = deriveState(m.active.order.Items, m.active.verified)
	orderID := m.active.order.ID
	res.Outcome = OutcomeUnitVerified
	res.Quantity = current
	res.Percent = completionLocked(m.active)
	m.mu.Unlock()

	if err := m.store.UpdateProgress(ctx, orderID, item.ItemID, current); err != nil {
		// The unit is verified regardless; the ledger will catch up on the
		// operator's next successful scan or via another terminal.
		slog.ErrorContext(ctx, "progress sync failed, local count stands",
			"order_id", orderID, "item_id", item.ItemID, "quantity", current, "error", err)
		res.Synced = false
	}

	m.appendLog(ctx, packlog.NewEntry(ctx, orderID, item.ItemID, current, packlog.EventUnitVerified, m.actor))
	m.notify()
	return res
}

// CompletePacking commits the terminal transition: it refuses unless every
// item is fully verified, then sets the packed status and appends the
// timeline entry as one combined ledger update. Only on an acknowledged
// write is the local session closed; a failed commit leaves everything
// untouched so the operator can retry.
func (m *Manager) CompletePacking(ctx context.Context) (ledger.TimelineEntry, error) {
	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		return ledger.TimelineEntry{}, ErrNoSession
	}
	if m.active.state != StateReady {
		m.mu.Unlock()
		return ledger.TimelineEntry{}, ErrIncomplete
	}
	orderID := m.active.order.ID
	m.mu.Unlock()

	entry := ledger.TimelineEntry{
		ID:        uuid.NewString(),
		Status:    ledger.StatusPacked,
		Actor:     m.actor,
		Note:      "verified via packing session",
		Timestamp: time.Now().UTC(),
	}

	err := m.store.CompleteOrder(ctx, orderID, entry)
	if errors.Is(err, ledger.ErrAlreadyPacked) {
		m.mu.Lock()
		if m.active != nil && m.active.order.ID == orderID {
			m.active.completedElsewhere = true
		}
		m.mu.Unlock()
		m.notify()
		return ledger.TimelineEntry{}, fmt.Errorf("%w: %s", ErrCompletedElsewhere, orderID)
	}
	if err != nil {
		return ledger.TimelineEntry{}, fmt.Errorf("session: complete order %q: %w", orderID, err)
	}

	slog.InfoContext(ctx, "order packed", "order_id", orderID, "actor", m.actor)
	m.appendLog(ctx, packlog.NewEntry(ctx, orderID, "", 0, packlog.EventOrderPacked, m.actor))

	m.mu.Lock()
	if m.active != nil && m.active.order.ID == orderID {
		m.teardownLocked()
	}
	m.mu.Unlock()
	m.notify()
	return entry, nil
}

// CanComplete reports whether the completion gate holds.
func (m *Manager) CanComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil && m.active.state == StateReady
}

// ProgressPercent is the aggregate completion percentage of the active
// order, 0 when no order is open.
func (m *Manager) ProgressPercent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return 0
	}
	return completionLocked(m.active)
}

// teardownLocked discards the active session. Caller holds m.mu.
func (m *Manager) teardownLocked() {
	if m.active == nil {
		return
	}
	if m.active.unsub != nil {
		m.active.unsub()
	}
	m.active = nil
}

// appendLog persists an activity row, best-effort.
func (m *Manager) appendLog(ctx context.Context, e *packlog.Entry) {
	if m.log == nil {
		return
	}
	if err := m.log.Append(ctx, e); err != nil {
		slog.WarnContext(ctx, "pack log append failed", "order_id", e.OrderID, "error", err)
	}
}

// notify pushes a fresh snapshot to the registered listener, outside the lock.
func (m *Manager) notify() {
	m.mu.Lock()
	fn := m.onChange
	m.mu.Unlock()
	if fn == nil {
		return
	}
	fn(m.Snapshot())
}

func itemIDs(items []ledger.LineItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ItemID
	}
	return ids
}
