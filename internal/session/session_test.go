package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelez/packstation/internal/catalog"
	"github.com/avelez/packstation/internal/ledger"
	"github.com/avelez/packstation/internal/ledger/memledger"
	"github.com/avelez/packstation/internal/packlog"
)

func twoItemOrder() *ledger.Order {
	return &ledger.Order{
		ID:           "7F3A",
		CustomerName: "Ana Reyes",
		Status:       ledger.StatusPending,
		CreatedAt:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Items: []ledger.LineItem{
			{ItemID: "A", Title: "Field Guide", Quantity: 3, RackID: "RACK-1"},
			{ItemID: "B", Title: "Atlas", Quantity: 1, RackID: "RACK-2"},
		},
	}
}

func newTestManager(t *testing.T) (*Manager, *memledger.Store) {
	t.Helper()
	store := memledger.New()
	store.PutOrder(twoItemOrder())
	m := NewManager(store, catalog.NewCache(store), nil, "desk-1")
	return m, store
}

func TestScanSequenceDrivesCompletion(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	res, err := m.HandleScan(ctx, "ORD-7F3A")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOrderOpened, res.Outcome)
	assert.Equal(t, 0, m.ProgressPercent())
	assert.False(t, m.CanComplete())

	wantPercent := []int{25, 50, 75}
	for i := 0; i < 3; i++ {
		res, err = m.HandleScan(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnitVerified, res.Outcome)
		assert.Equal(t, i+1, res.Quantity)
		assert.Equal(t, wantPercent[i], res.Percent)
		assert.True(t, res.Synced)
	}
	assert.False(t, m.CanComplete())

	res, err = m.HandleScan(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnitVerified, res.Outcome)
	assert.Equal(t, 100, res.Percent)
	assert.True(t, m.CanComplete())
}

func TestScanSaturatesAtOrderedQuantity(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	_, err := m.HandleScan(ctx, "ORD-7F3A")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = m.HandleScan(ctx, "A")
		require.NoError(t, err)
	}

	res, err := m.HandleScan(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyVerified, res.Outcome)
	assert.Equal(t, 3, res.Quantity, "fourth scan must not advance past the cap")

	o, err := store.GetOrder(ctx, "7F3A")
	require.NoError(t, err)
	assert.Equal(t, 3, o.Progress["A"], "ledger must hold the capped value")
}

// recordingLog captures appended activity rows for assertions.
type recordingLog struct {
	entries []*packlog.Entry
}

func (r *recordingLog) Append(_ context.Context, e *packlog.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func TestSaturatedScanLandsInActivityLog(t *testing.T) {
	store := memledger.New()
	store.PutOrder(twoItemOrder())
	rec := &recordingLog{}
	m := NewManager(store, catalog.NewCache(store), rec, "desk-1")
	ctx := context.Background()

	_, err := m.HandleScan(ctx, "ORD-7F3A")
	require.NoError(t, err)
	_, err = m.HandleScan(ctx, "B")
	require.NoError(t, err)

	res, err := m.HandleScan(ctx, "B")
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyVerified, res.Outcome)

	require.Len(t, rec.entries, 2)
	assert.Equal(t, packlog.EventUnitVerified, rec.entries[0].Event)

	over := rec.entries[1]
	assert.Equal(t, packlog.EventAlreadyVerified, over.Event)
	assert.Equal(t, "7F3A", over.OrderID)
	assert.Equal(t, "B", over.ItemID)
	assert.Equal(t, 1, over.Quantity, "row carries the capped count, not a phantom increment")
	assert.Equal(t, "desk-1", over.Actor)
}

func TestCompleteRefusedUntilFullyVerified(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	_, err := m.HandleScan(ctx, "ORD-7F3A")
	require.NoError(t, err)

	_, err = m.CompletePacking(ctx)
	assert.ErrorIs(t, err, ErrIncomplete)

	for _, code := range []string{"A", "A", "A", "B"} {
		_, err = m.HandleScan(ctx, code)
		require.NoError(t, err)
	}

	entry, err := m.CompletePacking(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPacked, entry.Status)
	assert.Equal(t, "desk-1", entry.Actor)
	assert.Equal(t, "verified via packing session", entry.Note)

	// The commit closed the session and advanced the ledger.
	assert.Equal(t, StateIdle, m.Snapshot().State)
	o, err := store.GetOrder(ctx, "7F3A")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPacked, o.Status)
	require.Len(t, o.Timeline, 1)
	assert.Equal(t, "verified via packing session", o.Timeline[0].Note)
}

func TestCompleteWithoutSession(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.CompletePacking(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestOrderRackForeignProductSequence(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	res, err := m.HandleScan(ctx, "ORD-7F3A")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOrderOpened, res.Outcome)

	// A rack no item references is recorded as context but flagged.
	res, err = m.HandleScan(ctx, "RACK-Z9")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRackNotNeeded, res.Outcome)
	assert.Equal(t, "RACK-Z9", m.Snapshot().CurrentRack)

	// A product not in the order is rejected with zero state change.
	before := m.Snapshot()
	res, err = m.HandleScan(ctx, "BK-9999")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotInOrder, res.Outcome)
	assert.Equal(t, before, m.Snapshot())
}

func TestRackScanMatchesItems(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.HandleScan(ctx, "ORD-7F3A")
	require.NoError(t, err)

	res, err := m.HandleScan(ctx, "rack-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRackNeeded, res.Outcome)
	assert.Equal(t, []string{"A"}, res.MatchedItemIDs)

	snap := m.Snapshot()
	assert.Equal(t, "RACK-1", snap.CurrentRack)
	assert.Contains(t, snap.VerifiedRacks, "RACK-1")
	assert.True(t, snap.Items[0].MatchesRack)
	assert.False(t, snap.Items[1].MatchesRack)
}

func TestOpenSeedsFromRemoteProgress(t *testing.T) {
	store := memledger.New()
	o := twoItemOrder()
	o.Progress = map[string]int{"A": 2}
	store.PutOrder(o)
	m := NewManager(store, catalog.NewCache(store), nil, "desk-1")

	res, err := m.OpenOrder(context.Background(), "7F3A")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOrderOpened, res.Outcome)
	assert.Equal(t, 50, m.ProgressPercent(), "session must start from true remote state, not zero")
}

func TestScansWithoutOpenOrder(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	res, err := m.HandleScan(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoSession, res.Outcome)

	res, err = m.HandleScan(ctx, "RACK-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoSession, res.Outcome)
}

func TestOrderNotFound(t *testing.T) {
	m, _ := newTestManager(t)
	res, err := m.HandleScan(context.Background(), "ORD-NOPE")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOrderNotFound, res.Outcome)
	assert.Equal(t, StateIdle, m.Snapshot().State)
}

func TestResolveRecentIndexCaseInsensitive(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.OpenOrder(ctx, "7F3A")
	require.NoError(t, err)
	m.Close()

	// Direct lookup misses the lowercase id; the recent index catches it.
	res, err := m.OpenOrder(ctx, "7f3a")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOrderOpened, res.Outcome)
	assert.Equal(t, "7F3A", m.Snapshot().OrderID)
}

func TestResolveCustomerNameFallback(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	res, err := m.OpenOrder(ctx, "Ana Reyes")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOrderOpened, res.Outcome)
	assert.Equal(t, "7F3A", m.Snapshot().OrderID)
}

func TestNameFallbackSkippedForShortTokens(t *testing.T) {
	store := memledger.New()
	o := twoItemOrder()
	o.ID = "X1"
	o.CustomerName = "Ana"
	store.PutOrder(o)
	m := NewManager(store, catalog.NewCache(store), nil, "desk-1")

	// "Ana" is at the threshold, not above it: no name query is attempted.
	res, err := m.OpenOrder(context.Background(), "Ana")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOrderNotFound, res.Outcome)
}

func TestOpeningSecondOrderReplacesSession(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	second := twoItemOrder()
	second.ID = "8B00"
	second.CustomerName = "Luis Ortiz"
	store.PutOrder(second)

	_, err := m.HandleScan(ctx, "ORD-7F3A")
	require.NoError(t, err)
	_, err = m.HandleScan(ctx, "A")
	require.NoError(t, err)

	_, err = m.HandleScan(ctx, "ORD-8B00")
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.Equal(t, "8B00", snap.OrderID)
	assert.Equal(t, 0, snap.Percent, "new session must not inherit the old one's progress")

	// Progress on the first order survived in the ledger.
	o, err := store.GetOrder(ctx, "7F3A")
	require.NoError(t, err)
	assert.Equal(t, 1, o.Progress["A"])
}

// failingStore lets UpdateProgress fail while everything else works.
type failingStore struct {
	*memledger.Store
	failProgress bool
}

func (f *failingStore) UpdateProgress(ctx context.Context, orderID, itemID string, qty int) error {
	if f.failProgress {
		return errors.New("ledger unreachable")
	}
	return f.Store.UpdateProgress(ctx, orderID, itemID, qty)
}

func TestProgressWriteFailureKeepsLocalCount(t *testing.T) {
	inner := memledger.New()
	inner.PutOrder(twoItemOrder())
	store := &failingStore{Store: inner, failProgress: true}
	m := NewManager(store, catalog.NewCache(inner), nil, "desk-1")
	ctx := context.Background()

	_, err := m.HandleScan(ctx, "ORD-7F3A")
	require.NoError(t, err)

	res, err := m.HandleScan(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnitVerified, res.Outcome)
	assert.False(t, res.Synced, "operator must be told the sync failed")
	assert.Equal(t, 1, res.Quantity, "local counter stands: the physical unit was verified")
	assert.Equal(t, 25, m.ProgressPercent())
}

// failingCompleteStore lets CompleteOrder fail while everything else works.
type failingCompleteStore struct {
	*memledger.Store
}

func (f *failingCompleteStore) CompleteOrder(ctx context.Context, orderID string, entry ledger.TimelineEntry) error {
	return errors.New("ledger unreachable")
}

func TestCompletionFailureLeavesSessionIntact(t *testing.T) {
	inner := memledger.New()
	inner.PutOrder(twoItemOrder())
	store := &failingCompleteStore{Store: inner}
	m := NewManager(store, catalog.NewCache(inner), nil, "desk-1")
	ctx := context.Background()

	_, err := m.HandleScan(ctx, "ORD-7F3A")
	require.NoError(t, err)
	for _, code := range []string{"A", "A", "A", "B"} {
		_, err = m.HandleScan(ctx, code)
		require.NoError(t, err)
	}

	_, err = m.CompletePacking(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIncomplete)

	// Completion must not be assumed: session stays open and ready for retry.
	snap := m.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.True(t, snap.CanComplete)
	assert.Equal(t, 100, snap.Percent)
}
