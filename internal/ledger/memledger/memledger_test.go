package memledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelez/packstation/internal/ledger"
)

func seeded() *Store {
	s := New()
	s.PutOrder(&ledger.Order{
		ID:           "11",
		CustomerName: "Ana Reyes",
		Status:       ledger.StatusPending,
		Items:        []ledger.LineItem{{ItemID: "A", Quantity: 2}},
	})
	return s
}

func TestGetOrderReturnsSnapshot(t *testing.T) {
	s := seeded()
	ctx := context.Background()

	a, err := s.GetOrder(ctx, "11")
	require.NoError(t, err)
	a.Progress["A"] = 99
	a.Items[0].Quantity = 99

	b, err := s.GetOrder(ctx, "11")
	require.NoError(t, err)
	assert.Empty(t, b.Progress, "caller mutations must not reach the store")
	assert.Equal(t, 2, b.Items[0].Quantity)
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	s := seeded()
	ctx := context.Background()

	var seen []int
	unsub, err := s.SubscribeOrder(ctx, "11", func(o *ledger.Order) {
		seen = append(seen, o.Progress["A"])
	})
	require.NoError(t, err)

	require.NoError(t, s.UpdateProgress(ctx, "11", "A", 1))
	require.NoError(t, s.UpdateProgress(ctx, "11", "A", 2))
	assert.Equal(t, []int{1, 2}, seen)

	unsub()
	unsub() // safe to call twice
	require.NoError(t, s.UpdateProgress(ctx, "11", "A", 1))
	assert.Equal(t, []int{1, 2}, seen)
}

func TestCompleteOrderOnce(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	entry := ledger.TimelineEntry{ID: "t1", Status: ledger.StatusPacked, Actor: "desk-1"}

	require.NoError(t, s.CompleteOrder(ctx, "11", entry))
	err := s.CompleteOrder(ctx, "11", entry)
	assert.ErrorIs(t, err, ledger.ErrAlreadyPacked)

	o, err := s.GetOrder(ctx, "11")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPacked, o.Status)
	assert.Len(t, o.Timeline, 1)
}

func TestFindOrdersByCustomerName(t *testing.T) {
	s := seeded()
	orders, err := s.FindOrdersByCustomerName(context.Background(), "ana reyes")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "11", orders[0].ID)

	orders, err = s.FindOrdersByCustomerName(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestErrNotFound(t *testing.T) {
	s := New()
	_, err := s.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	err = s.UpdateProgress(context.Background(), "missing", "A", 1)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = s.GetCatalogItem(context.Background(), "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
