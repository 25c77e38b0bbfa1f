package redisledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelez/packstation/internal/ledger"
)

func TestDecodeOrder(t *testing.T) {
	fields := map[string]string{
		fieldCustomer:      "Ana Reyes",
		fieldStatus:        "PENDING",
		fieldCreatedAt:     "2026-03-14T09:30:00Z",
		fieldItems:         `[{"item_id":"BK-0091","title":"Field Guide","unit_price":12.5,"quantity":3,"rack_id":"RACK-1"},{"item_id":"BK-0204","title":"Atlas","unit_price":40,"quantity":1}]`,
		"progress:BK-0091": "2",
	}
	timeline := []string{
		`{"id":"t1","status":"PACKED","actor":"desk-1","note":"verified via packing session","timestamp":"2026-03-14T10:02:00Z"}`,
	}

	o, err := decodeOrder("7F3A", fields, timeline)
	require.NoError(t, err)

	assert.Equal(t, "7F3A", o.ID)
	assert.Equal(t, "Ana Reyes", o.CustomerName)
	assert.Equal(t, ledger.StatusPending, o.Status)
	assert.Equal(t, time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC), o.CreatedAt)

	require.Len(t, o.Items, 2)
	assert.Equal(t, "BK-0091", o.Items[0].ItemID)
	assert.Equal(t, 3, o.Items[0].Quantity)
	assert.Equal(t, "RACK-1", o.Items[0].RackID)

	assert.Equal(t, map[string]int{"BK-0091": 2}, o.Progress)

	require.Len(t, o.Timeline, 1)
	assert.Equal(t, ledger.StatusPacked, o.Timeline[0].Status)
	assert.Equal(t, "desk-1", o.Timeline[0].Actor)
}

func TestDecodeOrderEmptyProgress(t *testing.T) {
	o, err := decodeOrder("11", map[string]string{fieldStatus: "PENDING"}, nil)
	require.NoError(t, err)
	assert.Empty(t, o.Progress)
	assert.Empty(t, o.Items)
}

func TestDecodeOrderBadProgressValue(t *testing.T) {
	_, err := decodeOrder("11", map[string]string{
		fieldStatus:    "PENDING",
		"progress:BK1": "two",
	}, nil)
	assert.Error(t, err)
}
