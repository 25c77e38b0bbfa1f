package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/avelez/packstation/internal/ledger"
)

func TestCompletion(t *testing.T) {
	items := []ledger.LineItem{
		{ItemID: "A", Quantity: 3},
		{ItemID: "B", Quantity: 1},
	}

	tests := []struct {
		name     string
		progress map[string]int
		want     int
	}{
		{"nothing verified", nil, 0},
		{"one of four", map[string]int{"A": 1}, 25},
		{"half", map[string]int{"A": 2}, 50},
		{"three of four", map[string]int{"A": 3}, 75},
		{"complete", map[string]int{"A": 3, "B": 1}, 100},
		{"over-reported remote value is capped", map[string]int{"A": 9, "B": 1}, 100},
		{"unknown ids ignored", map[string]int{"Z": 5}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Completion(items, tc.progress))
		})
	}
}

// A nearly finished order must never report 100: the packed bar and the
// completion gate have to agree, however close the count gets.
func TestCompletionStaysBelowHundredUntilDone(t *testing.T) {
	items := []ledger.LineItem{{ItemID: "A", Quantity: 200}}

	assert.Equal(t, 99, Completion(items, map[string]int{"A": 199}))
	assert.False(t, CanComplete(items, map[string]int{"A": 199}))

	assert.Equal(t, 99, Completion(items, map[string]int{"A": 198}))
	assert.Equal(t, 100, Completion(items, map[string]int{"A": 200}))
	assert.True(t, CanComplete(items, map[string]int{"A": 200}))
}

func TestCompletionZeroQuantityOrder(t *testing.T) {
	assert.Equal(t, 0, Completion(nil, nil))
	assert.Equal(t, 0, Completion([]ledger.LineItem{{ItemID: "A", Quantity: 0}}, nil))
}

func TestCanComplete(t *testing.T) {
	items := []ledger.LineItem{
		{ItemID: "A", Quantity: 2},
		{ItemID: "B", Quantity: 1},
	}
	assert.False(t, CanComplete(items, map[string]int{"A": 2}))
	assert.True(t, CanComplete(items, map[string]int{"A": 2, "B": 1}))
	assert.True(t, CanComplete(items, map[string]int{"A": 5, "B": 1}), "over-count still satisfies the gate")
	assert.True(t, CanComplete(nil, nil))
}
