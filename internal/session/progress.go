package session

import "github.com/avelez/packstation/internal/ledger"

// Completion computes the aggregate verified percentage for an order:
// sum(min(progress[i], quantity[i])) over sum(quantity[i]), rounded down to
// an integer. Rounding down keeps 100 exact: it is reported only when every
// single unit is verified, matching the completion gate. An order with zero
// total quantity is 0%.
func Completion(items []ledger.LineItem, progress map[string]int) int {
	total := 0
	done := 0
	for _, it := range items {
		total += it.Quantity
		v := progress[it.ItemID]
		if v > it.Quantity {
			v = it.Quantity
		}
		done += v
	}
	if total == 0 {
		return 0
	}
	return 100 * done / total
}

// CanComplete reports whether every item is fully verified.
func CanComplete(items []ledger.LineItem, progress map[string]int) bool {
	for _, it := range items {
		if progress[it.ItemID] < it.Quantity {
			return false
		}
	}
	return true
}

// deriveState maps verified progress onto the session state machine.
func deriveState(items []ledger.LineItem, progress map[string]int) State {
	if CanComplete(items, progress) {
		return StateReady
	}
	return StatePacking
}

// completionLocked is Completion over the active session. Caller holds m.mu.
func completionLocked(a *active) int {
	return Completion(a.order.Items, a.verified)
}
