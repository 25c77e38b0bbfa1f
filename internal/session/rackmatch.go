package session

// rackMatchesLocked returns the ids of the active order's items shelved on
// the given rack. Live catalog metadata wins over the order-time snapshot
// when both carry a shelf location. Purely derived state, re-evaluated on
// every rack scan and never persisted. Caller holds m.mu.
func (m *Manager) rackMatchesLocked(rackID string) []string {
	var matched []string
	for _, it := range m.active.order.Items {
		rack := it.RackID
		if entry, ok := m.catalog.Lookup(it.ItemID); ok && entry.RackID != "" {
			rack = entry.RackID
		}
		if rack != "" && rack == rackID {
			matched = append(matched, it.ItemID)
		}
	}
	return matched
}
