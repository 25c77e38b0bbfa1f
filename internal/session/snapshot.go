package session

import "github.com/avelez/packstation/internal/ledger"

// ItemView is one order line as the presentation layer renders it: the
// order-time snapshot overlaid with live catalog metadata where resolved.
type ItemView struct {
	ItemID      string `json:"item_id"`
	Title       string `json:"title"`
	Quantity    int    `json:"quantity"`
	Verified    int    `json:"verified"`
	RackID      string `json:"rack_id,omitempty"`
	ImageRef    string `json:"image_ref,omitempty"`
	Variant     string `json:"variant,omitempty"`
	MatchesRack bool   `json:"matches_rack"`
	Done        bool   `json:"done"`
}

// Snapshot is the read-only view of the session for rendering.
type Snapshot struct {
	State              State                 `json:"state"`
	OrderID            string                `json:"order_id,omitempty"`
	CustomerName       string                `json:"customer_name,omitempty"`
	Status             ledger.DeliveryStatus `json:"status,omitempty"`
	Items              []ItemView            `json:"items,omitempty"`
	Percent            int                   `json:"percent"`
	CurrentRack        string                `json:"current_rack,omitempty"`
	VerifiedRacks      []string              `json:"verified_racks,omitempty"`
	CanComplete        bool                  `json:"can_complete"`
	CompletedElsewhere bool                  `json:"completed_elsewhere"`
}

// Snapshot renders the current session state. Safe to call at any time; an
// idle terminal gets a zero snapshot with StateIdle.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return Snapshot{State: StateIdle}
	}

	a := m.active
	snap := Snapshot{
		State:              a.state,
		OrderID:            a.order.ID,
		CustomerName:       a.order.CustomerName,
		Status:             a.order.Status,
		Percent:            completionLocked(a),
		CurrentRack:        a.rack,
		CanComplete:        a.state == StateReady,
		CompletedElsewhere: a.completedElsewhere,
	}
	for rack := range a.racks {
		snap.VerifiedRacks = append(snap.VerifiedRacks, rack)
	}

	snap.Items = make([]ItemView, len(a.order.Items))
	for i, it := range a.order.Items {
		view := ItemView{
			ItemID:   it.ItemID,
			Title:    it.Title,
			Quantity: it.Quantity,
			Verified: a.verified[it.ItemID],
			RackID:   it.RackID,
			ImageRef: it.ImageRef,
		}
		// Live catalog data overrides the order-time snapshot once resolved;
		// until then the snapshot fields degrade gracefully.
		if entry, ok := m.catalog.Lookup(it.ItemID); ok {
			if entry.Title != "" {
				view.Title = entry.Title
			}
			if entry.RackID != "" {
				view.RackID = entry.RackID
			}
			if entry.ImageRef != "" {
				view.ImageRef = entry.ImageRef
			}
			view.Variant = entry.Variant
		}
		view.Done = view.Verified >= it.Quantity
		view.MatchesRack = a.rack != "" && view.RackID == a.rack
		snap.Items[i] = view
	}
	return snap
}
