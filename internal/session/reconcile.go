package session

import (
	"context"
	"log/slog"

	"github.com/avelez/packstation/internal/ledger"
)

// applyRemote reconciles a freshly observed remote snapshot into local
// session state. It is the subscription callback registered on open.
//
// The merge rule is last-write-wins per item id: for every item present in
// the remote progress map whose quantity differs locally, the remote value
// is adopted — even when it is lower. This is deliberately not a
// maximum-of-both merge: two terminals confirming the same item concurrently
// race on the ledger field, and every terminal converges to whichever write
// landed last. The window can transiently under- or over-report that one
// item until the next update propagates; it is a known gap of the absolute-
// count write scheme, not a guarantee.
//
// Applying the same snapshot twice is a no-op.
func (m *Manager) applyRemote(remote *ledger.Order) {
	ctx := context.Background()

	m.mu.Lock()
	if m.active == nil || m.active.order.ID != remote.ID {
		// Stale callback from a session that has since been closed or
		// replaced. The unsubscribe raced the notification; drop it.
		m.mu.Unlock()
		return
	}

	changed := false
	for itemID, qty := range remote.Progress {
		if m.active.verified[itemID] != qty {
			m.active.verified[itemID] = qty
			changed = true
		}
	}

	if remote.Status == ledger.StatusPacked && !m.active.completedElsewhere && !packedBy(remote, m.actor) {
		// The order finished on another terminal while this session still had
		// it open. Surface the signal so the operator stops scanning; it is
		// informational, not an error.
		m.active.completedElsewhere = true
		changed = true
		slog.InfoContext(ctx, "order completed elsewhere", "order_id", remote.ID)
	}

	// Keep the session's view of the document current regardless: status and
	// timeline are owned by the ledger, never locally mutated.
	m.active.order.Status = remote.Status
	m.active.order.Timeline = remote.Timeline
	m.active.order.Progress = remote.Progress
	m.active.state = deriveState(m.active.order.Items, m.active.verified)

	var missing []string
	for _, it := range remote.Items {
		if _, ok := m.catalog.Lookup(it.ItemID); !ok {
			missing = append(missing, it.ItemID)
		}
	}
	m.mu.Unlock()

	// Covers a session opened before full item detail had loaded: any id the
	// catalog has not resolved yet is fetched now, off the callback path.
	if len(missing) > 0 {
		go m.catalog.Ensure(ctx, missing)
	}

	if changed {
		m.notify()
	}
}

// packedBy reports whether the packed transition in the remote timeline was
// committed by the given actor. Distinguishes this terminal's own completion
// notification from a genuinely foreign one.
func packedBy(o *ledger.Order, actor string) bool {
	for i := len(o.Timeline) - 1; i >= 0; i-- {
		if o.Timeline[i].Status == ledger.StatusPacked {
			return o.Timeline[i].Actor == actor
		}
	}
	return false
}
