package session

import (
	"strings"

	"github.com/avelez/packstation/internal/ledger"
)

// recentIndex is a small per-terminal index of orders this terminal has
// resolved, used by resolution stage two for case-insensitive id matching.
// Bounded: the oldest entry is evicted once capacity is reached.
type recentIndex struct {
	capacity int
	ids      []string
	byID     map[string]*ledger.Order
}

func newRecentIndex(capacity int) *recentIndex {
	return &recentIndex{
		capacity: capacity,
		byID:     make(map[string]*ledger.Order),
	}
}

func (r *recentIndex) add(o *ledger.Order) {
	if _, ok := r.byID[o.ID]; !ok {
		r.ids = append(r.ids, o.ID)
		if len(r.ids) > r.capacity {
			evict := r.ids[0]
			r.ids = r.ids[1:]
			delete(r.byID, evict)
		}
	}
	r.byID[o.ID] = o
}

// match finds an order whose id equals the token ignoring case.
func (r *recentIndex) match(token string) (*ledger.Order, bool) {
	if o, ok := r.byID[token]; ok {
		return o, true
	}
	for id, o := range r.byID {
		if strings.EqualFold(id, token) {
			return o, true
		}
	}
	return nil, false
}
