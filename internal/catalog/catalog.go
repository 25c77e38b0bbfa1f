// Package catalog provides a read-through cache of live item metadata.
//
// The cache fills lazily as item ids appear in loaded orders. A fetch failure
// for one id never blocks the others: the order line item carries its own
// snapshot (title, image, rack) for the UI to fall back on, so a catalog
// miss degrades presentation, never packing.
package catalog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/avelez/packstation/internal/ledger"
)

// Source is the lookup the cache reads through to. Satisfied by ledger.Store.
type Source interface {
	GetCatalogItem(ctx context.Context, itemID string) (*ledger.CatalogEntry, error)
}

type Cache struct {
	source Source

	mu      sync.RWMutex
	entries map[string]ledger.CatalogEntry
}

func NewCache(source Source) *Cache {
	return &Cache{
		source:  source,
		entries: make(map[string]ledger.CatalogEntry),
	}
}

// Lookup returns the cached entry for an item id, if already resolved.
func (c *Cache) Lookup(itemID string) (ledger.CatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[itemID]
	return e, ok
}

// Ensure fetches and memoizes every id not yet present in the cache.
// Idempotent: ids already cached are skipped. Each id is fetched
// independently so partial success is the norm — a miss or error on one id
// is logged and does not stop the rest.
func (c *Cache) Ensure(ctx context.Context, itemIDs []string) {
	for _, id := range itemIDs {
		if id == "" {
			continue
		}
		c.mu.RLock()
		_, cached := c.entries[id]
		c.mu.RUnlock()
		if cached {
			continue
		}

		entry, err := c.source.GetCatalogItem(ctx, id)
		if err != nil {
			slog.WarnContext(ctx, "catalog lookup failed, falling back to order snapshot",
				"item_id", id, "error", err)
			continue
		}

		c.mu.Lock()
		// Another Ensure may have raced us here; last fetch wins, the entry
		// content is the same either way.
		c.entries[id] = *entry
		c.mu.Unlock()
	}
}
