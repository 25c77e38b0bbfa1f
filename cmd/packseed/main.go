// Command packseed loads order and catalog fixtures into the shared Redis
// ledger for local development: a stand-in for the storefront checkout flow,
// which owns order creation in production.
//
//	packseed -file fixtures.json [-redis localhost:6379]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/avelez/packstation/internal/ledger"
	"github.com/avelez/packstation/internal/ledger/redisledger"
)

type fixtureFile struct {
	Orders  []fixtureOrder        `json:"orders"`
	Catalog []fixtureCatalogEntry `json:"catalog"`
}

type fixtureOrder struct {
	ID           string        `json:"id"`
	CustomerName string        `json:"customer_name"`
	Items        []fixtureItem `json:"items"`
}

type fixtureItem struct {
	ItemID    string  `json:"item_id"`
	Title     string  `json:"title"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	RackID    string  `json:"rack_id"`
	ImageRef  string  `json:"image_ref"`
}

type fixtureCatalogEntry struct {
	ItemID   string `json:"item_id"`
	Title    string `json:"title"`
	RackID   string `json:"rack_id"`
	ImageRef string `json:"image_ref"`
	Variant  string `json:"variant"`
}

func main() {
	file := flag.String("file", "fixtures.json", "fixture file to load")
	redisAddr := flag.String("redis", "localhost:6379", "ledger Redis address")
	flag.Parse()

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("read fixtures: %v", err)
	}
	var fixtures fixtureFile
	if err := json.Unmarshal(raw, &fixtures); err != nil {
		log.Fatalf("parse fixtures: %v", err)
	}

	store := redisledger.New(*redisAddr)
	defer store.Close()
	ctx := context.Background()

	for _, f := range fixtures.Orders {
		items := make([]ledger.LineItem, len(f.Items))
		for i, it := range f.Items {
			items[i] = ledger.LineItem{
				ItemID:    it.ItemID,
				Title:     it.Title,
				UnitPrice: it.UnitPrice,
				Quantity:  it.Quantity,
				RackID:    it.RackID,
				ImageRef:  it.ImageRef,
			}
		}
		err := store.PutOrder(ctx, &ledger.Order{
			ID:           f.ID,
			CustomerName: f.CustomerName,
			Status:       ledger.StatusPending,
			Items:        items,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			log.Fatalf("seed order %s: %v", f.ID, err)
		}
		log.Printf("seeded order %s (%d items)", f.ID, len(items))
	}

	for _, c := range fixtures.Catalog {
		err := store.PutCatalogItem(ctx, ledger.CatalogEntry{
			ItemID:   c.ItemID,
			Title:    c.Title,
			RackID:   c.RackID,
			ImageRef: c.ImageRef,
			Variant:  c.Variant,
		})
		if err != nil {
			log.Fatalf("seed catalog item %s: %v", c.ItemID, err)
		}
	}
	log.Printf("seeded %d catalog entries", len(fixtures.Catalog))
}
