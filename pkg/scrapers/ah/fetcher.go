// Package ah fetches Albert Heijn products. Full and daily runs read product pages; weekly runs walk
// the mobile API, which reports prices directly.
package ah

import (
	"context"
	"fmt"
	"log"
	"time"

	"shelf-sync/pkg/models"
	"shelf-sync/pkg/source"
)

var DefaultCategoryURLs = []string{
	BaseURL + "/producten/aardappel-groente-fruit",
	BaseURL + "/producten/vlees-kip-vis-vega",
	BaseURL + "/producten/kaas-vleeswaren-tapas",
	BaseURL + "/producten/zuivel-plantaardig-en-eieren",
	BaseURL + "/producten/bakkerij-en-banket",
	BaseURL + "/producten/ontbijtgranen-en-beleg",
	BaseURL + "/producten/frisdrank-sappen-koffie-thee",
	BaseURL + "/producten/pasta-rijst-en-wereldkeuken",
	BaseURL + "/producten/soepen-sauzen-kruiden-olie",
	BaseURL + "/producten/snoep-koek-chips-en-chocolade",
	BaseURL + "/producten/diepvries",
}

type Fetcher struct {
	Pages        *PageScraper
	API          *APIClient
	CategoryURLs []string
	MaxPages     int
	Workers      int
	Now          func() time.Time
}

func NewFetcher(pages *PageScraper, api *APIClient) *Fetcher {
	return &Fetcher{
		Pages:        pages,
		API:          api,
		CategoryURLs: DefaultCategoryURLs,
		Workers:      4,
		Now:          time.Now,
	}
}

func (f *Fetcher) Name() string { return Source }

// Key is the webshop id: page URLs carry a slug that the API does not know.
func (f *Fetcher) Key() models.IdentityKey { return models.KeySKU }

func (f *Fetcher) Fetch(ctx context.Context, cadence models.Cadence, known []models.CatalogRecord) ([]source.RawProduct, error) {
	switch cadence {
	case models.CadenceWeekly:
		return f.API.Products(ctx)
	case models.CadenceDaily:
		return f.scrapeAll(ctx, source.URLs(known))
	case models.CadenceFull:
		urls, err := f.Pages.Discover(ctx, f.CategoryURLs, f.MaxPages)
		if err != nil {
			return nil, err
		}
		return f.scrapeAll(ctx, urls)
	default:
		return nil, fmt.Errorf("ah: unsupported cadence %q", cadence)
	}
}

func (f *Fetcher) scrapeAll(ctx context.Context, urls []string) ([]source.RawProduct, error) {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}

	bonus, err := f.Pages.BonusPeriod(ctx, now())
	if err != nil {
		log.Printf("[AH] No bonus period, promotions stay undated: %v", err)
	}

	products, err := source.Collect(ctx, "AH", urls, f.Workers, f.Pages.Scrape)
	if err != nil {
		return nil, err
	}
	if bonus != nil {
		for i := range products {
			products[i].ValidFrom = &bonus.From
			products[i].ValidTo = &bonus.To
		}
	}
	return products, nil
}
