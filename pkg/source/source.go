// Package source is the boundary between the fetch layer and the sync core.
package source

import (
	"context"
	"time"

	"shelf-sync/pkg/models"
	"shelf-sync/pkg/promo"
)

// RawProduct is one product as a fetcher saw it. Either Tokens (page text in reading order) or Offer
// (prices reported by an API) carries the price information.
type RawProduct struct {
	URL      string       `json:"url,omitempty"`
	SKU      string       `json:"sku,omitempty"`
	Name     string       `json:"name"`
	Brand    string       `json:"brand,omitempty"`
	UnitText string       `json:"unit_text,omitempty"`
	Tokens   []string     `json:"tokens,omitempty"`
	Offer    *promo.Offer `json:"offer,omitempty"`
	// ValidFrom and ValidTo come from a validity label on the page when the price path has none.
	ValidFrom *time.Time `json:"valid_from,omitempty"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
}

func (p *RawProduct) Payload() promo.Payload {
	return promo.Payload{Name: p.Name, Tokens: p.Tokens, Offer: p.Offer}
}

// Fetcher retrieves the currently reachable products of one retailer. For CadenceDaily it re-fetches
// the known records; products that can no longer be fetched are left out of the result.
type Fetcher interface {
	Name() string
	Key() models.IdentityKey
	Fetch(ctx context.Context, cadence models.Cadence, known []models.CatalogRecord) ([]RawProduct, error)
}
