package models

import "time"

type UnitType string

const (
	UnitKilogram UnitType = "kg"
	UnitLiter    UnitType = "l"
	UnitPiece    UnitType = "piece"
)

// IdentityKey names the field a source uses to match fresh products to persisted ones.
type IdentityKey string

const (
	KeyURL IdentityKey = "url"
	KeySKU IdentityKey = "sku"
)

func (k IdentityKey) Valid() bool {
	return k == KeyURL || k == KeySKU
}

// Cadence tells a fetcher how much of the assortment to fetch. Reconciliation is the same for all of them.
type Cadence string

const (
	CadenceFull   Cadence = "full"
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
)

func (c Cadence) Valid() bool {
	return c == CadenceFull || c == CadenceDaily || c == CadenceWeekly
}

// ProductSnapshot is one product as derived during a single refresh run.
type ProductSnapshot struct {
	Identity       string     `json:"identity"`
	Source         string     `json:"source"`
	URL            string     `json:"url,omitempty"`
	SKU            string     `json:"sku,omitempty"`
	Name           string     `json:"name,omitempty"`
	Brand          string     `json:"brand,omitempty"`
	UnitText       string     `json:"unit_text,omitempty"`
	UnitQty        *float64   `json:"unit_qty,omitempty"`
	UnitType       UnitType   `json:"unit_type,omitempty"`
	CurrentPrice   float64    `json:"current_price"`
	RegularPrice   *float64   `json:"regular_price,omitempty"`
	PromotionLabel string     `json:"promotion_label,omitempty"`
	ValidFrom      *time.Time `json:"valid_from,omitempty"`
	ValidTo        *time.Time `json:"valid_to,omitempty"`
	ScrapedAt      time.Time  `json:"scraped_at"`
}

func (s *ProductSnapshot) HasPromotion() bool {
	return s.PromotionLabel != ""
}

// IdentityFor returns the URL or SKU depending on key.
func (s *ProductSnapshot) IdentityFor(key IdentityKey) string {
	if key == KeySKU {
		return s.SKU
	}
	return s.URL
}
