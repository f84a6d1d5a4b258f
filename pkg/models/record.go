package models

// CatalogRecord is the persisted counterpart of a snapshot. Prices come back from the store as
// floats, validity dates as the ISO strings the store returned them in.
type CatalogRecord struct {
	Identity       string   `json:"identity" csv:"identity"`
	Source         string   `json:"source" csv:"source"`
	URL            string   `json:"url,omitempty" csv:"url,omitempty"`
	SKU            string   `json:"sku,omitempty" csv:"sku,omitempty"`
	Name           string   `json:"name,omitempty" csv:"name,omitempty"`
	NameEN         string   `json:"name_en,omitempty" csv:"name_en,omitempty"`
	Brand          string   `json:"brand,omitempty" csv:"brand,omitempty"`
	UnitText       string   `json:"unit_text,omitempty" csv:"unit_text,omitempty"`
	UnitQty        *float64 `json:"unit_qty,omitempty" csv:"unit_qty,omitempty"`
	UnitType       UnitType `json:"unit_type,omitempty" csv:"unit_type,omitempty"`
	CurrentPrice   *float64 `json:"current_price" csv:"current_price,omitempty"`
	RegularPrice   *float64 `json:"regular_price,omitempty" csv:"regular_price,omitempty"`
	PromotionLabel string   `json:"promotion_label,omitempty" csv:"promotion_label,omitempty"`
	ValidFrom      string   `json:"valid_from,omitempty" csv:"valid_from,omitempty"`
	ValidTo        string   `json:"valid_to,omitempty" csv:"valid_to,omitempty"`
	// Available is nil when the store has no value; nil is never treated as true during comparison.
	Available *bool `json:"available,omitempty" csv:"available,omitempty"`
}

// IdentityFor returns the URL or SKU depending on key.
func (r *CatalogRecord) IdentityFor(key IdentityKey) string {
	if key == KeySKU {
		return r.SKU
	}
	return r.URL
}

func (r *CatalogRecord) IsAvailable() bool {
	return r.Available != nil && *r.Available
}

func (r *CatalogRecord) IsUnavailable() bool {
	return r.Available != nil && !*r.Available
}

func Bool(b bool) *bool {
	return &b
}

func Float(f float64) *float64 {
	return &f
}
