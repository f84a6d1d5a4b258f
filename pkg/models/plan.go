package models

// AvailabilityWrite flips a record to unavailable and touches nothing else.
type AvailabilityWrite struct {
	Identity  string `json:"identity"`
	Available bool   `json:"available"`
}

// PriceWrite carries the fresh price and validity fields of a record that changed.
type PriceWrite struct {
	Identity       string   `json:"identity"`
	CurrentPrice   float64  `json:"current_price"`
	RegularPrice   *float64 `json:"regular_price"`
	PromotionLabel string   `json:"promotion_label"`
	ValidFrom      string   `json:"valid_from"`
	ValidTo        string   `json:"valid_to"`
	Available      bool     `json:"available"`
}

// SyncPlan is the minimal set of writes that brings persisted state in line with a fresh snapshot set.
// The three lists are disjoint and each is sorted by identity.
type SyncPlan struct {
	Source      string              `json:"source,omitempty"`
	Unavailable []AvailabilityWrite `json:"unavailable"`
	Updates     []PriceWrite        `json:"updates"`
	Inserts     []CatalogRecord     `json:"inserts"`
}

func (p *SyncPlan) Len() int {
	return len(p.Unavailable) + len(p.Updates) + len(p.Inserts)
}

func (p *SyncPlan) Empty() bool {
	return p.Len() == 0
}

// Identities lists every identity the plan touches in application order: unavailable, updates, inserts.
func (p *SyncPlan) Identities() []string {
	ids := make([]string, 0, p.Len())
	for _, w := range p.Unavailable {
		ids = append(ids, w.Identity)
	}
	for _, w := range p.Updates {
		ids = append(ids, w.Identity)
	}
	for _, r := range p.Inserts {
		ids = append(ids, r.Identity)
	}
	return ids
}
