// Package reconcile compares a fresh snapshot set against persisted records and plans the minimal writes
// that bring the store in line. Everything here is pure: no I/O, no clocks, no shared state.
package reconcile

import (
	"maps"
	"slices"

	"shelf-sync/pkg/logger"
	"shelf-sync/pkg/models"
	"shelf-sync/pkg/normalize"
)

// Reconcile partitions the identities of fresh and persisted into records that went missing, records
// whose price or validity changed and records seen for the first time. Entries without an identity are
// dropped. Each list of the returned plan is sorted by identity.
func Reconcile(fresh map[string]models.ProductSnapshot, persisted map[string]models.CatalogRecord) *models.SyncPlan {
	plan := &models.SyncPlan{
		Unavailable: []models.AvailabilityWrite{},
		Updates:     []models.PriceWrite{},
		Inserts:     []models.CatalogRecord{},
	}

	for _, id := range sortedKeys(persisted) {
		rec := persisted[id]
		snap, ok := fresh[id]
		if !ok {
			if !rec.IsUnavailable() {
				plan.Unavailable = append(plan.Unavailable, models.AvailabilityWrite{Identity: id, Available: false})
			}
			continue
		}
		if normalize.SnapshotKey(&snap) == normalize.RecordKey(&rec) {
			continue
		}
		plan.Updates = append(plan.Updates, priceWrite(id, &snap))
	}

	for _, id := range sortedKeys(fresh) {
		if _, ok := persisted[id]; ok {
			continue
		}
		snap := fresh[id]
		plan.Inserts = append(plan.Inserts, Record(id, &snap))
	}

	return plan
}

// Record builds the full catalog record inserted for a snapshot seen for the first time.
func Record(id string, s *models.ProductSnapshot) models.CatalogRecord {
	current := normalize.Round(s.CurrentPrice)
	return models.CatalogRecord{
		Identity:       id,
		Source:         s.Source,
		URL:            s.URL,
		SKU:            s.SKU,
		Name:           s.Name,
		Brand:          s.Brand,
		UnitText:       s.UnitText,
		UnitQty:        s.UnitQty,
		UnitType:       s.UnitType,
		CurrentPrice:   &current,
		RegularPrice:   normalize.RoundPtr(s.RegularPrice),
		PromotionLabel: s.PromotionLabel,
		ValidFrom:      normalize.Date(s.ValidFrom),
		ValidTo:        normalize.Date(s.ValidTo),
		Available:      models.Bool(true),
	}
}

// Prices are written rounded to cents, the same form comparison uses, so a plan applied once compares
// equal on the next run.
func priceWrite(id string, s *models.ProductSnapshot) models.PriceWrite {
	return models.PriceWrite{
		Identity:       id,
		CurrentPrice:   normalize.Round(s.CurrentPrice),
		RegularPrice:   normalize.RoundPtr(s.RegularPrice),
		PromotionLabel: s.PromotionLabel,
		ValidFrom:      normalize.Date(s.ValidFrom),
		ValidTo:        normalize.Date(s.ValidTo),
		Available:      true,
	}
}

// Index keys snapshots by identity. Snapshots without one are dropped; on duplicates the first wins.
func Index(snapshots []models.ProductSnapshot) map[string]models.ProductSnapshot {
	out := make(map[string]models.ProductSnapshot, len(snapshots))
	for _, s := range snapshots {
		if s.Identity == "" {
			logger.Dedup("[RECONCILE] dropping %s snapshot without identity", s.Source)
			continue
		}
		if _, dup := out[s.Identity]; dup {
			logger.Dedup("[RECONCILE] duplicate snapshot for %s", s.Identity)
			continue
		}
		out[s.Identity] = s
	}
	return out
}

// IndexRecords keys records by identity, falling back to the URL or SKU named by key when a record
// carries no explicit identity.
func IndexRecords(records []models.CatalogRecord, key models.IdentityKey) map[string]models.CatalogRecord {
	out := make(map[string]models.CatalogRecord, len(records))
	for _, r := range records {
		id := r.Identity
		if id == "" {
			id = r.IdentityFor(key)
		}
		if id == "" {
			logger.Dedup("[RECONCILE] dropping %s record without %s", r.Source, key)
			continue
		}
		if _, dup := out[id]; dup {
			logger.Dedup("[RECONCILE] duplicate record for %s", id)
			continue
		}
		r.Identity = id
		out[id] = r
	}
	return out
}

// Apply returns a copy of persisted with plan applied, the way the store applies it.
func Apply(persisted map[string]models.CatalogRecord, plan *models.SyncPlan) map[string]models.CatalogRecord {
	out := maps.Clone(persisted)
	if out == nil {
		out = make(map[string]models.CatalogRecord)
	}

	for _, w := range plan.Unavailable {
		rec, ok := out[w.Identity]
		if !ok {
			continue
		}
		rec.Available = models.Bool(w.Available)
		out[w.Identity] = rec
	}

	for _, w := range plan.Updates {
		rec, ok := out[w.Identity]
		if !ok {
			continue
		}
		current := w.CurrentPrice
		rec.CurrentPrice = &current
		rec.RegularPrice = w.RegularPrice
		rec.PromotionLabel = w.PromotionLabel
		rec.ValidFrom = w.ValidFrom
		rec.ValidTo = w.ValidTo
		rec.Available = models.Bool(w.Available)
		out[w.Identity] = rec
	}

	for _, r := range plan.Inserts {
		out[r.Identity] = r
	}

	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := slices.Sorted(maps.Keys(m))
	for len(keys) > 0 && keys[0] == "" {
		logger.Dedup("[RECONCILE] dropping entry without identity")
		keys = keys[1:]
	}
	return keys
}
