package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelf-sync/pkg/models"
)

func snap(id string, price float64) models.ProductSnapshot {
	return models.ProductSnapshot{Identity: id, Source: "dirk", URL: id, Name: "product " + id, CurrentPrice: price}
}

func rec(id string, price float64, available *bool) models.CatalogRecord {
	return models.CatalogRecord{Identity: id, Source: "dirk", URL: id, CurrentPrice: models.Float(price), Available: available}
}

func TestReconcile_Partition(t *testing.T) {
	persisted := map[string]models.CatalogRecord{
		"A": rec("A", 1.00, models.Bool(true)),
		"B": rec("B", 2.00, models.Bool(true)),
	}
	fresh := map[string]models.ProductSnapshot{
		"A": snap("A", 1.00),
		"C": snap("C", 3.00),
	}

	plan := Reconcile(fresh, persisted)

	assert.Equal(t, []models.AvailabilityWrite{{Identity: "B", Available: false}}, plan.Unavailable)
	assert.Empty(t, plan.Updates)
	require.Len(t, plan.Inserts, 1)
	assert.Equal(t, "C", plan.Inserts[0].Identity)
	assert.Equal(t, 3.00, *plan.Inserts[0].CurrentPrice)
	assert.True(t, plan.Inserts[0].IsAvailable())
	assert.Equal(t, "product C", plan.Inserts[0].Name)
}

func TestReconcile_Updates(t *testing.T) {
	from := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 11, 9, 0, 0, 0, 0, time.UTC)

	promoted := snap("A", 0.99)
	promoted.RegularPrice = models.Float(1.29)
	promoted.PromotionLabel = "0.99"
	promoted.ValidFrom = &from
	promoted.ValidTo = &to

	testCases := []struct {
		name    string
		fresh   models.ProductSnapshot
		stored  models.CatalogRecord
		changed bool
	}{
		{name: "same price", fresh: snap("A", 1), stored: rec("A", 1, models.Bool(true))},
		{name: "same price within rounding", fresh: snap("A", 1.995), stored: rec("A", 2.00, models.Bool(true))},
		{name: "price changed", fresh: snap("A", 1.10), stored: rec("A", 1, models.Bool(true)), changed: true},
		{name: "back in stock", fresh: snap("A", 1), stored: rec("A", 1, models.Bool(false)), changed: true},
		{name: "unknown availability", fresh: snap("A", 1), stored: rec("A", 1, nil), changed: true},
		{name: "promotion started", fresh: promoted, stored: rec("A", 0.99, models.Bool(true)), changed: true},
		{
			name:  "stored dates as timestamps",
			fresh: promoted,
			stored: models.CatalogRecord{
				Identity:     "A",
				CurrentPrice: models.Float(0.99),
				RegularPrice: models.Float(1.29),
				ValidFrom:    "2025-11-03 00:00:00",
				ValidTo:      "2025-11-09T00:00:00Z",
				Available:    models.Bool(true),
			},
		},
		{
			name:  "promotion ended",
			fresh: snap("A", 1.29),
			stored: models.CatalogRecord{
				Identity:     "A",
				CurrentPrice: models.Float(0.99),
				RegularPrice: models.Float(1.29),
				ValidTo:      "2025-11-09",
				Available:    models.Bool(true),
			},
			changed: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			plan := Reconcile(
				map[string]models.ProductSnapshot{"A": tc.fresh},
				map[string]models.CatalogRecord{"A": tc.stored},
			)
			assert.Empty(t, plan.Unavailable)
			assert.Empty(t, plan.Inserts)
			if !tc.changed {
				assert.Empty(t, plan.Updates)
				return
			}
			require.Len(t, plan.Updates, 1)
			assert.True(t, plan.Updates[0].Available)
		})
	}
}

func TestReconcile_PriceWrite(t *testing.T) {
	from := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	s := snap("A", 1.995)
	s.RegularPrice = models.Float(2.5)
	s.PromotionLabel = "2 voor 3.99"
	s.ValidFrom = &from

	plan := Reconcile(
		map[string]models.ProductSnapshot{"A": s},
		map[string]models.CatalogRecord{"A": rec("A", 2.5, models.Bool(true))},
	)

	require.Len(t, plan.Updates, 1)
	w := plan.Updates[0]
	assert.Equal(t, "A", w.Identity)
	assert.Equal(t, 2.0, w.CurrentPrice)
	assert.Equal(t, 2.5, *w.RegularPrice)
	assert.Equal(t, "2 voor 3.99", w.PromotionLabel)
	assert.Equal(t, "2025-11-03", w.ValidFrom)
	assert.Equal(t, "", w.ValidTo)
}

func TestReconcile_AlreadyUnavailable(t *testing.T) {
	persisted := map[string]models.CatalogRecord{
		"gone":    rec("gone", 1, models.Bool(false)),
		"unknown": rec("unknown", 1, nil),
	}

	plan := Reconcile(map[string]models.ProductSnapshot{}, persisted)

	assert.Equal(t, []models.AvailabilityWrite{{Identity: "unknown", Available: false}}, plan.Unavailable)
}

func TestReconcile_Idempotent(t *testing.T) {
	persisted := map[string]models.CatalogRecord{
		"a": rec("a", 1.00, models.Bool(true)),
		"b": rec("b", 2.00, models.Bool(true)),
		"c": rec("c", 5.00, models.Bool(false)),
		"d": rec("d", 4.00, nil),
		"e": rec("e", 4.00, models.Bool(true)),
	}
	withPromo := snap("e", 3.333)
	withPromo.RegularPrice = models.Float(4.0)
	withPromo.PromotionLabel = "3 voor 9.99"
	fresh := map[string]models.ProductSnapshot{
		"a": snap("a", 1.10),
		"c": snap("c", 5.00),
		"e": withPromo,
		"f": snap("f", 0.59),
	}

	plan := Reconcile(fresh, persisted)
	assert.Equal(t, 6, plan.Len())

	applied := Apply(persisted, plan)
	again := Reconcile(fresh, applied)

	assert.True(t, again.Empty(), "second plan: %+v", again)
	assert.Equal(t, applied, Apply(applied, again))
}

func TestReconcile_Deterministic(t *testing.T) {
	persisted := map[string]models.CatalogRecord{}
	fresh := map[string]models.ProductSnapshot{}
	for _, id := range []string{"q", "w", "e", "r", "t", "y", "u", "i", "o", "p"} {
		persisted["old-"+id] = rec("old-"+id, 1, models.Bool(true))
		fresh["new-"+id] = snap("new-"+id, 2)
	}

	first := Reconcile(fresh, persisted)
	for range 20 {
		assert.Equal(t, first, Reconcile(fresh, persisted))
	}
	assert.Equal(t, "old-e", first.Unavailable[0].Identity)
	assert.Equal(t, "new-e", first.Inserts[0].Identity)
	assert.Equal(t, "old-y", first.Identities()[9])
}

func TestReconcile_DisjointLists(t *testing.T) {
	persisted := map[string]models.CatalogRecord{
		"1": rec("1", 1, models.Bool(true)),
		"2": rec("2", 1, models.Bool(true)),
	}
	fresh := map[string]models.ProductSnapshot{
		"2": snap("2", 3),
		"3": snap("3", 3),
	}

	seen := map[string]int{}
	for _, id := range Reconcile(fresh, persisted).Identities() {
		seen[id]++
	}
	assert.Equal(t, map[string]int{"1": 1, "2": 1, "3": 1}, seen)
}

func TestReconcile_MissingIdentity(t *testing.T) {
	persisted := map[string]models.CatalogRecord{"": rec("", 1, models.Bool(true))}
	fresh := map[string]models.ProductSnapshot{"": snap("", 1), "x": snap("x", 1)}

	plan := Reconcile(fresh, persisted)

	assert.Empty(t, plan.Unavailable)
	assert.Empty(t, plan.Updates)
	require.Len(t, plan.Inserts, 1)
	assert.Equal(t, "x", plan.Inserts[0].Identity)
}

func TestIndex(t *testing.T) {
	first := snap("a", 1)
	dup := snap("a", 2)
	out := Index([]models.ProductSnapshot{first, dup, snap("", 3)})

	assert.Len(t, out, 1)
	assert.Equal(t, 1.0, out["a"].CurrentPrice)
}

func TestIndexRecords(t *testing.T) {
	records := []models.CatalogRecord{
		{SKU: "wi1", URL: "https://x/1"},
		{Identity: "wi2", SKU: "wi2"},
		{URL: "https://x/3"},
	}

	bySKU := IndexRecords(records, models.KeySKU)
	assert.Len(t, bySKU, 2)
	assert.Equal(t, "wi1", bySKU["wi1"].Identity)

	byURL := IndexRecords(records, models.KeyURL)
	assert.Contains(t, byURL, "https://x/1")
	assert.Contains(t, byURL, "https://x/3")
	assert.Contains(t, byURL, "wi2")
}
