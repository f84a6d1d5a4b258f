package store

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelf-sync/pkg/models"
	"shelf-sync/pkg/reconcile"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	plan := &models.SyncPlan{
		Source: "dirk",
		Inserts: []models.CatalogRecord{
			{
				Identity: "https://www.dirk.nl/p/1", URL: "https://www.dirk.nl/p/1", Name: "Melk",
				UnitText: "1 l", UnitQty: models.Float(1), UnitType: models.UnitLiter,
				CurrentPrice: models.Float(0.99), RegularPrice: models.Float(1.29), PromotionLabel: "0.99",
				ValidFrom: "2025-11-05", ValidTo: "2025-11-11", Available: models.Bool(true),
			},
			{
				Identity: "https://www.dirk.nl/p/2", URL: "https://www.dirk.nl/p/2", Name: "Kaas",
				CurrentPrice: models.Float(4.49), Available: models.Bool(true),
			},
		},
	}
	_, err := s.Apply(context.Background(), "dirk", plan)
	require.NoError(t, err)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestStore_InsertAndRecords(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)

	records, err := s.Records(context.Background(), "dirk")
	require.NoError(t, err)
	require.Len(t, records, 2)

	melk := records[0]
	assert.Equal(t, "dirk", melk.Source)
	assert.Equal(t, "Melk", melk.Name)
	assert.Equal(t, models.UnitLiter, melk.UnitType)
	require.NotNil(t, melk.RegularPrice)
	assert.Equal(t, 1.29, *melk.RegularPrice)
	assert.Equal(t, "2025-11-05", melk.ValidFrom)
	assert.True(t, melk.IsAvailable())

	kaas := records[1]
	assert.Nil(t, kaas.RegularPrice)
	assert.Nil(t, kaas.UnitQty)
	assert.Empty(t, kaas.PromotionLabel)

	other, err := s.Records(context.Background(), "ah")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStore_ApplyUpdatesAndUnavailable(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	plan := &models.SyncPlan{
		Source:      "dirk",
		Unavailable: []models.AvailabilityWrite{{Identity: "https://www.dirk.nl/p/2", Available: false}},
		Updates: []models.PriceWrite{{
			Identity: "https://www.dirk.nl/p/1", CurrentPrice: 1.29, Available: true,
		}},
	}
	runID, err := s.Apply(ctx, "dirk", plan)
	require.NoError(t, err)
	assert.Len(t, runID, 36)

	records, err := s.Records(ctx, "dirk")
	require.NoError(t, err)
	require.Len(t, records, 2)

	melk := records[0]
	assert.Equal(t, 1.29, *melk.CurrentPrice)
	assert.Nil(t, melk.RegularPrice)
	assert.Empty(t, melk.PromotionLabel)
	assert.Empty(t, melk.ValidFrom)
	assert.Equal(t, "Melk", melk.Name, "descriptive fields are untouched by updates")

	kaas := records[1]
	assert.True(t, kaas.IsUnavailable())
	assert.Equal(t, 4.49, *kaas.CurrentPrice, "prices are kept when a product disappears")
}

func TestStore_ReconcileRoundTripIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	fresh := map[string]models.ProductSnapshot{
		"https://www.dirk.nl/p/1": {
			Identity: "https://www.dirk.nl/p/1", URL: "https://www.dirk.nl/p/1", Name: "Melk",
			CurrentPrice: 0.99, RegularPrice: models.Float(1.29), PromotionLabel: "0.99",
			ValidFrom: date(2025, 11, 5), ValidTo: date(2025, 11, 11),
		},
	}

	records, err := s.Records(ctx, "dirk")
	require.NoError(t, err)
	plan := reconcile.Reconcile(fresh, reconcile.IndexRecords(records, models.KeyURL))
	assert.Empty(t, plan.Updates)
	assert.Empty(t, plan.Inserts)
	require.Len(t, plan.Unavailable, 1)

	_, err = s.Apply(ctx, "dirk", plan)
	require.NoError(t, err)

	records, err = s.Records(ctx, "dirk")
	require.NoError(t, err)
	again := reconcile.Reconcile(fresh, reconcile.IndexRecords(records, models.KeyURL))
	assert.True(t, again.Empty())
}

func TestStore_Runs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 11, 1, 6, 0, 0, 0, time.UTC)

	for i := range 3 {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		plan := &models.SyncPlan{Source: "ah", Inserts: []models.CatalogRecord{
			{Identity: "wi" + string(rune('1'+i)), SKU: "wi" + string(rune('1'+i)), CurrentPrice: models.Float(1)},
		}}
		_, err := s.Apply(ctx, "ah", plan)
		require.NoError(t, err)
	}

	runs, err := s.Runs(ctx, "ah", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 1, runs[0].Inserts)
	assert.True(t, runs[0].AppliedAt.After(runs[1].AppliedAt))
}

func TestStore_CSVRoundTrip(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	var buf bytes.Buffer
	n, err := s.ExportCSV(ctx, &buf, "dirk")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, strings.HasPrefix(buf.String(), "identity,source,url"))

	other := openTestStore(t)
	n, err = other.ImportCSV(ctx, &buf, "dirk")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	want, err := s.Records(ctx, "dirk")
	require.NoError(t, err)
	got, err := other.Records(ctx, "dirk")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_ImportCSVMissingIdentity(t *testing.T) {
	s := openTestStore(t)
	_, err := s.ImportCSV(context.Background(), strings.NewReader("identity,name\n,Melk\n"), "dirk")
	assert.ErrorIs(t, err, models.ErrMissingIdentity)
}

func TestStore_ExportEmpty(t *testing.T) {
	s := openTestStore(t)
	var buf bytes.Buffer
	n, err := s.ExportCSV(context.Background(), &buf, "hoogvliet")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, strings.HasPrefix(buf.String(), "identity,"))
}

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLDSN("shelf", "secret", "db:3306", "catalog")
	assert.True(t, strings.HasPrefix(dsn, "shelf:secret@tcp(db:3306)/catalog"))
	assert.Contains(t, dsn, "parseTime=true")
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}
