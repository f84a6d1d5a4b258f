package dirk

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelf-sync/pkg/models"
	"shelf-sync/pkg/snapshot"
)

const offerPage = `<html><body>
<h1>Dirk Halfvolle melk</h1>
<p class="subtitle">500 ml</p>
<div class="price-large">0</div><div class="price-small">99</div>
<div class="regular-price"><span>1.29</span></div>
<p class="offer-runtime">Geldig van woensdag 5 november t/m dinsdag 11 november 2025</p>
</body></html>`

const centsPage = `<html><body>
<h1>Komkommer</h1>
<p class="subtitle">per stuk</p>
<div class="price-large">79</div>
</body></html>`

const noPricePage = `<html><body><h1>Uit het assortiment</h1></body></html>`

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	var ts *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/boodschappen/zuivel-kaas/melk/dirk-halfvolle-melk/1001", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, offerPage)
	})
	mux.HandleFunc("/boodschappen/aardappelen-groente-fruit/groente/komkommer/2002", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, centsPage)
	})
	mux.HandleFunc("/boodschappen/zuivel-kaas/kaas/weg/3003", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, noPricePage)
	})
	mux.HandleFunc("/products-sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>%[1]s/boodschappen/zuivel-kaas/melk/dirk-halfvolle-melk/1001</loc></url>
<url><loc>%[1]s/boodschappen/aardappelen-groente-fruit/groente/komkommer/2002</loc></url>
<url><loc>%[1]s/boodschappen/drogisterij/shampoo/4004</loc></url>
<url><loc>%[1]s/boodschappen/zuivel-kaas</loc></url>
</urlset>`, ts.URL)
	})
	ts = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func newTestScraper(ts *httptest.Server) *Scraper {
	s := NewScraper()
	s.Collector.AllowedDomains = nil
	s.BaseURL = ts.URL
	s.SitemapURL = ts.URL + "/products-sitemap.xml"
	return s
}

func TestScraper_ScrapeOffer(t *testing.T) {
	ts := newTestSite(t)
	s := newTestScraper(ts)

	raw, err := s.Scrape(context.Background(), ts.URL+"/boodschappen/zuivel-kaas/melk/dirk-halfvolle-melk/1001")
	require.NoError(t, err)
	assert.Equal(t, "Dirk Halfvolle melk", raw.Name)
	assert.Equal(t, "1001", raw.SKU)
	assert.Equal(t, "500 ml", raw.UnitText)
	require.NotNil(t, raw.Offer)
	assert.InDelta(t, 1.29, raw.Offer.NormalPrice, 0.0001)
	assert.InDelta(t, 0.99, raw.Offer.OfferPrice, 0.0001)
	require.NotNil(t, raw.Offer.ValidTo)

	n := snapshot.NewNormalizer(Source, models.KeyURL)
	n.Now = func() time.Time { return time.Date(2025, 11, 6, 9, 0, 0, 0, time.UTC) }
	snap, err := n.Normalize(*raw)
	require.NoError(t, err)
	assert.Equal(t, raw.URL, snap.Identity)
	assert.InDelta(t, 0.99, snap.CurrentPrice, 0.0001)
	require.NotNil(t, snap.RegularPrice)
	assert.InDelta(t, 1.29, *snap.RegularPrice, 0.0001)
	assert.Equal(t, "0.99", snap.PromotionLabel)
	assert.Equal(t, models.UnitLiter, snap.UnitType)
	require.NotNil(t, snap.ValidFrom)
	assert.Equal(t, "2025-11-05", snap.ValidFrom.Format("2006-01-02"))
}

func TestScraper_ScrapeCentsOnly(t *testing.T) {
	ts := newTestSite(t)
	s := newTestScraper(ts)

	raw, err := s.Scrape(context.Background(), ts.URL+"/boodschappen/aardappelen-groente-fruit/groente/komkommer/2002")
	require.NoError(t, err)
	require.NotNil(t, raw.Offer)
	assert.InDelta(t, 0.79, raw.Offer.NormalPrice, 0.0001)
	assert.Zero(t, raw.Offer.OfferPrice)
	assert.Nil(t, raw.Offer.ValidFrom)
}

func TestScraper_NotFound(t *testing.T) {
	ts := newTestSite(t)
	s := newTestScraper(ts)

	_, err := s.Scrape(context.Background(), ts.URL+"/boodschappen/zuivel-kaas/kaas/weg/3003")
	assert.ErrorIs(t, err, models.ErrProductNotFound)

	_, err = s.Scrape(context.Background(), ts.URL+"/boodschappen/zuivel-kaas/kaas/bestaat-niet/9999")
	assert.ErrorIs(t, err, models.ErrProductNotFound)
}

func TestScraper_ProductURLs(t *testing.T) {
	ts := newTestSite(t)
	s := newTestScraper(ts)

	urls, err := s.ProductURLs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		ts.URL + "/boodschappen/aardappelen-groente-fruit/groente/komkommer/2002",
		ts.URL + "/boodschappen/zuivel-kaas/melk/dirk-halfvolle-melk/1001",
	}, urls)
}

func TestScraper_FetchWeekly(t *testing.T) {
	ts := newTestSite(t)
	s := newTestScraper(ts)

	products, err := s.Fetch(context.Background(), models.CadenceWeekly, nil)
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

func TestScraper_FetchDailySkipsGone(t *testing.T) {
	ts := newTestSite(t)
	s := newTestScraper(ts)

	known := []models.CatalogRecord{
		{Identity: "a", URL: ts.URL + "/boodschappen/zuivel-kaas/melk/dirk-halfvolle-melk/1001"},
		{Identity: "b", URL: ts.URL + "/boodschappen/zuivel-kaas/kaas/weg/3003"},
	}
	products, err := s.Fetch(context.Background(), models.CadenceDaily, known)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Dirk Halfvolle melk", products[0].Name)
}

func TestShelfPrice(t *testing.T) {
	tests := []struct {
		large, small string
		want         float64
	}{
		{"1", "49", 1.49},
		{"2.", "19", 2.19},
		{"89", "", 0.89},
	}
	for _, tt := range tests {
		got, err := ShelfPrice(tt.large, tt.small)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 0.0001)
	}

	_, err := ShelfPrice("gratis", "")
	assert.Error(t, err)
}

func TestIsFoodProductURL(t *testing.T) {
	s := NewScraper()
	assert.True(t, s.IsFoodProductURL("https://www.dirk.nl/boodschappen/vlees-vis/kip/kipfilet/12345"))
	assert.False(t, s.IsFoodProductURL("https://www.dirk.nl/boodschappen/vlees-vis/kip"))
	assert.False(t, s.IsFoodProductURL("https://www.dirk.nl/boodschappen/huishouden/wasmiddel/777"))
}
