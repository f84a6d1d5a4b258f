// Package hoogvliet reads the Hoogvliet catalog from its Tweakwise navigation feed and prices it through the
// Intershop batch endpoint. Promotion validity is only printed on product pages.
package hoogvliet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"shelf-sync/pkg/fetch"
	"shelf-sync/pkg/models"
	"shelf-sync/pkg/period"
	"shelf-sync/pkg/promo"
	"shelf-sync/pkg/scrapers/render"
	"shelf-sync/pkg/source"
)

const (
	Source     = "hoogvliet"
	BaseURL    = "https://www.hoogvliet.com"
	SearchURL  = "https://navigator-group1.tweakwise.com/navigation/ed681b01"
	PricesURL  = BaseURL + "/INTERSHOP/web/WFS/org-webshop-Site/nl_NL/-/EUR/ProcessTWProducts-GetTWProductsBySkus"
	BatchSize  = 80
	PageSize   = 16
	maxListing = 500
)

var TopCategories = []string{
	"999999-100", "999999-200", "999999-300", "999999-400", "999999-500", "999999-600", "999999-700",
	"999999-800", "999999-900", "999999-1900", "999999-1000", "999999-1100", "999999-1200",
	"999999-1300", "999999-1400", "999999-1500", "999999-1800", "999999-1600", "999999-2000",
	"999999-1700", "999999-100225",
}

type Client struct {
	BaseURL    string
	SearchURL  string
	PricesURL  string
	Categories []string
	PageSize   int
	BatchSize  int
	// Pages reads promotion validity from product pages. Nil skips the lookup.
	Pages *colly.Collector
	Now   func() time.Time

	client *fetch.Client
}

func NewClient(perSecond float64) *Client {
	c := fetch.NewClient("HOOGVLIET", perSecond, 2)
	c.Header.Set("User-Agent", render.DefaultUserAgent)
	c.Header.Set("X-Requested-With", "XMLHttpRequest")
	return &Client{
		BaseURL:    BaseURL,
		SearchURL:  SearchURL,
		PricesURL:  PricesURL,
		Categories: TopCategories,
		PageSize:   PageSize,
		BatchSize:  BatchSize,
		Pages: colly.NewCollector(
			colly.AllowedDomains("www.hoogvliet.com"),
			colly.UserAgent(render.DefaultUserAgent),
		),
		Now:    time.Now,
		client: c,
	}
}

func (c *Client) Name() string { return Source }

func (c *Client) Key() models.IdentityKey { return models.KeySKU }

// Fetch lists the whole assortment for full and weekly runs. Daily runs only re-price the known SKUs.
func (c *Client) Fetch(ctx context.Context, cadence models.Cadence, known []models.CatalogRecord) ([]source.RawProduct, error) {
	var items []Item
	switch cadence {
	case models.CadenceDaily:
		for _, r := range known {
			if r.SKU == "" {
				continue
			}
			items = append(items, Item{SKU: r.SKU, Title: r.Name, Brand: r.Brand, URL: r.URL, Unit: r.UnitText})
		}
	case models.CadenceFull, models.CadenceWeekly:
		var err error
		if items, err = c.Listing(ctx); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("hoogvliet: unsupported cadence %q", cadence)
	}

	skus := make([]string, 0, len(items))
	for _, it := range items {
		skus = append(skus, it.SKU)
	}
	prices, err := c.Prices(ctx, skus)
	if err != nil {
		return nil, err
	}

	var products []source.RawProduct
	for _, it := range items {
		p, ok := prices[it.SKU]
		if !ok {
			continue
		}
		raw := source.RawProduct{
			URL:      it.URL,
			SKU:      it.SKU,
			Name:     it.Title,
			Brand:    it.Brand,
			UnitText: it.Unit,
			Offer:    &promo.Offer{NormalPrice: p.Regular, OfferPrice: p.Discounted},
		}
		if p.Discounted > 0 && c.Pages != nil && it.URL != "" {
			if r, err := c.Validity(ctx, it.URL); err == nil {
				raw.Offer.ValidFrom, raw.Offer.ValidTo = &r.From, &r.To
			} else {
				log.Printf("[HOOGVLIET] No validity for %s: %v", it.SKU, err)
			}
		}
		products = append(products, raw)
	}
	log.Printf("[HOOGVLIET] Priced %d of %d products", len(products), len(items))
	return products, nil
}

// Item is one product of the navigation feed.
type Item struct {
	SKU   string
	Title string
	Brand string
	URL   string
	Unit  string
}

type listingResponse struct {
	Items      []listingItem `json:"items"`
	Properties struct {
		NrOfPages int `json:"nrofpages"`
	} `json:"properties"`
}

type listingItem struct {
	ItemNo     string `json:"itemno"`
	Title      string `json:"title"`
	Brand      string `json:"brand"`
	URL        string `json:"url"`
	Attributes []struct {
		Name   string   `json:"name"`
		Values []string `json:"values"`
	} `json:"attributes"`
}

// Listing pages through every top category, de-duplicated by SKU and sorted.
func (c *Client) Listing(ctx context.Context) ([]Item, error) {
	bySKU := make(map[string]Item)
	for _, cid := range c.Categories {
		for page := 1; page <= maxListing; page++ {
			q := url.Values{}
			q.Set("tn_q", "")
			q.Set("tn_p", strconv.Itoa(page))
			q.Set("tn_ps", strconv.Itoa(c.PageSize))
			q.Set("tn_sort", "Relevantie")
			q.Set("tn_cid", cid)
			q.Set("t", "json")

			var resp listingResponse
			if err := c.client.GetJSON(ctx, c.SearchURL+"?"+q.Encode(), nil, &resp); err != nil {
				return nil, fmt.Errorf("category %s page %d: %w", cid, page, err)
			}
			for _, it := range resp.Items {
				if it.ItemNo == "" {
					continue
				}
				bySKU[it.ItemNo] = c.toItem(it)
			}
			if len(resp.Items) == 0 || page >= resp.Properties.NrOfPages {
				break
			}
		}
	}

	items := make([]Item, 0, len(bySKU))
	for _, it := range bySKU {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SKU < items[j].SKU })
	log.Printf("[HOOGVLIET] Listing holds %d products", len(items))
	return items, nil
}

func (c *Client) toItem(it listingItem) Item {
	var base, ratio string
	for _, a := range it.Attributes {
		if len(a.Values) == 0 {
			continue
		}
		switch a.Name {
		case "BaseUnit":
			base = a.Values[0]
		case "RatioBasePackingUnit":
			ratio = a.Values[0]
		}
	}
	u := it.URL
	if strings.HasPrefix(u, "/") {
		u = strings.TrimRight(c.BaseURL, "/") + u
	}
	return Item{SKU: it.ItemNo, Title: it.Title, Brand: it.Brand, URL: u, Unit: FormatUnit(base, ratio)}
}

// FormatUnit joins the packing ratio and base unit, e.g. "10 stuk". Whole ratios drop their decimals.
func FormatUnit(base, ratio string) string {
	if ratio == "" {
		return base
	}
	if f, err := strconv.ParseFloat(ratio, 64); err == nil {
		ratio = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.TrimSpace(ratio + " " + base)
}

// Price is the priced state of one SKU. A zero Discounted means no discount.
type Price struct {
	Regular    float64
	Discounted float64
}

// amount decodes prices sent as numbers, numeric strings, or empty strings.
type amount float64

func (a *amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
		if s == "" {
			*a = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("price %q: %w", s, err)
		}
		*a = amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*a = amount(f)
	return nil
}

type priceItem struct {
	SKU        string `json:"sku"`
	ItemNo     string `json:"itemno"`
	ListPrice  amount `json:"listPrice"`
	Discounted amount `json:"discountedPrice"`
}

type priceList []priceItem

// UnmarshalJSON accepts both a bare list and one wrapped under "products".
func (l *priceList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var wrapped struct {
			Products []priceItem `json:"products"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return err
		}
		*l = wrapped.Products
		return nil
	}
	var items []priceItem
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// Prices looks the SKUs up in batches. SKUs the endpoint does not return are absent from the map.
func (c *Client) Prices(ctx context.Context, skus []string) (map[string]Price, error) {
	size := max(c.BatchSize, 1)
	prices := make(map[string]Price, len(skus))
	for start := 0; start < len(skus); start += size {
		batch := skus[start:min(start+size, len(skus))]

		var resp priceList
		endpoint := c.PricesURL + "?products=" + url.QueryEscape(strings.Join(batch, ","))
		if err := c.client.PostJSON(ctx, endpoint, nil, nil, &resp); err != nil {
			return nil, fmt.Errorf("prices batch at %d: %w", start, err)
		}

		for _, p := range resp {
			sku := p.SKU
			if sku == "" {
				sku = p.ItemNo
			}
			if sku == "" || p.ListPrice <= 0 {
				continue
			}
			prices[sku] = Price{Regular: float64(p.ListPrice), Discounted: float64(p.Discounted)}
		}
	}
	return prices, nil
}

// Validity reads the "geldig van ... t/m ..." heading of a product page.
func (c *Client) Validity(ctx context.Context, productURL string) (period.Range, error) {
	if err := ctx.Err(); err != nil {
		return period.Range{}, err
	}

	var text string
	pages := c.Pages.Clone()
	pages.OnHTML("h3.pdp-date-range", func(e *colly.HTMLElement) {
		if text == "" {
			text = strings.TrimSpace(e.Text)
		}
	})
	if err := pages.Visit(productURL); err != nil {
		return period.Range{}, err
	}
	if text == "" {
		return period.Range{}, fmt.Errorf("no date range on %s", productURL)
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return period.ParseDateRange(text, now().Year())
}
