// Package dirk scrapes dirk.nl product pages. Dirk prints the offer price and the regular price in
// separate elements, so its products take the structured offer path.
package dirk

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gocolly/colly/v2"

	"shelf-sync/pkg/models"
	"shelf-sync/pkg/normalize"
	"shelf-sync/pkg/period"
	"shelf-sync/pkg/promo"
	"shelf-sync/pkg/scrapers/render"
	"shelf-sync/pkg/source"
)

const (
	Source     = "dirk"
	BaseURL    = "https://www.dirk.nl"
	SitemapURL = BaseURL + "/products-sitemap.xml"
)

var FoodPrefixes = []string{
	"/boodschappen/aardappelen-groente-fruit",
	"/boodschappen/vlees-vis",
	"/boodschappen/brood-beleg-koek",
	"/boodschappen/zuivel-kaas",
	"/boodschappen/dranken-sap-koffie-thee",
	"/boodschappen/voorraadkast",
	"/boodschappen/maaltijden-salades-tapas",
	"/boodschappen/diepvries",
	"/boodschappen/snacks-snoep",
}

type Scraper struct {
	Collector  *colly.Collector
	BaseURL    string
	SitemapURL string
	Workers    int
}

func NewScraper() *Scraper {
	c := colly.NewCollector(
		colly.AllowedDomains("www.dirk.nl"),
		colly.UserAgent(render.DefaultUserAgent),
	)
	return &Scraper{
		Collector:  c,
		BaseURL:    BaseURL,
		SitemapURL: SitemapURL,
		Workers:    4,
	}
}

func (s *Scraper) Name() string { return Source }

func (s *Scraper) Key() models.IdentityKey { return models.KeyURL }

// Fetch reads the sitemap for full and weekly runs and re-visits the known URLs for daily runs.
func (s *Scraper) Fetch(ctx context.Context, cadence models.Cadence, known []models.CatalogRecord) ([]source.RawProduct, error) {
	var urls []string
	switch cadence {
	case models.CadenceDaily:
		urls = source.URLs(known)
	case models.CadenceFull, models.CadenceWeekly:
		var err error
		if urls, err = s.ProductURLs(ctx); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("dirk: unsupported cadence %q", cadence)
	}
	return source.Collect(ctx, "DIRK", urls, s.Workers, s.Scrape)
}

// IsFoodProductURL accepts product pages under a food category, which end in a numeric id.
func (s *Scraper) IsFoodProductURL(u string) bool {
	base := strings.TrimRight(s.BaseURL, "/")
	matched := false
	for _, prefix := range FoodPrefixes {
		if strings.HasPrefix(u, base+prefix) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	last := u[strings.LastIndex(strings.TrimRight(u, "/"), "/")+1:]
	last = strings.TrimRight(last, "/")
	_, err := strconv.Atoi(last)
	return err == nil
}

// ProductURLs lists the food product pages of the sitemap.
func (s *Scraper) ProductURLs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var urls []string
	c := s.Collector.Clone()
	c.OnXML("//url/loc", func(e *colly.XMLElement) {
		loc := strings.TrimSpace(e.Text)
		if s.IsFoodProductURL(loc) {
			urls = append(urls, loc)
		}
	})

	if err := c.Visit(s.SitemapURL); err != nil {
		return nil, fmt.Errorf("sitemap: %w", err)
	}
	sort.Strings(urls)
	log.Printf("[DIRK] Sitemap lists %d food products", len(urls))
	return urls, nil
}

func (s *Scraper) Scrape(ctx context.Context, productURL string) (*source.RawProduct, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	product := &source.RawProduct{URL: productURL, SKU: lastSegment(productURL)}
	var large, small, regular, runtime string

	c := s.Collector.Clone()
	var status int
	c.OnError(func(r *colly.Response, err error) {
		status = r.StatusCode
	})
	c.OnHTML("h1", func(e *colly.HTMLElement) {
		if product.Name == "" {
			product.Name = strings.TrimSpace(e.Text)
		}
	})
	c.OnHTML("p.subtitle", func(e *colly.HTMLElement) {
		if product.UnitText == "" {
			product.UnitText = strings.TrimSpace(e.Text)
		}
	})
	c.OnHTML("html", func(e *colly.HTMLElement) {
		large = strings.TrimSpace(e.DOM.Find(".price-large").First().Text())
		small = strings.TrimSpace(e.DOM.Find(".price-small").First().Text())
		regular = strings.TrimSpace(e.DOM.Find(".regular-price span").First().Text())
		runtime = strings.TrimSpace(e.DOM.Find(".offer-runtime").First().Text())
	})

	log.Printf("[DIRK] Navigating to %s", productURL)
	if err := c.Visit(productURL); err != nil {
		if status == http.StatusNotFound || status == http.StatusGone {
			return nil, models.ErrProductNotFound
		}
		return nil, fmt.Errorf("visit %s: %w", productURL, err)
	}

	// Pages of withdrawn products render without a price.
	if large == "" {
		return nil, models.ErrProductNotFound
	}

	current, err := ShelfPrice(large, small)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", productURL, err)
	}

	offer := &promo.Offer{NormalPrice: current}
	if regular != "" {
		if normal, err := normalize.ParsePrice(regular); err == nil && normal != nil {
			offer.NormalPrice = *normal
			offer.OfferPrice = current
		}
	}
	if runtime != "" {
		if r, err := period.ParseOfferRuntime(runtime); err == nil {
			offer.ValidFrom, offer.ValidTo = &r.From, &r.To
		} else {
			log.Printf("[DIRK] %v", err)
		}
	}
	product.Offer = offer
	return product, nil
}

// ShelfPrice joins the euro and cent elements. A lone large element holds cents only.
func ShelfPrice(large, small string) (float64, error) {
	large = strings.TrimRight(large, ".,")
	text := "0." + large
	if small != "" {
		text = large + "." + small
	}
	p, err := normalize.ParsePrice(text)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, models.ErrNoPrice
	}
	return *p, nil
}

func lastSegment(u string) string {
	u = strings.TrimRight(u, "/")
	return u[strings.LastIndex(u, "/")+1:]
}
