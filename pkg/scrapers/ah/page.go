package ah

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"shelf-sync/pkg/models"
	"shelf-sync/pkg/period"
	"shelf-sync/pkg/scrapers/pagetext"
	"shelf-sync/pkg/scrapers/render"
	"shelf-sync/pkg/source"
)

const (
	Source  = "ah"
	BaseURL = "https://www.ah.nl"

	titleSuffix = " bestellen | Albert Heijn"
	unitLabel   = "Inhoud en gewicht"
)

var skuPattern = regexp.MustCompile(`/producten/product/(wi\d+)`)

// PageScraper reads product pages. The page text is kept as tokens; prices are resolved later.
type PageScraper struct {
	Collector *colly.Collector
	BaseURL   string
	// Renderer is used for pages whose title only appears after client-side rendering.
	Renderer *render.Renderer
}

func NewPageScraper() *PageScraper {
	c := colly.NewCollector(
		colly.AllowedDomains("www.ah.nl", "127.0.0.1"), // localhost for testing
		colly.UserAgent(render.DefaultUserAgent),
	)
	return &PageScraper{
		Collector: c,
		BaseURL:   BaseURL,
	}
}

// SKUFromURL extracts the "wi12345" webshop id of a product URL.
func SKUFromURL(u string) string {
	if m := skuPattern.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}

func (s *PageScraper) Scrape(ctx context.Context, productURL string) (*source.RawProduct, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	product := &source.RawProduct{URL: productURL, SKU: SKUFromURL(productURL)}

	c := s.Collector.Clone()
	var status int
	c.OnError(func(r *colly.Response, err error) {
		status = r.StatusCode
	})
	c.OnHTML("html", func(e *colly.HTMLElement) {
		product.Tokens = pagetext.Tokens(e.DOM.Find("body"))
		product.Name = strings.TrimSpace(e.DOM.Find("h1").First().Text())
		if product.Name == "" {
			title := strings.TrimSpace(e.DOM.Find("title").First().Text())
			if strings.HasSuffix(title, titleSuffix) {
				product.Name = strings.TrimSpace(strings.TrimSuffix(title, titleSuffix))
			}
		}
	})

	log.Printf("[AH] Navigating to %s", productURL)
	if err := c.Visit(productURL); err != nil {
		if status == http.StatusNotFound || status == http.StatusGone {
			return nil, models.ErrProductNotFound
		}
		return nil, fmt.Errorf("visit %s: %w", productURL, err)
	}

	if product.Name == "" && s.Renderer != nil {
		page, err := s.Renderer.Render(ctx, productURL)
		if err != nil {
			return nil, err
		}
		product.Tokens = page.Tokens
		product.Name = strings.TrimSpace(page.Doc.Find("h1").First().Text())
	}

	if product.Name == "" {
		return nil, models.ErrProductNotFound
	}
	product.UnitText = pagetext.After(product.Tokens, unitLabel, 4)
	return product, nil
}

// NormalizeURL keeps crawling inside the /producten tree. Product URLs lose their query and fragment;
// listing URLs keep only a page parameter above one. ok is false for URLs not worth visiting.
func (s *PageScraper) NormalizeURL(raw string) (normalized string, isProduct bool, ok bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, false
	}
	base, err := url.Parse(s.BaseURL)
	if err != nil || u.Host != base.Host {
		return "", false, false
	}

	u.Path = strings.TrimRight(u.Path, "/")
	if !strings.HasPrefix(u.Path, "/producten") {
		return "", false, false
	}
	u.Fragment = ""

	if strings.HasPrefix(u.Path, "/producten/product/") {
		u.RawQuery = ""
		return u.String(), true, true
	}

	q := url.Values{}
	if page := u.Query().Get("page"); page != "" {
		if n, err := strconv.Atoi(page); err == nil && n > 1 {
			q.Set("page", page)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), false, true
}

// Discover crawls listing pages breadth first from start and returns every product URL it saw.
// maxPages caps the number of listing pages requested; zero means no cap.
func (s *PageScraper) Discover(ctx context.Context, start []string, maxPages int) ([]string, error) {
	c := s.Collector.Clone()

	var mu sync.Mutex
	products := map[string]bool{}
	var visited atomic.Int64

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil || (maxPages > 0 && visited.Add(1) > int64(maxPages)) {
			r.Abort()
		}
	})
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		normalized, isProduct, ok := s.NormalizeURL(e.Request.AbsoluteURL(e.Attr("href")))
		if !ok {
			return
		}
		if isProduct {
			mu.Lock()
			products[normalized] = true
			mu.Unlock()
			return
		}
		e.Request.Visit(normalized)
	})
	c.OnError(func(r *colly.Response, err error) {
		log.Printf("[AH] Crawl error on %s: %v", r.Request.URL, err)
	})

	for _, u := range start {
		if normalized, _, ok := s.NormalizeURL(u); ok {
			c.Visit(normalized)
		}
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(products))
	for u := range products {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	log.Printf("[AH] Discovered %d product URLs", len(urls))
	return urls, nil
}

// BonusPeriod reads the current bonus week from the bonus page. Product pages do not print it.
func (s *PageScraper) BonusPeriod(ctx context.Context, now time.Time) (*period.Range, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var label string
	c := s.Collector.Clone()
	c.OnHTML(`[data-testhook="period-toggle-button"]`, func(e *colly.HTMLElement) {
		if label != "" {
			return
		}
		label = strings.TrimSpace(e.DOM.Find(`[class*="period-toggle-button_label"]`).First().Text())
		if label == "" {
			label = strings.TrimSpace(e.Text)
		}
	})

	if err := c.Visit(strings.TrimRight(s.BaseURL, "/") + "/bonus"); err != nil {
		return nil, fmt.Errorf("bonus page: %w", err)
	}
	if label == "" {
		return nil, fmt.Errorf("bonus page: no period label")
	}

	r, err := period.ParseBonusPeriod(label, now.Year())
	if err != nil {
		return nil, err
	}
	return &r, nil
}
