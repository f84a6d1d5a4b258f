package ah

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"shelf-sync/pkg/categories"
	"shelf-sync/pkg/fetch"
	"shelf-sync/pkg/normalize"
	"shelf-sync/pkg/promo"
	"shelf-sync/pkg/source"
)

const APIBaseURL = "https://api.ah.nl"

// APIClient enumerates the assortment through the mobile app API: every taxonomy id reachable from
// the root categories, searched page by page.
type APIClient struct {
	BaseURL string
	// ProductBaseURL prefixes the product URLs built from webshop ids.
	ProductBaseURL string
	PageSize       int
	// MaxTaxonomies limits the walk for partial runs. Zero means all.
	MaxTaxonomies int
	client        *fetch.Client
}

func NewAPIClient(baseURL string, perSecond float64) *APIClient {
	c := fetch.NewClient("AH", perSecond, 5)
	c.Header.Set("User-Agent", "Appie/8.63 Android/12-API31")
	c.Header.Set("X-Application", "AHWEBSHOP")
	return &APIClient{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		ProductBaseURL: BaseURL,
		PageSize:       100,
		client:         c,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type apiProduct struct {
	WebshopID        int64    `json:"webshopId"`
	Title            string   `json:"title"`
	Brand            string   `json:"brand"`
	SalesUnitSize    string   `json:"salesUnitSize"`
	PriceBeforeBonus *float64 `json:"priceBeforeBonus"`
	CurrentPrice     *float64 `json:"currentPrice"`
	BonusStartDate   string   `json:"bonusStartDate"`
	BonusEndDate     string   `json:"bonusEndDate"`
}

type searchResponse struct {
	Page struct {
		TotalPages int `json:"totalPages"`
	} `json:"page"`
	Products []apiProduct `json:"products"`
}

func (c *APIClient) Token(ctx context.Context) (string, error) {
	var resp tokenResponse
	err := c.client.PostJSON(ctx, c.BaseURL+"/mobile-auth/v1/auth/token/anonymous", nil,
		map[string]string{"clientId": "appie"}, &resp)
	if err != nil {
		return "", fmt.Errorf("anonymous token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", errors.New("anonymous token: empty access token")
	}
	return resp.AccessToken, nil
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

// TaxonomyIDs walks the category tree. Sub-category failures are logged and skipped.
func (c *APIClient) TaxonomyIDs(ctx context.Context, token string) ([]categories.ID, error) {
	var roots categories.List
	if err := c.client.GetJSON(ctx, c.BaseURL+"/mobile-services/v1/product-shelves/categories", bearer(token), &roots); err != nil {
		return nil, fmt.Errorf("root categories: %w", err)
	}

	queue := roots.IDs()
	log.Printf("[AH] root categories: %d", len(queue))

	seen := map[categories.ID]bool{}
	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if seen[id] {
			continue
		}
		seen[id] = true

		var subs categories.List
		err := c.client.GetJSON(ctx, fmt.Sprintf("%s/mobile-services/v1/product-shelves/categories/%d/sub-categories", c.BaseURL, id), bearer(token), &subs)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !errors.Is(err, fetch.ErrNotFound) {
				log.Printf("[AH] warning: failed to fetch sub-categories for %d: %v", id, err)
			}
			continue
		}
		for _, sub := range subs.IDs() {
			if !seen[sub] {
				queue = append(queue, sub)
			}
		}
	}

	ids := make([]categories.ID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	log.Printf("[AH] collected taxonomy ids: %d", len(ids))
	return ids, nil
}

func (c *APIClient) search(ctx context.Context, token string, taxonomy categories.ID, page int) (*searchResponse, error) {
	params := url.Values{}
	params.Set("sortOn", "RELEVANCE")
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(c.PageSize))
	params.Set("taxonomyId", strconv.FormatInt(int64(taxonomy), 10))
	params.Set("adType", "TAXONOMY")
	params.Set("availableOnline", "true")
	params.Set("orderable", "any")

	var resp searchResponse
	err := c.client.GetJSON(ctx, c.BaseURL+"/mobile-services/product/search/v2?"+params.Encode(), bearer(token), &resp)
	if err != nil {
		var status *fetch.StatusError
		if errors.As(err, &status) && status.Status == http.StatusBadRequest {
			log.Printf("[AH] search 400 for taxonomyId=%d page=%d", taxonomy, page)
			return &searchResponse{}, nil
		}
		return nil, err
	}
	return &resp, nil
}

// Products returns every product of the assortment, once per webshop id.
func (c *APIClient) Products(ctx context.Context) ([]source.RawProduct, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := c.TaxonomyIDs(ctx, token)
	if err != nil {
		return nil, err
	}
	if c.MaxTaxonomies > 0 && len(ids) > c.MaxTaxonomies {
		ids = ids[:c.MaxTaxonomies]
	}

	seen := map[int64]bool{}
	var products []source.RawProduct
	for _, tid := range ids {
		for page := 0; ; page++ {
			resp, err := c.search(ctx, token, tid, page)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				log.Printf("[AH] search taxonomyId=%d page=%d failed: %v", tid, page, err)
				break
			}
			if len(resp.Products) == 0 {
				break
			}
			for _, p := range resp.Products {
				if p.WebshopID == 0 || seen[p.WebshopID] {
					continue
				}
				seen[p.WebshopID] = true
				products = append(products, c.toRaw(p))
			}

			total := resp.Page.TotalPages
			if total == 0 {
				total = page + 1
			}
			if page+1 >= total {
				break
			}
		}
	}

	log.Printf("[AH] total unique products collected via taxonomy: %d", len(products))
	return products, nil
}

func (c *APIClient) toRaw(p apiProduct) source.RawProduct {
	sku := fmt.Sprintf("wi%d", p.WebshopID)
	raw := source.RawProduct{
		URL:      fmt.Sprintf("%s/producten/product/%s", strings.TrimRight(c.ProductBaseURL, "/"), sku),
		SKU:      sku,
		Name:     StripBrand(p.Title, p.Brand),
		Brand:    strings.TrimSpace(p.Brand),
		UnitText: p.SalesUnitSize,
	}

	offer := &promo.Offer{}
	switch {
	case p.PriceBeforeBonus != nil && p.CurrentPrice != nil:
		offer.NormalPrice = *p.PriceBeforeBonus
		offer.OfferPrice = *p.CurrentPrice
	case p.PriceBeforeBonus != nil:
		offer.NormalPrice = *p.PriceBeforeBonus
	case p.CurrentPrice != nil:
		offer.NormalPrice = *p.CurrentPrice
	}
	offer.ValidFrom = parseDate(p.BonusStartDate)
	offer.ValidTo = parseDate(p.BonusEndDate)
	raw.Offer = offer
	return raw
}

// StripBrand removes a leading brand from a title: "AH Latex handschoenen" with brand "AH" becomes
// "Latex handschoenen".
func StripBrand(title, brand string) string {
	title = strings.TrimSpace(title)
	brand = strings.TrimSpace(brand)
	if brand != "" && len(title) > len(brand) && strings.EqualFold(title[:len(brand)+1], brand+" ") {
		return strings.TrimSpace(title[len(brand)+1:])
	}
	return title
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := normalize.ParseDate(s)
	if err != nil {
		return nil
	}
	return &t
}
