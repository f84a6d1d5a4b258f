package source

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/errgroup"

	"shelf-sync/pkg/logger"
	"shelf-sync/pkg/models"
)

// ScrapeFunc fetches one product. It returns models.ErrProductNotFound for products that are gone.
type ScrapeFunc func(ctx context.Context, url string) (*RawProduct, error)

// Collect scrapes urls with at most workers requests in flight and returns the products that could be
// fetched, in the order of urls. Products that are gone or fail are left out; only a cancelled ctx
// aborts the whole run.
func Collect(ctx context.Context, prefix string, urls []string, workers int, scrape ScrapeFunc) ([]RawProduct, error) {
	results := make([]*RawProduct, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	for i, url := range urls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := scrape(gctx, url)
			switch {
			case err == nil:
				results[i] = p
			case errors.Is(err, models.ErrProductNotFound):
				logger.Dedup("[%s] product gone", prefix)
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				log.Printf("[%s] Failed to scrape %s: %v", prefix, url, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	products := make([]RawProduct, 0, len(urls))
	for _, p := range results {
		if p != nil {
			products = append(products, *p)
		}
	}
	return products, nil
}

// URLs lists the non-empty URLs of known records.
func URLs(known []models.CatalogRecord) []string {
	urls := make([]string, 0, len(known))
	for _, r := range known {
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	return urls
}
