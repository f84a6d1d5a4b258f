// Package refresh runs the fetch, reconcile and apply cycle for each retailer.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"shelf-sync/pkg/models"
	"shelf-sync/pkg/promo"
	"shelf-sync/pkg/reconcile"
	"shelf-sync/pkg/snapshot"
	"shelf-sync/pkg/source"
	"shelf-sync/pkg/translate"
)

// Store is the persistence side of a run.
type Store interface {
	Records(ctx context.Context, source string) ([]models.CatalogRecord, error)
	Apply(ctx context.Context, source string, plan *models.SyncPlan) (string, error)
}

type Report struct {
	Source    string         `json:"source"`
	Cadence   models.Cadence `json:"cadence"`
	RunID     string         `json:"run_id,omitempty"`
	Persisted int            `json:"persisted"`
	Fetched   int            `json:"fetched"`
	Fresh     int            `json:"fresh"`
	Skipped   int            `json:"skipped"`
	// Withheld lists identities whose promotion text could not be extracted. They are left out of the
	// comparison on both sides.
	Withheld    []string         `json:"withheld,omitempty"`
	Failures    []string         `json:"failures,omitempty"`
	Unavailable int              `json:"unavailable"`
	Updates     int              `json:"updates"`
	Inserts     int              `json:"inserts"`
	Duration    time.Duration    `json:"duration"`
	Plan        *models.SyncPlan `json:"-"`
	Err         string           `json:"error,omitempty"`
}

type Runner struct {
	Fetchers   map[string]source.Fetcher
	Store      Store
	Translator translate.Translator
	// Resolver overrides the price resolution of every source when set.
	Resolver promo.Resolver
	// DryRun computes the plan without applying it.
	DryRun bool
	Now    func() time.Time

	// runs of one source never overlap
	locks sync.Map
}

func NewRunner(store Store, translator translate.Translator, fetchers ...source.Fetcher) *Runner {
	r := &Runner{
		Fetchers:   make(map[string]source.Fetcher, len(fetchers)),
		Store:      store,
		Translator: translator,
		Now:        time.Now,
	}
	for _, f := range fetchers {
		r.Fetchers[f.Name()] = f
	}
	return r
}

// Sources returns the registered retailer names in order.
func (r *Runner) Sources() []string {
	names := make([]string, 0, len(r.Fetchers))
	for name := range r.Fetchers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Runner) lock(name string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(name, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Run refreshes one retailer.
func (r *Runner) Run(ctx context.Context, name string, cadence models.Cadence) (*Report, error) {
	f, ok := r.Fetchers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownSource, name)
	}
	if !cadence.Valid() {
		return nil, fmt.Errorf("unknown cadence %q", cadence)
	}

	mu := r.lock(name)
	mu.Lock()
	defer mu.Unlock()

	start := time.Now()
	report := &Report{Source: name, Cadence: cadence}
	log.Printf("[REFRESH] Starting %s refresh of %s", cadence, name)

	records, err := r.Store.Records(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load %s records: %w", name, err)
	}
	report.Persisted = len(records)
	persisted := reconcile.IndexRecords(records, f.Key())

	raws, err := f.Fetch(ctx, cadence, records)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	report.Fetched = len(raws)

	normalizer := snapshot.NewNormalizer(name, f.Key())
	if r.Resolver != nil {
		normalizer.Resolver = r.Resolver
	}
	if r.Now != nil {
		normalizer.Now = r.Now
	}

	var snapshots []models.ProductSnapshot
	withheld := make(map[string]bool)
	for _, raw := range raws {
		snap, err := normalizer.Normalize(raw)
		switch {
		case err == nil:
			snapshots = append(snapshots, *snap)
		case errors.Is(err, snapshot.ErrSkip):
			report.Skipped++
		case promo.IsExtractionError(err):
			id := identity(raw, f.Key())
			report.Failures = append(report.Failures, err.Error())
			if id != "" && !withheld[id] {
				withheld[id] = true
				report.Withheld = append(report.Withheld, id)
			}
			log.Printf("[REFRESH] %s: %v", name, err)
		default:
			report.Skipped++
			report.Failures = append(report.Failures, err.Error())
		}
	}

	fresh := reconcile.Index(snapshots)
	for id := range withheld {
		delete(fresh, id)
		delete(persisted, id)
	}
	slices.Sort(report.Withheld)
	report.Fresh = len(fresh)

	plan := reconcile.Reconcile(fresh, persisted)
	plan.Source = name
	r.translateInserts(ctx, plan)

	report.Plan = plan
	report.Unavailable, report.Updates, report.Inserts = len(plan.Unavailable), len(plan.Updates), len(plan.Inserts)

	if !r.DryRun {
		runID, err := r.Store.Apply(ctx, name, plan)
		if err != nil {
			return nil, fmt.Errorf("apply %s plan: %w", name, err)
		}
		report.RunID = runID
	}

	report.Duration = time.Since(start)
	log.Printf("[REFRESH] %s done in %v: %d fetched, %d skipped, %d withheld, %d unavailable, %d updates, %d inserts",
		name, report.Duration.Round(time.Millisecond), report.Fetched, report.Skipped, len(report.Withheld),
		report.Unavailable, report.Updates, report.Inserts)
	return report, nil
}

// translateInserts fills NameEN of new records. Failures leave the name untranslated.
func (r *Runner) translateInserts(ctx context.Context, plan *models.SyncPlan) {
	if r.Translator == nil {
		return
	}
	for i := range plan.Inserts {
		rec := &plan.Inserts[i]
		if rec.Name == "" || rec.NameEN != "" {
			continue
		}
		en, err := r.Translator.Translate(ctx, rec.Name)
		if err != nil {
			log.Printf("[REFRESH] Translation failed for %q: %v", rec.Name, err)
			continue
		}
		rec.NameEN = en
	}
}

// RunAll refreshes every registered retailer concurrently. A failing retailer does not stop the others;
// its report carries the error.
func (r *Runner) RunAll(ctx context.Context, cadence models.Cadence) ([]*Report, error) {
	names := r.Sources()
	reports := make([]*Report, len(names))
	errs := make([]error, len(names))

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			report, err := r.Run(ctx, name, cadence)
			if err != nil {
				report = &Report{Source: name, Cadence: cadence, Err: err.Error()}
				errs[i] = err
			}
			reports[i] = report
			return nil
		})
	}
	g.Wait()
	return reports, errors.Join(errs...)
}

func identity(raw source.RawProduct, key models.IdentityKey) string {
	if key == models.KeySKU {
		return raw.SKU
	}
	return raw.URL
}
