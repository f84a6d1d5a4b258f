package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	scalargo "github.com/bdpiprava/scalar-go"

	"shelf-sync/pkg/api"
	"shelf-sync/pkg/cache"
	"shelf-sync/pkg/config"
	"shelf-sync/pkg/logger"
	"shelf-sync/pkg/models"
	"shelf-sync/pkg/promo"
	"shelf-sync/pkg/reconcile"
	"shelf-sync/pkg/refresh"
	"shelf-sync/pkg/scrapers/ah"
	"shelf-sync/pkg/scrapers/dirk"
	"shelf-sync/pkg/scrapers/hoogvliet"
	"shelf-sync/pkg/scrapers/render"
	"shelf-sync/pkg/source"
	"shelf-sync/pkg/store"
	"shelf-sync/pkg/translate"
	"shelf-sync/pkg/units"
)

type server struct {
	runner  *refresh.Runner
	store   *store.Store
	specDir string
	// refreshes bounds concurrent refresh requests
	refreshes chan struct{}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.StoreDSN(store.MySQLDSN))
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	translator, closeCache, err := newTranslator(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize translation cache: %v", err)
	}
	defer closeCache()

	runner := refresh.NewRunner(st, translator, newFetchers(cfg)...)
	log.Printf("Refreshing sources: %v", runner.Sources())

	srv := &server{
		runner:    runner,
		store:     st,
		specDir:   cfg.Server.SpecDir,
		refreshes: make(chan struct{}, cfg.Server.MaxConcurrentRefreshes),
	}

	port := cfg.Server.Port
	ip := GetOutboundIP()
	if ip != nil {
		fmt.Printf("Local Network URL: http://%s:%s\n", ip.String(), port)
	} else {
		fmt.Println("Could not determine local IP address.")
	}
	fmt.Printf("Access URL: http://localhost:%s\n", port)
	fmt.Printf("API Docs: http://localhost:%s/\n", port)

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	logger.Flush()
}

// newTranslator returns nil when no translation endpoint is configured.
func newTranslator(ctx context.Context, cfg *config.Config) (translate.Translator, func(), error) {
	var cs cache.Store
	var err error
	switch cfg.Cache.Type {
	case "redis":
		cs, err = cache.NewRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.TTL)
	case "memory":
		cs = cache.NewMemory(cfg.Cache.TTL)
	default:
		cs, err = cache.NewSQLite(cfg.Cache.Path, cfg.Cache.TTL)
	}
	if err != nil {
		return nil, func() {}, err
	}
	log.Printf("Cache initialized (%s) with TTL %v", cfg.Cache.Type, cfg.Cache.TTL)

	if cfg.Translate.Endpoint == "" {
		return nil, func() { cs.Close() }, nil
	}
	next := translate.NewHTTP(cfg.Translate.Endpoint, cfg.Translate.APIKey, cfg.Translate.Source, cfg.Translate.Target, cfg.Translate.Rate)
	return translate.NewCached(next, cs, cfg.Translate.Source, cfg.Translate.Target), func() { cs.Close() }, nil
}

func newFetchers(cfg *config.Config) []source.Fetcher {
	var fetchers []source.Fetcher
	for _, name := range cfg.Sources.Enabled {
		switch name {
		case ah.Source:
			c := cfg.Sources.AH
			pages := ah.NewPageScraper()
			pages.BaseURL = c.BaseURL
			if c.Render {
				pages.Renderer = render.NewRenderer()
			}
			f := ah.NewFetcher(pages, ah.NewAPIClient(c.APIBaseURL, c.Rate))
			f.Workers = c.Workers
			f.MaxPages = c.MaxPages
			fetchers = append(fetchers, f)
		case dirk.Source:
			c := cfg.Sources.Dirk
			s := dirk.NewScraper()
			s.BaseURL = c.BaseURL
			s.SitemapURL = c.SitemapURL
			s.Workers = c.Workers
			fetchers = append(fetchers, s)
		case hoogvliet.Source:
			c := cfg.Sources.Hoogvliet
			h := hoogvliet.NewClient(c.Rate)
			h.SearchURL = c.SearchURL
			h.PricesURL = c.PricesURL
			h.BatchSize = c.BatchSize
			if !c.ValidityPages {
				h.Pages = nil
			}
			fetchers = append(fetchers, h)
		}
	}
	return fetchers
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.rootHandler)
	mux.HandleFunc("POST /units/normalize", unitsHandler)
	mux.HandleFunc("POST /promotions/resolve", resolveHandler)
	mux.HandleFunc("POST /stores/{source}/reconcile", s.reconcileHandler)
	mux.HandleFunc("POST /stores/{source}/refresh", s.refreshHandler)
	mux.HandleFunc("GET /stores/{source}/records.csv", s.exportHandler)
	mux.HandleFunc("GET /stores/{source}/runs", s.runsHandler)
	return mux
}

func (s *server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		api.WriteNotFound(w, "No route for "+r.Method+" "+r.URL.Path, r.URL.Path)
		return
	}

	// Serve Scalar docs on root path
	html, err := scalargo.NewV2(
		scalargo.WithSpecDir(s.specDir),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle("Shelf Sync API"),
		),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

func GetOutboundIP() net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		addrs, _ := net.InterfaceAddrs()
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					return ipnet.IP
				}
			}
		}
		return nil
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
		api.WriteInternalServerError(w, fmt.Errorf("failed to encode response"), r.URL.Path)
	}
}

type unitsRequest struct {
	Text string `json:"text"`
}

type unitsResponse struct {
	Quantity float64         `json:"quantity"`
	Unit     models.UnitType `json:"unit"`
	Text     string          `json:"text"`
}

func unitsHandler(w http.ResponseWriter, r *http.Request) {
	var req unitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "Invalid JSON body. Expected {\"text\": \"...\"}.", r.URL.Path)
		return
	}

	qty, unit, ok := units.Normalize(req.Text)
	if !ok {
		api.WriteUnprocessable(w, fmt.Sprintf("Cannot read a quantity from %q", req.Text), r.URL.Path)
		return
	}
	writeJSON(w, r, unitsResponse{Quantity: qty, Unit: unit, Text: units.Format(qty, unit)})
}

func resolveHandler(w http.ResponseWriter, r *http.Request) {
	var payload promo.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.WriteBadRequest(w, "Invalid JSON body. Expected {\"name\", \"tokens\"} or {\"name\", \"offer\"}.", r.URL.Path)
		return
	}
	if len(payload.Tokens) == 0 && payload.Offer == nil {
		api.WriteBadRequest(w, "Either tokens or offer is required.", r.URL.Path)
		return
	}

	res, err := promo.NewAuto().Resolve(payload)
	if err != nil {
		api.WriteProblem(w, err, r.URL.Path)
		return
	}
	writeJSON(w, r, res)
}

type reconcileRequest struct {
	Key       models.IdentityKey       `json:"key"`
	Fresh     []models.ProductSnapshot `json:"fresh"`
	Persisted []models.CatalogRecord   `json:"persisted"`
}

func (s *server) reconcileHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("source")

	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "Invalid JSON body. Expected {\"key\", \"fresh\", \"persisted\"}.", r.URL.Path)
		return
	}
	if req.Key == "" {
		req.Key = models.KeyURL
	}
	if !req.Key.Valid() {
		api.WriteBadRequest(w, fmt.Sprintf("Invalid key %q. Available: url, sku", req.Key), r.URL.Path)
		return
	}

	for i := range req.Fresh {
		if req.Fresh[i].Identity == "" {
			req.Fresh[i].Identity = req.Fresh[i].IdentityFor(req.Key)
		}
	}

	plan := reconcile.Reconcile(reconcile.Index(req.Fresh), reconcile.IndexRecords(req.Persisted, req.Key))
	plan.Source = name
	writeJSON(w, r, plan)
}

func (s *server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("source")
	cadence := models.CadenceDaily
	if v := r.URL.Query().Get("cadence"); v != "" {
		cadence = models.Cadence(v)
	}
	if !cadence.Valid() {
		api.WriteBadRequest(w, fmt.Sprintf("Invalid cadence %q. Available: full, daily, weekly", cadence), r.URL.Path)
		return
	}

	// Acquire semaphore to prevent system overload
	s.refreshes <- struct{}{}
	defer func() { <-s.refreshes }()

	report, err := s.runner.Run(r.Context(), name, cadence)
	if err != nil {
		log.Printf("Error refreshing %s: %v", name, err)
		api.WriteProblem(w, err, r.URL.Path)
		return
	}
	writeJSON(w, r, report)
}

func (s *server) knownSource(w http.ResponseWriter, r *http.Request, name string) bool {
	if _, ok := s.runner.Fetchers[name]; !ok {
		api.WriteProblem(w, fmt.Errorf("%w: %q", models.ErrUnknownSource, name), r.URL.Path)
		return false
	}
	return true
}

func (s *server) exportHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("source")
	if !s.knownSource(w, r, name) {
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
	n, err := s.store.ExportCSV(r.Context(), w, name)
	if err != nil {
		log.Printf("Error exporting %s after %d records: %v", name, n, err)
		return
	}
	logger.Dedup("Exported %d %s records", n, name)
}

func (s *server) runsHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("source")
	if !s.knownSource(w, r, name) {
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			api.WriteBadRequest(w, fmt.Sprintf("Invalid limit: %s", v), r.URL.Path)
			return
		}
		limit = parsed
	}

	runs, err := s.store.Runs(r.Context(), name, limit)
	if err != nil {
		api.WriteInternalServerError(w, err, r.URL.Path)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, r, runs)
}
