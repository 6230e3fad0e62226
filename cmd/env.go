package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cashback-intel/internal/admission"
	"github.com/sells-group/cashback-intel/internal/db"
	"github.com/sells-group/cashback-intel/internal/fetcher"
	"github.com/sells-group/cashback-intel/internal/model"
	"github.com/sells-group/cashback-intel/internal/patterns"
	"github.com/sells-group/cashback-intel/internal/resilience"
	"github.com/sells-group/cashback-intel/internal/sites"
	"github.com/sells-group/cashback-intel/internal/store"
	"github.com/sells-group/cashback-intel/internal/validate"
)

// initStore opens and migrates the configured run store. Callers close it.
func initStore(ctx context.Context) (store.Store, error) {
	dsn := cfg.Store.DatabaseURL
	if dsn == "" && cfg.Store.Driver != "postgres" {
		dsn = "cashback.db"
	}
	st, err := store.Open(ctx, cfg.Store.Driver, dsn, db.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func decayConfig() patterns.DecayConfig {
	return patterns.DecayConfig{HalfLifeDays: cfg.Patterns.HalfLifeDays, Floor: cfg.Patterns.Floor}
}

func openPatterns() (*patterns.Store, error) {
	return patterns.Open(cfg.Patterns.Path, decayConfig())
}

func loadCatalog() (*sites.Catalog, error) {
	if cfg.SitesFile == "" {
		return sites.Defaults(), nil
	}
	return sites.Load(cfg.SitesFile)
}

// resolveTargets maps site names to catalog targets. No names means every
// catalogued site.
func resolveTargets(catalog *sites.Catalog, names []string) ([]model.CrawlTarget, error) {
	if len(names) == 0 {
		return catalog.All(), nil
	}
	targets := make([]model.CrawlTarget, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		t, err := catalog.Get(n)
		if err != nil {
			return nil, err
		}
		if seen[t.Site] {
			continue
		}
		seen[t.Site] = true
		targets = append(targets, t)
	}
	return targets, nil
}

// fetchEnv groups the fetch-side collaborators shared by crawl and validate.
type fetchEnv struct {
	Fetcher    *fetcher.HTTPFetcher
	Admission  *admission.Filter
	Validator  *validate.Validator
	Classifier *resilience.Classifier
	renderer   *fetcher.ChromeRenderer
}

// Close releases the headless browser, if any.
func (e *fetchEnv) Close() {
	if e.renderer != nil {
		e.renderer.Close()
	}
}

func initFetch() *fetchEnv {
	env := &fetchEnv{}

	timeout := time.Duration(cfg.Crawl.TimeoutSecs) * time.Second
	opts := fetcher.HTTPOptions{
		UserAgent:    cfg.Crawl.UserAgent,
		Timeout:      timeout,
		MaxBodyBytes: cfg.Crawl.MaxBodyBytes,
	}
	if cfg.Crawl.RenderJSShells {
		env.renderer = fetcher.NewChromeRenderer(timeout, 2*time.Second)
		opts.Renderer = env.renderer
	}
	env.Fetcher = fetcher.NewHTTPFetcher(opts)

	var admOpts []admission.Option
	if len(cfg.Admission.DenyPatterns) > 0 {
		admOpts = append(admOpts, admission.WithDenyPatterns(cfg.Admission.DenyPatterns))
	}
	admOpts = append(admOpts,
		admission.WithMaxLength(cfg.Admission.MaxLength),
		admission.WithMaxQueryParams(cfg.Admission.MaxQueryParams),
	)
	env.Admission = admission.New(admOpts...)

	env.Validator = validate.New(env.Fetcher, cfg.Crawl.Concurrency, time.Duration(cfg.Crawl.ProbeTimeoutSecs)*time.Second)
	env.Classifier = resilience.NewClassifier(resilience.FromCrawlSettings(
		cfg.Crawl.MaxRetries,
		cfg.Crawl.BackoffMillis,
		cfg.Crawl.MaxBackoffMillis,
		cfg.Crawl.RateLimitDelaySecs,
		cfg.Crawl.MinContentLength,
	))
	return env
}
