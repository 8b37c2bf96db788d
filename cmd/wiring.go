package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/cache"
	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/embedding"
	"github.com/sells-group/enrich-cli/internal/enrich"
	"github.com/sells-group/enrich-cli/internal/learn"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/ratelimit"
	"github.com/sells-group/enrich-cli/internal/resilience"
	"github.com/sells-group/enrich-cli/internal/sector"
	"github.com/sells-group/enrich-cli/internal/source"
	"github.com/sells-group/enrich-cli/internal/store"
	"github.com/sells-group/enrich-cli/pkg/jina"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "enrich.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEmbedder returns the embeddings client, or nil when no API key is
// configured. Everything downstream treats a nil embedder as "semantic
// features unavailable" and degrades to keyword-only behavior.
func initEmbedder() embedding.Embedder {
	if cfg.Jina.Key == "" {
		zap.L().Info("no jina api key configured, semantic features disabled")
		return nil
	}
	return jina.NewClient(cfg.Jina.Key,
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithModel(cfg.Jina.Model),
	)
}

func initDetector(embedder embedding.Embedder) (*sector.Detector, error) {
	keywords := sector.DefaultKeywords()
	if cfg.Sector.KeywordsPath != "" {
		var err error
		keywords, err = sector.LoadKeywords(cfg.Sector.KeywordsPath)
		if err != nil {
			return nil, eris.Wrap(err, "load sector keywords")
		}
	}
	opts := sector.DefaultOptions()
	opts.SemanticThreshold = cfg.Sector.SemanticThreshold
	if cfg.Sector.SemanticTimeout > 0 {
		opts.SemanticTimeout = time.Duration(cfg.Sector.SemanticTimeout) * time.Second
	}
	return sector.NewDetector(keywords, embedder, opts), nil
}

func initRegistry(ctx context.Context) (*source.Registry, error) {
	registry := source.NewRegistry()

	register := func(src source.Source, sc config.SourceConfig) error {
		if !sc.Enabled {
			return nil
		}
		if len(sc.Sectors) > 0 {
			sectors, err := parseSectors(sc.Sectors)
			if err != nil {
				return eris.Wrapf(err, "source %s", src.Name())
			}
			src = source.WithSectors(src, sectors)
		}
		src.Init(ctx)
		return registry.Register(src, sc.Priority)
	}

	catalogPath := cfg.Sources.CatalogPath
	if catalogPath == "" {
		catalogPath = "catalog.yaml"
	}
	if err := register(source.NewCompanyCatalog(catalogPath), cfg.Sources.CompanyCatalog); err != nil {
		return nil, err
	}
	if err := register(source.NewIcecat(cfg.Sources.IcecatUsername), cfg.Sources.Icecat); err != nil {
		return nil, err
	}
	if err := register(source.NewGS1GPC(), cfg.Sources.GS1GPC); err != nil {
		return nil, err
	}
	if err := register(source.NewOpenFoodFacts(), cfg.Sources.OpenFoodFacts); err != nil {
		return nil, err
	}
	if err := register(source.NewWikidata(), cfg.Sources.Wikidata); err != nil {
		return nil, err
	}
	return registry, nil
}

// parseSectors validates a configured sector list against the known sectors.
func parseSectors(names []string) ([]model.Sector, error) {
	valid := make(map[model.Sector]bool, len(model.AllSectors))
	for _, s := range model.AllSectors {
		valid[s] = true
	}
	out := make([]model.Sector, 0, len(names))
	for _, n := range names {
		s := model.Sector(strings.ToLower(strings.TrimSpace(n)))
		if !valid[s] {
			return nil, eris.Errorf("unknown sector %q", n)
		}
		out = append(out, s)
	}
	return out, nil
}

func sourceBudgets() map[string]ratelimit.Budget {
	budgets := make(map[string]ratelimit.Budget)
	for name, sc := range namedSourceConfigs() {
		if sc.PerMinute > 0 {
			budgets[name] = ratelimit.Budget{PerMinute: sc.PerMinute, Burst: sc.Burst}
		}
	}
	return budgets
}

func sourceCacheTTLs() map[string]time.Duration {
	ttls := make(map[string]time.Duration)
	for name, sc := range namedSourceConfigs() {
		if sc.CacheTTLHours > 0 {
			ttls[name] = sc.CacheTTL()
		}
	}
	return ttls
}

func namedSourceConfigs() map[string]config.SourceConfig {
	return map[string]config.SourceConfig{
		"company_catalog": cfg.Sources.CompanyCatalog,
		"icecat":          cfg.Sources.Icecat,
		"gs1_gpc":         cfg.Sources.GS1GPC,
		"openfoodfacts":   cfg.Sources.OpenFoodFacts,
		"wikidata":        cfg.Sources.Wikidata,
	}
}

// initOrchestrator wires the full enrichment pipeline over the given store.
func initOrchestrator(ctx context.Context, st store.Store) (*enrich.Orchestrator, error) {
	embedder := initEmbedder()

	detector, err := initDetector(embedder)
	if err != nil {
		return nil, err
	}
	registry, err := initRegistry(ctx)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(sourceBudgets(), cfg.Enrich.RateLimitWait())

	var dedupe *enrich.Deduplicator
	if cfg.Dedupe.Enabled && embedder != nil {
		dedupe = enrich.NewDeduplicator(embedder, cfg.Dedupe.Threshold)
	}

	resultCache := cache.New(st)

	return enrich.New(registry, detector, resultCache, limiter, dedupe, st, enrich.Config{
		SourceTimeout:    cfg.Enrich.SourceTimeout(),
		DefaultCacheTTL:  cfg.Enrich.DefaultCacheTTL(),
		CacheTTLs:        sourceCacheTTLs(),
		BatchConcurrency: cfg.Enrich.BatchConcurrency,
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Enrich.BreakerThreshold,
			Cooldown:         cfg.Enrich.BreakerCooldown(),
		},
	}), nil
}

func initLearner(st store.Store) *learn.Learner {
	return learn.New(st, initEmbedder(), learn.Config{
		SimilarityThreshold: cfg.Learn.SimilarityThreshold,
	})
}
