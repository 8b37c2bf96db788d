// Package enrich coordinates sector detection, source fan-out, result
// merging, and duplicate detection for extracted items.
package enrich

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/enrich-cli/internal/cache"
	"github.com/sells-group/enrich-cli/internal/identity"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/ratelimit"
	"github.com/sells-group/enrich-cli/internal/resilience"
	"github.com/sells-group/enrich-cli/internal/sector"
	"github.com/sells-group/enrich-cli/internal/source"
	"github.com/sells-group/enrich-cli/internal/store"
)

// Options controls a single Enrich or EnrichBatch call.
type Options struct {
	// TenantID scopes persistence; empty disables metadata writes.
	TenantID string
	// IndustryContext is an optional hint fed to sector detection.
	IndustryContext string
	// SkipCache bypasses cached source results and does not write new ones.
	SkipCache bool
	// Concurrency bounds batch parallelism; <=0 uses the configured default.
	Concurrency int
	// MinConfidence suppresses field contributions from source results whose
	// confidence falls below it. Zero accepts everything.
	MinConfidence float64
}

// Config holds orchestrator tuning knobs.
type Config struct {
	// SourceTimeout bounds each individual source call. Default 15s.
	SourceTimeout time.Duration
	// DefaultCacheTTL applies to sources without a per-source TTL. Default 24h.
	DefaultCacheTTL time.Duration
	// CacheTTLs maps source name to TTL, overriding DefaultCacheTTL.
	CacheTTLs map[string]time.Duration
	// BatchConcurrency is the default item-level parallelism. Default 4.
	BatchConcurrency int
	// Breaker configures the per-source circuit breakers.
	Breaker resilience.BreakerConfig
}

func (c Config) withDefaults() Config {
	if c.SourceTimeout <= 0 {
		c.SourceTimeout = 15 * time.Second
	}
	if c.DefaultCacheTTL <= 0 {
		c.DefaultCacheTTL = 24 * time.Hour
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = 4
	}
	return c
}

// BatchResult is the outcome of EnrichBatch.
type BatchResult struct {
	Items    []model.EnrichedItem     `json:"items"`
	Clusters []model.DuplicateCluster `json:"clusters,omitempty"`
	Stats    model.EnrichmentStats    `json:"stats"`
}

// Orchestrator runs the enrichment pipeline for one item or a batch.
type Orchestrator struct {
	registry *source.Registry
	detector *sector.Detector
	cache    *cache.Cache
	limiter  *ratelimit.Limiter
	breakers *resilience.BreakerSet
	dedupe   *Deduplicator
	store    store.Store
	cfg      Config
}

// New wires an Orchestrator. store and dedupe may be nil; persistence and
// duplicate detection are then skipped.
func New(registry *source.Registry, detector *sector.Detector, c *cache.Cache, limiter *ratelimit.Limiter, dedupe *Deduplicator, st store.Store, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		registry: registry,
		detector: detector,
		cache:    c,
		limiter:  limiter,
		breakers: resilience.NewBreakerSet(cfg.Breaker),
		dedupe:   dedupe,
		store:    st,
		cfg:      cfg,
	}
}

// Enrich runs the full pipeline for one item: sector detection, source
// fan-out, merge, provenance, and best-effort persistence. Individual source
// failures never abort the call; the failing source is simply absent from the
// enrichment list and its reasoning is logged. On caller cancellation the
// partial result is returned together with the context error.
func (o *Orchestrator) Enrich(ctx context.Context, item model.ExtractedItem, opts Options) (model.EnrichedItem, error) {
	start := time.Now()

	enriched := model.EnrichedItem{
		ExtractedItem: item,
		Fields:        make(map[string]any),
		Provenance: model.Provenance{
			SessionID: uuid.New().String(),
		},
	}

	enriched.Sector = o.detector.Detect(ctx, item, opts.IndustryContext)
	sources := o.registry.SourcesFor(enriched.Sector.Sector)

	results := make([]model.EnrichmentResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			results[i] = o.querySource(gctx, src, item, opts)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	// Only sources that actually contributed something appear in the
	// enrichment list; failures and non-matches stay in provenance and logs.
	enriched.Enrichment = make([]model.EnrichmentResult, 0, len(results))
	for _, r := range results {
		enriched.Provenance.SourcesQueried = append(enriched.Provenance.SourcesQueried, r.Source)
		if r.Empty() {
			if len(r.Reasoning) > 0 {
				zap.L().Debug("source contributed nothing",
					zap.String("item", item.Name),
					zap.String("source", r.Source),
					zap.Strings("reasoning", r.Reasoning))
			}
			continue
		}
		enriched.Provenance.SourcesMatched = append(enriched.Provenance.SourcesMatched, r.Source)
		enriched.Enrichment = append(enriched.Enrichment, r)
	}

	m := merge(results, opts.MinConfidence)
	enriched.Fields = m.fields
	enriched.ConfidenceOverall = m.overall
	enriched.Provenance.FieldWinners = m.winners
	enriched.Provenance.ProcessingMS = time.Since(start).Milliseconds()

	if err := ctx.Err(); err != nil {
		zap.L().Debug("enrichment canceled, returning partial result",
			zap.String("item", item.Name),
			zap.Int("sources_matched", len(enriched.Provenance.SourcesMatched)))
		return enriched, err
	}

	o.persist(ctx, opts.TenantID, &enriched)
	return enriched, nil
}

// querySource resolves one source's answer: cached result, or a live call
// guarded by the breaker, the rate limiter, and the per-source timeout.
func (o *Orchestrator) querySource(ctx context.Context, src source.Source, item model.ExtractedItem, opts Options) model.EnrichmentResult {
	name := src.Name()
	key := identity.CacheKey(name, item)

	if !opts.SkipCache && o.cache != nil {
		if cached, ok := o.cache.Get(ctx, key); ok {
			return cached
		}
	}

	br := o.breakers.For(name)
	if err := br.Allow(); err != nil {
		return model.ZeroResult(name, "source suspended after repeated failures")
	}

	if o.limiter != nil {
		if err := o.limiter.Acquire(ctx, name); err != nil {
			if ctx.Err() != nil {
				return model.ZeroResult(name, "canceled before source call")
			}
			zap.L().Debug("rate limit exhausted, skipping source",
				zap.String("source", name), zap.String("item", item.Name))
			return model.ZeroResult(name, "rate limit budget exhausted")
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.SourceTimeout)
	defer cancel()

	result, err := src.Enrich(callCtx, item, source.Options{SkipCache: opts.SkipCache, Timeout: o.cfg.SourceTimeout})
	br.Record(err)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return model.ZeroResult(name, "canceled before source call")
		case callCtx.Err() != nil:
			zap.L().Warn("source timed out", zap.String("source", name), zap.String("item", item.Name))
			return model.ZeroResult(name, "source timed out")
		default:
			zap.L().Warn("source failed", zap.String("source", name), zap.String("item", item.Name), zap.Error(err))
			return model.ZeroResult(name, "source error: "+err.Error())
		}
	}

	if !opts.SkipCache && o.cache != nil && !result.Empty() {
		o.cache.Set(ctx, key, result, o.ttlFor(name))
	}
	return result
}

func (o *Orchestrator) ttlFor(name string) time.Duration {
	if ttl, ok := o.cfg.CacheTTLs[name]; ok && ttl > 0 {
		return ttl
	}
	return o.cfg.DefaultCacheTTL
}

// persist writes enrichment metadata best-effort; failure is logged, never
// surfaced to the caller.
func (o *Orchestrator) persist(ctx context.Context, tenantID string, enriched *model.EnrichedItem) {
	if o.store == nil || tenantID == "" {
		return
	}
	id, err := o.store.UpsertMetadata(ctx, model.EnrichmentMetadata{
		TenantID:       tenantID,
		ItemName:       enriched.Name,
		ItemType:       enriched.Type,
		Sector:         enriched.Sector.Sector,
		Confidence:     enriched.ConfidenceOverall,
		SourcesMatched: enriched.Provenance.SourcesMatched,
	})
	if err != nil {
		zap.L().Warn("failed to persist enrichment metadata",
			zap.String("item", enriched.Name), zap.Error(err))
		return
	}
	enriched.MetadataID = id
}

// persistBatch bulk-upserts metadata for a whole batch in one call. Like
// persist, failure is logged and never surfaced.
func (o *Orchestrator) persistBatch(ctx context.Context, tenantID string, enriched []model.EnrichedItem) {
	if o.store == nil || tenantID == "" || len(enriched) == 0 {
		return
	}
	mds := make([]model.EnrichmentMetadata, 0, len(enriched))
	for _, it := range enriched {
		mds = append(mds, model.EnrichmentMetadata{
			TenantID:       tenantID,
			ItemName:       it.Name,
			ItemType:       it.Type,
			Sector:         it.Sector.Sector,
			Confidence:     it.ConfidenceOverall,
			SourcesMatched: it.Provenance.SourcesMatched,
		})
	}
	n, err := o.store.UpsertMetadataBatch(ctx, mds)
	if err != nil {
		zap.L().Warn("failed to persist batch metadata",
			zap.String("tenant", tenantID), zap.Error(err))
		return
	}
	zap.L().Debug("persisted batch metadata", zap.Int64("rows", n))
}

// EnrichBatch enriches items concurrently, then clusters duplicates across
// the results. Item order is preserved. Per-item context errors (partial
// results) are tolerated; the batch itself only fails if ctx is canceled
// before all items complete, in which case the partial batch is returned.
func (o *Orchestrator) EnrichBatch(ctx context.Context, items []model.ExtractedItem, opts Options) (BatchResult, error) {
	start := time.Now()

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = o.cfg.BatchConcurrency
	}

	// Batch persistence goes through one bulk upsert after all items finish,
	// so per-item writes are disabled here.
	itemOpts := opts
	itemOpts.TenantID = ""

	out := make([]model.EnrichedItem, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			enriched, err := o.Enrich(gctx, item, itemOpts)
			out[i] = enriched
			if err != nil && gctx.Err() == nil {
				zap.L().Warn("batch item enrichment failed", zap.String("item", item.Name), zap.Error(err))
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	if ctx.Err() == nil {
		o.persistBatch(ctx, opts.TenantID, out)
	}

	result := BatchResult{Items: out}
	if o.dedupe != nil && ctx.Err() == nil {
		result.Clusters = o.dedupe.Cluster(ctx, out)
	}

	var confSum float64
	for _, it := range out {
		if len(it.Provenance.SourcesMatched) > 0 {
			result.Stats.Enriched++
		}
		confSum += it.ConfidenceOverall
	}
	result.Stats.Total = len(out)
	if len(out) > 0 {
		result.Stats.AvgConfidence = confSum / float64(len(out))
	}
	result.Stats.ProcessingMS = time.Since(start).Milliseconds()

	return result, ctx.Err()
}
