// Package store persists enrichment metadata, correction history, learned
// rules, and cached source results. Two implementations share one interface:
// SQLite for single-process use and Postgres for shared deployments.
// All persistence is best-effort from the orchestrator's point of view.
package store

import (
	"context"
	"time"

	"github.com/sells-group/enrich-cli/internal/model"
)

// CacheStats summarizes the persisted source-result cache.
type CacheStats struct {
	Entries int `json:"entries"`
	Expired int `json:"expired"`
}

// SimilarCorrection pairs a stored correction with its similarity to the
// query embedding.
type SimilarCorrection struct {
	Record     model.CorrectionRecord `json:"record"`
	Similarity float64                `json:"similarity"`
}

// Store is the persistence boundary for the enrichment pipeline.
type Store interface {
	// Enrichment metadata, keyed by (tenant, item name, item type).
	UpsertMetadata(ctx context.Context, md model.EnrichmentMetadata) (string, error)
	UpsertMetadataBatch(ctx context.Context, mds []model.EnrichmentMetadata) (int64, error)
	GetMetadata(ctx context.Context, tenantID, itemName string, itemType model.ItemType) (*model.EnrichmentMetadata, error)
	SectorStats(ctx context.Context, tenantID string) ([]model.SectorStats, error)

	// Correction history, append-only, with embedding similarity search.
	AppendCorrection(ctx context.Context, rec model.CorrectionRecord) error
	SimilarCorrections(ctx context.Context, tenantID string, embedding []float32, threshold float64, limit int) ([]SimilarCorrection, error)

	// Learned rules, upserted by (tenant, field, from pattern).
	GetRule(ctx context.Context, tenantID, field, fromPattern string) (*model.LearnedRule, error)
	UpsertRule(ctx context.Context, rule model.LearnedRule) error
	ListActiveRules(ctx context.Context, tenantID string) ([]model.LearnedRule, error)

	// Source result cache persistence (cache.Backing).
	GetCacheEntry(ctx context.Context, key string) (*model.EnrichmentResult, time.Time, error)
	SetCacheEntry(ctx context.Context, key string, result model.EnrichmentResult, expiresAt time.Time) error
	DeleteExpiredCacheEntries(ctx context.Context) (int, error)
	CacheStats(ctx context.Context) (CacheStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
