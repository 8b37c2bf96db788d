package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/db"
	"github.com/sells-group/enrich-cli/internal/embedding"
	"github.com/sells-group/enrich-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}

	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool (used by tests with pgxmock).
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS enrichment_metadata (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	item_name       TEXT NOT NULL,
	item_type       TEXT NOT NULL,
	sector          TEXT NOT NULL,
	confidence      DOUBLE PRECISION NOT NULL,
	sources_matched JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(tenant_id, item_name, item_type)
);

CREATE TABLE IF NOT EXISTS corrections (
	id                TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL,
	original          JSONB NOT NULL,
	corrected         JSONB NOT NULL,
	field_corrections JSONB NOT NULL,
	name_embedding    JSONB,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS learned_rules (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL,
	field            TEXT NOT NULL,
	from_pattern     TEXT NOT NULL,
	to_value         TEXT NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL,
	occurrence_count INTEGER NOT NULL DEFAULT 0,
	success_count    INTEGER NOT NULL DEFAULT 0,
	failure_count    INTEGER NOT NULL DEFAULT 0,
	active           BOOLEAN NOT NULL DEFAULT true,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(tenant_id, field, from_pattern)
);

CREATE TABLE IF NOT EXISTS enrichment_cache (
	key        TEXT PRIMARY KEY,
	result     JSONB NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_metadata_tenant ON enrichment_metadata(tenant_id);
CREATE INDEX IF NOT EXISTS idx_metadata_sector ON enrichment_metadata(tenant_id, sector);
CREATE INDEX IF NOT EXISTS idx_corrections_tenant ON corrections(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_rules_tenant ON learned_rules(tenant_id, active);
CREATE INDEX IF NOT EXISTS idx_cache_expires ON enrichment_cache(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertMetadata(ctx context.Context, md model.EnrichmentMetadata) (string, error) {
	if md.ID == "" {
		md.ID = uuid.New().String()
	}
	sources, err := json.Marshal(md.SourcesMatched)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal sources")
	}

	var id string
	err = s.pool.QueryRow(ctx, `
		INSERT INTO enrichment_metadata (id, tenant_id, item_name, item_type, sector, confidence, sources_matched, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, item_name, item_type) DO UPDATE SET
			sector = EXCLUDED.sector,
			confidence = EXCLUDED.confidence,
			sources_matched = EXCLUDED.sources_matched
		RETURNING id`,
		md.ID, md.TenantID, md.ItemName, string(md.ItemType), string(md.Sector), md.Confidence, sources, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return "", eris.Wrap(err, "postgres: upsert metadata")
	}
	return id, nil
}

func (s *PostgresStore) GetMetadata(ctx context.Context, tenantID, itemName string, itemType model.ItemType) (*model.EnrichmentMetadata, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, item_name, item_type, sector, confidence, sources_matched, created_at
		FROM enrichment_metadata WHERE tenant_id = $1 AND item_name = $2 AND item_type = $3`,
		tenantID, itemName, string(itemType),
	)

	var md model.EnrichmentMetadata
	var itemTypeStr, sectorStr string
	var sourcesJSON []byte
	err := row.Scan(&md.ID, &md.TenantID, &md.ItemName, &itemTypeStr, &sectorStr, &md.Confidence, &sourcesJSON, &md.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get metadata")
	}
	md.ItemType = model.ItemType(itemTypeStr)
	md.Sector = model.Sector(sectorStr)
	if err := json.Unmarshal(sourcesJSON, &md.SourcesMatched); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal sources")
	}
	return &md, nil
}

func (s *PostgresStore) SectorStats(ctx context.Context, tenantID string) ([]model.SectorStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sector, COUNT(*), AVG(confidence)
		FROM enrichment_metadata WHERE tenant_id = $1
		GROUP BY sector ORDER BY COUNT(*) DESC`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: sector stats")
	}
	defer rows.Close()

	var stats []model.SectorStats
	for rows.Next() {
		var st model.SectorStats
		var sectorStr string
		var count int64
		if err := rows.Scan(&sectorStr, &count, &st.AvgConfidence); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sector stats")
		}
		st.Sector = model.Sector(sectorStr)
		st.Count = int(count)
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: sector stats rows")
}

// UpsertMetadataBatch bulk-upserts metadata rows for batch enrichment runs
// via a temp table and COPY.
func (s *PostgresStore) UpsertMetadataBatch(ctx context.Context, mds []model.EnrichmentMetadata) (int64, error) {
	if len(mds) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	rows := make([][]any, 0, len(mds))
	for _, md := range mds {
		id := md.ID
		if id == "" {
			id = uuid.New().String()
		}
		sources, err := json.Marshal(md.SourcesMatched)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal sources")
		}
		rows = append(rows, []any{id, md.TenantID, md.ItemName, string(md.ItemType), string(md.Sector), md.Confidence, sources, now})
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "enrichment_metadata",
		Columns:      []string{"id", "tenant_id", "item_name", "item_type", "sector", "confidence", "sources_matched", "created_at"},
		ConflictKeys: []string{"tenant_id", "item_name", "item_type"},
		UpdateCols:   []string{"sector", "confidence", "sources_matched"},
	}, rows)
}

func (s *PostgresStore) AppendCorrection(ctx context.Context, rec model.CorrectionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	original, err := json.Marshal(rec.Original)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal original")
	}
	corrected, err := json.Marshal(rec.Corrected)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal corrected")
	}
	diffs, err := json.Marshal(rec.FieldCorrections)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal field corrections")
	}
	var embJSON []byte
	if len(rec.NameEmbedding) > 0 {
		embJSON, err = json.Marshal(rec.NameEmbedding)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal embedding")
		}
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO corrections (id, tenant_id, original, corrected, field_corrections, name_embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.TenantID, original, corrected, diffs, embJSON, createdAt,
	)
	return eris.Wrap(err, "postgres: insert correction")
}

func (s *PostgresStore) SimilarCorrections(ctx context.Context, tenantID string, emb []float32, threshold float64, limit int) ([]SimilarCorrection, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, original, corrected, field_corrections, name_embedding, created_at
		FROM corrections WHERE tenant_id = $1 AND name_embedding IS NOT NULL
		ORDER BY created_at DESC LIMIT $2`,
		tenantID, similarityScanLimit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query corrections")
	}
	defer rows.Close()

	var matches []SimilarCorrection
	for rows.Next() {
		var rec model.CorrectionRecord
		var original, corrected, diffs, embJSON []byte
		if err := rows.Scan(&rec.ID, &rec.TenantID, &original, &corrected, &diffs, &embJSON, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan correction")
		}
		if err := json.Unmarshal(original, &rec.Original); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal original")
		}
		if err := json.Unmarshal(corrected, &rec.Corrected); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal corrected")
		}
		if err := json.Unmarshal(diffs, &rec.FieldCorrections); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal field corrections")
		}
		if len(embJSON) > 0 {
			if err := json.Unmarshal(embJSON, &rec.NameEmbedding); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal embedding")
			}
		}
		sim := embedding.Cosine(emb, rec.NameEmbedding)
		if sim >= threshold {
			matches = append(matches, SimilarCorrection{Record: rec, Similarity: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: corrections rows")
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *PostgresStore) GetRule(ctx context.Context, tenantID, field, fromPattern string) (*model.LearnedRule, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, field, from_pattern, to_value, confidence, occurrence_count, success_count, failure_count, active, updated_at
		FROM learned_rules WHERE tenant_id = $1 AND field = $2 AND from_pattern = $3`,
		tenantID, field, fromPattern,
	)
	var rule model.LearnedRule
	err := row.Scan(&rule.ID, &rule.TenantID, &rule.Field, &rule.FromPattern, &rule.ToValue,
		&rule.Confidence, &rule.OccurrenceCount, &rule.SuccessCount, &rule.FailureCount, &rule.Active, &rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get rule")
	}
	return &rule, nil
}

func (s *PostgresStore) UpsertRule(ctx context.Context, rule model.LearnedRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO learned_rules (id, tenant_id, field, from_pattern, to_value, confidence, occurrence_count, success_count, failure_count, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, field, from_pattern) DO UPDATE SET
			to_value = EXCLUDED.to_value,
			confidence = EXCLUDED.confidence,
			occurrence_count = EXCLUDED.occurrence_count,
			success_count = EXCLUDED.success_count,
			failure_count = EXCLUDED.failure_count,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		rule.ID, rule.TenantID, rule.Field, rule.FromPattern, rule.ToValue, rule.Confidence,
		rule.OccurrenceCount, rule.SuccessCount, rule.FailureCount, rule.Active, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: upsert rule")
}

func (s *PostgresStore) ListActiveRules(ctx context.Context, tenantID string) ([]model.LearnedRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, field, from_pattern, to_value, confidence, occurrence_count, success_count, failure_count, active, updated_at
		FROM learned_rules WHERE tenant_id = $1 AND active = true
		ORDER BY confidence DESC`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rules")
	}
	defer rows.Close()

	var rules []model.LearnedRule
	for rows.Next() {
		var rule model.LearnedRule
		if err := rows.Scan(&rule.ID, &rule.TenantID, &rule.Field, &rule.FromPattern, &rule.ToValue,
			&rule.Confidence, &rule.OccurrenceCount, &rule.SuccessCount, &rule.FailureCount, &rule.Active, &rule.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rule")
		}
		rules = append(rules, rule)
	}
	return rules, eris.Wrap(rows.Err(), "postgres: rules rows")
}

func (s *PostgresStore) GetCacheEntry(ctx context.Context, key string) (*model.EnrichmentResult, time.Time, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT result, expires_at FROM enrichment_cache
		WHERE key = $1 AND expires_at > now()`,
		key,
	)
	var resultJSON []byte
	var expiresAt time.Time
	err := row.Scan(&resultJSON, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, eris.Wrap(err, "postgres: get cache entry")
	}
	var result model.EnrichmentResult
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		return nil, time.Time{}, eris.Wrap(err, "postgres: unmarshal cache entry")
	}
	return &result, expiresAt, nil
}

func (s *PostgresStore) SetCacheEntry(ctx context.Context, key string, result model.EnrichmentResult, expiresAt time.Time) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cache entry")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO enrichment_cache (key, result, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET result = EXCLUDED.result, expires_at = EXCLUDED.expires_at`,
		key, resultJSON, expiresAt.UTC(),
	)
	return eris.Wrap(err, "postgres: set cache entry")
}

func (s *PostgresStore) CacheStats(ctx context.Context) (CacheStats, error) {
	var stats CacheStats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE expires_at <= now())
		FROM enrichment_cache`,
	).Scan(&stats.Entries, &stats.Expired)
	return stats, eris.Wrap(err, "postgres: cache stats")
}

func (s *PostgresStore) DeleteExpiredCacheEntries(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM enrichment_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired cache entries")
	}
	return int(tag.RowsAffected()), nil
}
