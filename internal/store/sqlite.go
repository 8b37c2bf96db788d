package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/enrich-cli/internal/embedding"
	"github.com/sells-group/enrich-cli/internal/model"
)

// similarityScanLimit caps how many recent corrections are loaded for a
// similarity query; embeddings are compared in Go.
const similarityScanLimit = 500

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS enrichment_metadata (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	item_name       TEXT NOT NULL,
	item_type       TEXT NOT NULL,
	sector          TEXT NOT NULL,
	confidence      REAL NOT NULL,
	sources_matched TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(tenant_id, item_name, item_type)
);

CREATE TABLE IF NOT EXISTS corrections (
	id                TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL,
	original          TEXT NOT NULL,
	corrected         TEXT NOT NULL,
	field_corrections TEXT NOT NULL,
	name_embedding    TEXT,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS learned_rules (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL,
	field            TEXT NOT NULL,
	from_pattern     TEXT NOT NULL,
	to_value         TEXT NOT NULL,
	confidence       REAL NOT NULL,
	occurrence_count INTEGER NOT NULL DEFAULT 0,
	success_count    INTEGER NOT NULL DEFAULT 0,
	failure_count    INTEGER NOT NULL DEFAULT 0,
	active           INTEGER NOT NULL DEFAULT 1,
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(tenant_id, field, from_pattern)
);

CREATE TABLE IF NOT EXISTS enrichment_cache (
	key        TEXT PRIMARY KEY,
	result     TEXT NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_metadata_tenant ON enrichment_metadata(tenant_id);
CREATE INDEX IF NOT EXISTS idx_metadata_sector ON enrichment_metadata(tenant_id, sector);
CREATE INDEX IF NOT EXISTS idx_corrections_tenant ON corrections(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_rules_tenant ON learned_rules(tenant_id, active);
CREATE INDEX IF NOT EXISTS idx_cache_expires ON enrichment_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertMetadata(ctx context.Context, md model.EnrichmentMetadata) (string, error) {
	if md.ID == "" {
		md.ID = uuid.New().String()
	}
	sources, err := json.Marshal(md.SourcesMatched)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal sources")
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO enrichment_metadata (id, tenant_id, item_name, item_type, sector, confidence, sources_matched, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, item_name, item_type) DO UPDATE SET
			sector = excluded.sector,
			confidence = excluded.confidence,
			sources_matched = excluded.sources_matched`,
		md.ID, md.TenantID, md.ItemName, string(md.ItemType), string(md.Sector), md.Confidence, string(sources), now,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: upsert metadata")
	}

	// The insert id is discarded on conflict; read the surviving row id back.
	var id string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM enrichment_metadata WHERE tenant_id = ? AND item_name = ? AND item_type = ?`,
		md.TenantID, md.ItemName, string(md.ItemType),
	).Scan(&id)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: read metadata id")
	}
	return id, nil
}

// UpsertMetadataBatch writes every row inside one transaction so a batch run
// commits all-or-nothing. Returns the number of rows written.
func (s *SQLiteStore) UpsertMetadataBatch(ctx context.Context, mds []model.EnrichmentMetadata) (int64, error) {
	if len(mds) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin batch upsert")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO enrichment_metadata (id, tenant_id, item_name, item_type, sector, confidence, sources_matched, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, item_name, item_type) DO UPDATE SET
			sector = excluded.sector,
			confidence = excluded.confidence,
			sources_matched = excluded.sources_matched`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare batch upsert")
	}
	defer stmt.Close() //nolint:errcheck // closed with the transaction

	now := time.Now().UTC()
	for _, md := range mds {
		if md.ID == "" {
			md.ID = uuid.New().String()
		}
		sources, err := json.Marshal(md.SourcesMatched)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal sources")
		}
		if _, err := stmt.ExecContext(ctx,
			md.ID, md.TenantID, md.ItemName, string(md.ItemType), string(md.Sector), md.Confidence, string(sources), now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: batch upsert %q", md.ItemName)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit batch upsert")
	}
	return int64(len(mds)), nil
}

func (s *SQLiteStore) GetMetadata(ctx context.Context, tenantID, itemName string, itemType model.ItemType) (*model.EnrichmentMetadata, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, item_name, item_type, sector, confidence, sources_matched, created_at
		FROM enrichment_metadata WHERE tenant_id = ? AND item_name = ? AND item_type = ?`,
		tenantID, itemName, string(itemType),
	)

	var md model.EnrichmentMetadata
	var itemTypeStr, sectorStr, sourcesJSON string
	err := row.Scan(&md.ID, &md.TenantID, &md.ItemName, &itemTypeStr, &sectorStr, &md.Confidence, &sourcesJSON, &md.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get metadata")
	}
	md.ItemType = model.ItemType(itemTypeStr)
	md.Sector = model.Sector(sectorStr)
	if err := json.Unmarshal([]byte(sourcesJSON), &md.SourcesMatched); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal sources")
	}
	return &md, nil
}

func (s *SQLiteStore) SectorStats(ctx context.Context, tenantID string) ([]model.SectorStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sector, COUNT(*), AVG(confidence)
		FROM enrichment_metadata WHERE tenant_id = ?
		GROUP BY sector ORDER BY COUNT(*) DESC`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: sector stats")
	}
	defer rows.Close()

	var stats []model.SectorStats
	for rows.Next() {
		var st model.SectorStats
		var sectorStr string
		if err := rows.Scan(&sectorStr, &st.Count, &st.AvgConfidence); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sector stats")
		}
		st.Sector = model.Sector(sectorStr)
		stats = append(stats, st)
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: sector stats rows")
}

func (s *SQLiteStore) AppendCorrection(ctx context.Context, rec model.CorrectionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	original, err := json.Marshal(rec.Original)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal original")
	}
	corrected, err := json.Marshal(rec.Corrected)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal corrected")
	}
	diffs, err := json.Marshal(rec.FieldCorrections)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal field corrections")
	}
	var embJSON []byte
	if len(rec.NameEmbedding) > 0 {
		embJSON, err = json.Marshal(rec.NameEmbedding)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal embedding")
		}
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO corrections (id, tenant_id, original, corrected, field_corrections, name_embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TenantID, string(original), string(corrected), string(diffs), nullableString(embJSON), createdAt,
	)
	return eris.Wrap(err, "sqlite: insert correction")
}

func (s *SQLiteStore) SimilarCorrections(ctx context.Context, tenantID string, emb []float32, threshold float64, limit int) ([]SimilarCorrection, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, original, corrected, field_corrections, name_embedding, created_at
		FROM corrections WHERE tenant_id = ? AND name_embedding IS NOT NULL
		ORDER BY created_at DESC LIMIT ?`,
		tenantID, similarityScanLimit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query corrections")
	}
	defer rows.Close()

	var matches []SimilarCorrection
	for rows.Next() {
		rec, err := scanCorrection(rows)
		if err != nil {
			return nil, err
		}
		sim := embedding.Cosine(emb, rec.NameEmbedding)
		if sim >= threshold {
			matches = append(matches, SimilarCorrection{Record: rec, Similarity: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: corrections rows")
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// rowScanner lets scanCorrection work for both Row and Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCorrection(row rowScanner) (model.CorrectionRecord, error) {
	var rec model.CorrectionRecord
	var original, corrected, diffs string
	var embJSON sql.NullString
	if err := row.Scan(&rec.ID, &rec.TenantID, &original, &corrected, &diffs, &embJSON, &rec.CreatedAt); err != nil {
		return rec, eris.Wrap(err, "sqlite: scan correction")
	}
	if err := json.Unmarshal([]byte(original), &rec.Original); err != nil {
		return rec, eris.Wrap(err, "sqlite: unmarshal original")
	}
	if err := json.Unmarshal([]byte(corrected), &rec.Corrected); err != nil {
		return rec, eris.Wrap(err, "sqlite: unmarshal corrected")
	}
	if err := json.Unmarshal([]byte(diffs), &rec.FieldCorrections); err != nil {
		return rec, eris.Wrap(err, "sqlite: unmarshal field corrections")
	}
	if embJSON.Valid && embJSON.String != "" {
		if err := json.Unmarshal([]byte(embJSON.String), &rec.NameEmbedding); err != nil {
			return rec, eris.Wrap(err, "sqlite: unmarshal embedding")
		}
	}
	return rec, nil
}

func (s *SQLiteStore) GetRule(ctx context.Context, tenantID, field, fromPattern string) (*model.LearnedRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, field, from_pattern, to_value, confidence, occurrence_count, success_count, failure_count, active, updated_at
		FROM learned_rules WHERE tenant_id = ? AND field = ? AND from_pattern = ?`,
		tenantID, field, fromPattern,
	)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (s *SQLiteStore) UpsertRule(ctx context.Context, rule model.LearnedRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learned_rules (id, tenant_id, field, from_pattern, to_value, confidence, occurrence_count, success_count, failure_count, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, field, from_pattern) DO UPDATE SET
			to_value = excluded.to_value,
			confidence = excluded.confidence,
			occurrence_count = excluded.occurrence_count,
			success_count = excluded.success_count,
			failure_count = excluded.failure_count,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		rule.ID, rule.TenantID, rule.Field, rule.FromPattern, rule.ToValue, rule.Confidence,
		rule.OccurrenceCount, rule.SuccessCount, rule.FailureCount, boolToInt(rule.Active), now,
	)
	return eris.Wrap(err, "sqlite: upsert rule")
}

func (s *SQLiteStore) ListActiveRules(ctx context.Context, tenantID string) ([]model.LearnedRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, field, from_pattern, to_value, confidence, occurrence_count, success_count, failure_count, active, updated_at
		FROM learned_rules WHERE tenant_id = ? AND active = 1
		ORDER BY confidence DESC`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rules")
	}
	defer rows.Close()

	var rules []model.LearnedRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, eris.Wrap(rows.Err(), "sqlite: rules rows")
}

func scanRule(row rowScanner) (model.LearnedRule, error) {
	var rule model.LearnedRule
	var active int
	err := row.Scan(&rule.ID, &rule.TenantID, &rule.Field, &rule.FromPattern, &rule.ToValue,
		&rule.Confidence, &rule.OccurrenceCount, &rule.SuccessCount, &rule.FailureCount, &active, &rule.UpdatedAt)
	if err == sql.ErrNoRows {
		return rule, err
	}
	if err != nil {
		return rule, eris.Wrap(err, "sqlite: scan rule")
	}
	rule.Active = active != 0
	return rule, nil
}

func (s *SQLiteStore) GetCacheEntry(ctx context.Context, key string) (*model.EnrichmentResult, time.Time, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT result, expires_at FROM enrichment_cache
		WHERE key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	)
	var resultJSON string
	var expiresAt time.Time
	err := row.Scan(&resultJSON, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, eris.Wrap(err, "sqlite: get cache entry")
	}
	var result model.EnrichmentResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, time.Time{}, eris.Wrap(err, "sqlite: unmarshal cache entry")
	}
	return &result, expiresAt, nil
}

func (s *SQLiteStore) SetCacheEntry(ctx context.Context, key string, result model.EnrichmentResult, expiresAt time.Time) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cache entry")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO enrichment_cache (key, result, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET result = excluded.result, expires_at = excluded.expires_at`,
		key, string(resultJSON), expiresAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: set cache entry")
}

func (s *SQLiteStore) CacheStats(ctx context.Context) (CacheStats, error) {
	var stats CacheStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0)
		FROM enrichment_cache`,
		time.Now().UTC(),
	).Scan(&stats.Entries, &stats.Expired)
	return stats, eris.Wrap(err, "sqlite: cache stats")
}

func (s *SQLiteStore) DeleteExpiredCacheEntries(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM enrichment_cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired cache entries")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
