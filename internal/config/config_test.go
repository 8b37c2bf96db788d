package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "enrich.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "https://api.jina.ai", cfg.Jina.BaseURL)
	assert.Equal(t, "jina-embeddings-v3", cfg.Jina.Model)
	assert.InDelta(t, 0.35, cfg.Sector.SemanticThreshold, 0.001)
	assert.Equal(t, 10, cfg.Sector.SemanticTimeout)
	assert.True(t, cfg.Sources.CompanyCatalog.Enabled)
	assert.Equal(t, 10, cfg.Sources.CompanyCatalog.Priority)
	assert.True(t, cfg.Sources.Icecat.Enabled)
	assert.Equal(t, 60, cfg.Sources.Icecat.PerMinute)
	assert.Equal(t, 72, cfg.Sources.Icecat.CacheTTLHours)
	assert.True(t, cfg.Sources.GS1GPC.Enabled)
	assert.True(t, cfg.Sources.OpenFoodFacts.Enabled)
	assert.True(t, cfg.Sources.Wikidata.Enabled)
	assert.Equal(t, 1, cfg.Sources.Wikidata.Priority)
	assert.Equal(t, 15, cfg.Enrich.SourceTimeoutSecs)
	assert.Equal(t, 24, cfg.Enrich.DefaultCacheTTLHours)
	assert.Equal(t, 4, cfg.Enrich.BatchConcurrency)
	assert.Equal(t, 5, cfg.Enrich.BreakerThreshold)
	assert.True(t, cfg.Dedupe.Enabled)
	assert.InDelta(t, 0.95, cfg.Dedupe.Threshold, 0.001)
	assert.InDelta(t, 0.85, cfg.Learn.SimilarityThreshold, 0.001)
	assert.InDelta(t, 0.85, cfg.Learn.AutoApplyThreshold, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/enrich
log:
  level: debug
  format: console
sources:
  icecat:
    enabled: false
enrich:
  batch_concurrency: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/enrich", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Sources.Icecat.Enabled)
	assert.Equal(t, 8, cfg.Enrich.BatchConcurrency)
	// Defaults still apply for unset values
	assert.Equal(t, 15, cfg.Enrich.SourceTimeoutSecs)
	assert.True(t, cfg.Sources.Wikidata.Enabled)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ENRICH_STORE_DRIVER", "postgres")
	t.Setenv("ENRICH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chTempDir(t)

	t.Setenv("ENRICH_ENRICH_BATCH_CONCURRENCY", "12")
	t.Setenv("ENRICH_TENANT_ID", "acme")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Enrich.BatchConcurrency)
	assert.Equal(t, "acme", cfg.TenantID)
}

func TestDurationHelpers(t *testing.T) {
	cfg := EnrichConfig{
		SourceTimeoutSecs:    15,
		DefaultCacheTTLHours: 24,
		RateLimitWaitMS:      2000,
		BreakerCooldownSecs:  30,
	}
	assert.Equal(t, "15s", cfg.SourceTimeout().String())
	assert.Equal(t, "24h0m0s", cfg.DefaultCacheTTL().String())
	assert.Equal(t, "2s", cfg.RateLimitWait().String())
	assert.Equal(t, "30s", cfg.BreakerCooldown().String())

	src := SourceConfig{CacheTTLHours: 72}
	assert.Equal(t, "72h0m0s", src.CacheTTL().String())
}

func validConfig() *Config {
	return &Config{
		Store:  StoreConfig{Driver: "sqlite", DatabaseURL: "enrich.db"},
		Sector: SectorConfig{SemanticThreshold: 0.35},
		Dedupe: DedupeConfig{Threshold: 0.95},
		Learn:  LearnConfig{SimilarityThreshold: 0.85, AutoApplyThreshold: 0.85},
		Enrich: EnrichConfig{SourceTimeoutSecs: 15, BatchConcurrency: 4},
	}
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_BadDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestValidate_MissingDatabaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_ThresholdBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Dedupe.Threshold = 1.5
	cfg.Learn.SimilarityThreshold = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedupe.threshold")
	assert.Contains(t, err.Error(), "learn.similarity_threshold")
}

func TestValidate_ConcurrencyBounds(t *testing.T) {
	cfg := validConfig()

	cfg.Enrich.BatchConcurrency = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_concurrency must be between 1 and 50")

	cfg.Enrich.BatchConcurrency = 51
	err = cfg.Validate()
	require.Error(t, err)

	cfg.Enrich.BatchConcurrency = 50
	assert.NoError(t, cfg.Validate())
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
