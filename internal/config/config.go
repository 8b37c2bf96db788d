package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	TenantID string        `yaml:"tenant_id" mapstructure:"tenant_id"`
	Store    StoreConfig   `yaml:"store" mapstructure:"store"`
	Jina     JinaConfig    `yaml:"jina" mapstructure:"jina"`
	Sector   SectorConfig  `yaml:"sector" mapstructure:"sector"`
	Sources  SourcesConfig `yaml:"sources" mapstructure:"sources"`
	Enrich   EnrichConfig  `yaml:"enrich" mapstructure:"enrich"`
	Dedupe   DedupeConfig  `yaml:"dedupe" mapstructure:"dedupe"`
	Learn    LearnConfig   `yaml:"learn" mapstructure:"learn"`
	Log      LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// JinaConfig holds Jina embeddings API settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// SectorConfig configures sector detection.
type SectorConfig struct {
	KeywordsPath      string  `yaml:"keywords_path" mapstructure:"keywords_path"`
	SemanticThreshold float64 `yaml:"semantic_threshold" mapstructure:"semantic_threshold"`
	SemanticTimeout   int     `yaml:"semantic_timeout_secs" mapstructure:"semantic_timeout_secs"`
}

// SourceConfig configures a single enrichment source.
type SourceConfig struct {
	Enabled       bool     `yaml:"enabled" mapstructure:"enabled"`
	Priority      int      `yaml:"priority" mapstructure:"priority"`
	PerMinute     int      `yaml:"per_minute" mapstructure:"per_minute"`
	Burst         int      `yaml:"burst" mapstructure:"burst"`
	CacheTTLHours int      `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	Sectors       []string `yaml:"sectors" mapstructure:"sectors"`
}

// SourcesConfig configures all enrichment sources.
type SourcesConfig struct {
	CompanyCatalog SourceConfig `yaml:"company_catalog" mapstructure:"company_catalog"`
	CatalogPath    string       `yaml:"catalog_path" mapstructure:"catalog_path"`
	Icecat         SourceConfig `yaml:"icecat" mapstructure:"icecat"`
	IcecatUsername string       `yaml:"icecat_username" mapstructure:"icecat_username"`
	GS1GPC         SourceConfig `yaml:"gs1_gpc" mapstructure:"gs1_gpc"`
	OpenFoodFacts  SourceConfig `yaml:"openfoodfacts" mapstructure:"openfoodfacts"`
	Wikidata       SourceConfig `yaml:"wikidata" mapstructure:"wikidata"`
}

// EnrichConfig configures the orchestrator.
type EnrichConfig struct {
	SourceTimeoutSecs    int `yaml:"source_timeout_secs" mapstructure:"source_timeout_secs"`
	DefaultCacheTTLHours int `yaml:"default_cache_ttl_hours" mapstructure:"default_cache_ttl_hours"`
	RateLimitWaitMS      int `yaml:"rate_limit_wait_ms" mapstructure:"rate_limit_wait_ms"`
	BatchConcurrency     int `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
	BreakerThreshold     int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs  int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// DedupeConfig configures duplicate detection.
type DedupeConfig struct {
	Enabled   bool    `yaml:"enabled" mapstructure:"enabled"`
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
}

// LearnConfig configures the correction learner.
type LearnConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	AutoApplyThreshold  float64 `yaml:"auto_apply_threshold" mapstructure:"auto_apply_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SourceTimeout returns the per-source call timeout as a duration.
func (c EnrichConfig) SourceTimeout() time.Duration {
	return time.Duration(c.SourceTimeoutSecs) * time.Second
}

// DefaultCacheTTL returns the fallback cache TTL as a duration.
func (c EnrichConfig) DefaultCacheTTL() time.Duration {
	return time.Duration(c.DefaultCacheTTLHours) * time.Hour
}

// RateLimitWait returns the bounded rate-limit wait as a duration.
func (c EnrichConfig) RateLimitWait() time.Duration {
	return time.Duration(c.RateLimitWaitMS) * time.Millisecond
}

// BreakerCooldown returns the breaker cooldown as a duration.
func (c EnrichConfig) BreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownSecs) * time.Second
}

// CacheTTL returns the per-source cache TTL, or zero when unset.
func (c SourceConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("tenant_id", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "enrich.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jina.base_url", "https://api.jina.ai")
	v.SetDefault("jina.model", "jina-embeddings-v3")
	v.SetDefault("sector.semantic_threshold", 0.35)
	v.SetDefault("sector.semantic_timeout_secs", 10)
	v.SetDefault("sources.company_catalog.enabled", true)
	v.SetDefault("sources.company_catalog.priority", 10)
	v.SetDefault("sources.company_catalog.per_minute", 0)
	v.SetDefault("sources.company_catalog.cache_ttl_hours", 168)
	v.SetDefault("sources.icecat.enabled", true)
	v.SetDefault("sources.icecat.priority", 8)
	v.SetDefault("sources.icecat.per_minute", 60)
	v.SetDefault("sources.icecat.burst", 10)
	v.SetDefault("sources.icecat.cache_ttl_hours", 72)
	v.SetDefault("sources.gs1_gpc.enabled", true)
	v.SetDefault("sources.gs1_gpc.priority", 5)
	v.SetDefault("sources.gs1_gpc.per_minute", 0)
	v.SetDefault("sources.gs1_gpc.cache_ttl_hours", 168)
	v.SetDefault("sources.openfoodfacts.enabled", true)
	v.SetDefault("sources.openfoodfacts.priority", 8)
	v.SetDefault("sources.openfoodfacts.per_minute", 30)
	v.SetDefault("sources.openfoodfacts.burst", 5)
	v.SetDefault("sources.openfoodfacts.cache_ttl_hours", 72)
	v.SetDefault("sources.wikidata.enabled", true)
	v.SetDefault("sources.wikidata.priority", 1)
	v.SetDefault("sources.wikidata.per_minute", 30)
	v.SetDefault("sources.wikidata.burst", 5)
	v.SetDefault("sources.wikidata.cache_ttl_hours", 24)
	v.SetDefault("enrich.source_timeout_secs", 15)
	v.SetDefault("enrich.default_cache_ttl_hours", 24)
	v.SetDefault("enrich.rate_limit_wait_ms", 2000)
	v.SetDefault("enrich.batch_concurrency", 4)
	v.SetDefault("enrich.breaker_threshold", 5)
	v.SetDefault("enrich.breaker_cooldown_secs", 30)
	v.SetDefault("dedupe.enabled", true)
	v.SetDefault("dedupe.threshold", 0.95)
	v.SetDefault("learn.similarity_threshold", 0.85)
	v.SetDefault("learn.auto_apply_threshold", 0.85)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for values that would misbehave at
// runtime. It collects all problems rather than stopping at the first.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	if c.Sector.SemanticThreshold < 0 || c.Sector.SemanticThreshold > 1 {
		problems = append(problems, "sector.semantic_threshold must be between 0 and 1")
	}
	if c.Dedupe.Threshold <= 0 || c.Dedupe.Threshold > 1 {
		problems = append(problems, "dedupe.threshold must be between 0 and 1")
	}
	if c.Learn.SimilarityThreshold <= 0 || c.Learn.SimilarityThreshold > 1 {
		problems = append(problems, "learn.similarity_threshold must be between 0 and 1")
	}
	if c.Learn.AutoApplyThreshold < 0 || c.Learn.AutoApplyThreshold > 1 {
		problems = append(problems, "learn.auto_apply_threshold must be between 0 and 1")
	}

	if c.Enrich.BatchConcurrency < 1 || c.Enrich.BatchConcurrency > 50 {
		problems = append(problems, "enrich.batch_concurrency must be between 1 and 50")
	}
	if c.Enrich.SourceTimeoutSecs < 1 {
		problems = append(problems, "enrich.source_timeout_secs must be > 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
