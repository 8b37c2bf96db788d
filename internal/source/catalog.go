package source

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/enrich-cli/internal/identity"
	"github.com/sells-group/enrich-cli/internal/model"
)

// CatalogEntry is one curated record in the company catalog dataset.
type CatalogEntry struct {
	Match    []string `yaml:"match"` // normalized substrings that select this entry
	Vendor   string   `yaml:"vendor,omitempty"`
	Category string   `yaml:"category,omitempty"`
	UNSPSC   string   `yaml:"unspsc,omitempty"`
	GTIN     string   `yaml:"gtin,omitempty"`
	Sector   string   `yaml:"sector,omitempty"`
}

// catalogFile is the YAML shape of the curated dataset.
type catalogFile struct {
	Entries []CatalogEntry `yaml:"entries"`
}

// CompanyCatalog serves lookups against a curated, locally maintained product
// and vendor catalog. It is universal (all sectors) and fully offline.
type CompanyCatalog struct {
	path string

	once    sync.Once
	entries []CatalogEntry
	enabled bool
}

// NewCompanyCatalog creates the catalog source. The dataset file is loaded
// lazily on Init; a missing or malformed file disables the source instead of
// erroring, per the source contract.
func NewCompanyCatalog(path string) *CompanyCatalog {
	return &CompanyCatalog{path: path}
}

// NewCompanyCatalogFromEntries builds the source from in-memory entries,
// bypassing the file load. Used by tests and embedded defaults.
func NewCompanyCatalogFromEntries(entries []CatalogEntry) *CompanyCatalog {
	c := &CompanyCatalog{}
	c.once.Do(func() {})
	c.entries = entries
	c.enabled = len(entries) > 0
	return c
}

func (c *CompanyCatalog) Name() string { return "company_catalog" }

func (c *CompanyCatalog) SupportedSectors() []model.Sector { return nil }

func (c *CompanyCatalog) Enabled() bool { return c.enabled }

// Init loads and normalizes the dataset once.
func (c *CompanyCatalog) Init(_ context.Context) {
	c.once.Do(func() {
		entries, err := loadCatalog(c.path)
		if err != nil {
			zap.L().Warn("company_catalog: disabled", zap.String("path", c.path), zap.Error(err))
			return
		}
		c.entries = entries
		c.enabled = len(entries) > 0
	})
}

func loadCatalog(path string) ([]CatalogEntry, error) {
	if path == "" {
		return nil, eris.New("company_catalog: no dataset path configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "company_catalog: read %s", path)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "company_catalog: parse dataset")
	}
	for i := range file.Entries {
		for j, m := range file.Entries[i].Match {
			file.Entries[i].Match[j] = identity.Normalize(m)
		}
	}
	return file.Entries, nil
}

// Enrich matches the normalized item name against entry match patterns. The
// longest matching pattern wins; full-name matches score higher than
// substring matches.
func (c *CompanyCatalog) Enrich(_ context.Context, item model.ExtractedItem, _ Options) (model.EnrichmentResult, error) {
	name := identity.Normalize(item.Name)
	b := newResult(c.Name(), item)

	var best *CatalogEntry
	bestLen := 0
	exact := false
	for i := range c.entries {
		for _, pattern := range c.entries[i].Match {
			if pattern == "" || !strings.Contains(name, pattern) {
				continue
			}
			if pattern == name {
				best = &c.entries[i]
				exact = true
				bestLen = len(pattern)
			} else if !exact && len(pattern) > bestLen {
				best = &c.entries[i]
				bestLen = len(pattern)
			}
		}
	}

	if best == nil {
		b.reason("no catalog entry matches %q", item.Name)
		return b.done(0), nil
	}

	b.set("vendor", best.Vendor)
	b.set("category", best.Category)
	b.set("unspsc", best.UNSPSC)
	b.set("gtin", best.GTIN)

	confidence := 0.7
	if exact {
		confidence = 0.9
		b.reason("exact catalog match")
	} else {
		b.reason("catalog pattern match (%d chars)", bestLen)
	}
	return b.done(confidence), nil
}
