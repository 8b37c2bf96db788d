// Package source defines the uniform contract implemented by every
// enrichment source, plus the registry that orders sources for a detected
// sector. Sources normalize heterogeneous backends (curated catalogs, open
// data registries, taxonomies, knowledge graphs) into one result shape and
// never error for "not found".
package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/identity"
	"github.com/sells-group/enrich-cli/internal/model"
)

// Options modifies a single Enrich invocation.
type Options struct {
	// SkipCache forces a fresh lookup past any source-local caches.
	SkipCache bool
	// Timeout bounds the external call; zero means the source default.
	Timeout time.Duration
}

// Source is the uniform enrichment contract. Implementations must not error
// on "not found" (they return a zero-confidence result with reasoning), and
// Init must self-disable on failure rather than report an error.
type Source interface {
	// Name is the stable source identifier used in cache keys, budgets, and
	// provenance.
	Name() string
	// SupportedSectors lists routable sectors; empty means universal.
	SupportedSectors() []model.Sector
	// Enabled reports whether the source can currently serve lookups.
	Enabled() bool
	// Init idempotently prepares local indices and configuration.
	Init(ctx context.Context)
	// Enrich looks the item up and normalizes the answer.
	Enrich(ctx context.Context, item model.ExtractedItem, opts Options) (model.EnrichmentResult, error)
}

// sectorOverride narrows routing without touching the wrapped source.
type sectorOverride struct {
	Source
	sectors []model.Sector
}

func (s sectorOverride) SupportedSectors() []model.Sector { return s.sectors }

// WithSectors returns src routed to exactly the given sectors instead of its
// built-in SupportedSectors. An empty list returns src unchanged.
func WithSectors(src Source, sectors []model.Sector) Source {
	if len(sectors) == 0 {
		return src
	}
	return sectorOverride{Source: src, sectors: sectors}
}

// Registration binds a source to its routing configuration.
type Registration struct {
	Source   Source
	Priority int
	// enabled is the registry-level toggle layered over Source.Enabled.
	enabled bool
}

// Registry catalogs the configured sources and produces the ordered lookup
// list for a sector: sector-specific sources first by descending priority,
// then universal fallbacks in registration order.
type Registry struct {
	mu     sync.RWMutex
	regs   []Registration
	byName map[string]int
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Register adds a source. Malformed registrations are configuration defects
// and fail loudly at startup.
func (r *Registry) Register(s Source, priority int) error {
	if s == nil || strings.TrimSpace(s.Name()) == "" {
		return eris.New("registry: source with empty name")
	}
	if priority < 0 {
		return eris.Errorf("registry: source %s has negative priority %d", s.Name(), priority)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[s.Name()]; dup {
		return eris.Errorf("registry: duplicate source %s", s.Name())
	}
	r.byName[s.Name()] = len(r.regs)
	r.regs = append(r.regs, Registration{Source: s, Priority: priority, enabled: true})
	return nil
}

// SetEnabled toggles a source at runtime (e.g., when an API key is absent).
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byName[name]
	if !ok {
		return eris.Errorf("registry: unknown source %s", name)
	}
	r.regs[idx].enabled = enabled
	return nil
}

// SourcesFor returns the ordered source list for a sector. Disabled sources
// are excluded here so callers never special-case them. For unknown sectors
// only the universal fallbacks apply.
func (r *Registry) SourcesFor(sector model.Sector) []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type ranked struct {
		src      Source
		priority int
		order    int
	}
	var specific []ranked
	var universal []Source

	for order, reg := range r.regs {
		if !reg.enabled || !reg.Source.Enabled() {
			continue
		}
		sectors := reg.Source.SupportedSectors()
		if len(sectors) == 0 {
			universal = append(universal, reg.Source)
			continue
		}
		for _, s := range sectors {
			if s == sector {
				specific = append(specific, ranked{src: reg.Source, priority: reg.Priority, order: order})
				break
			}
		}
	}

	// Sector-specific first, by descending priority; registration order
	// breaks priority ties deterministically.
	sort.Slice(specific, func(i, j int) bool {
		if specific[i].priority != specific[j].priority {
			return specific[i].priority > specific[j].priority
		}
		return specific[i].order < specific[j].order
	})

	out := make([]Source, 0, len(specific)+len(universal))
	for _, s := range specific {
		out = append(out, s.src)
	}
	return append(out, universal...)
}

// Status describes one registered source for operator inspection.
type Status struct {
	Name     string         `json:"name"`
	Sectors  []model.Sector `json:"sectors,omitempty"`
	Priority int            `json:"priority"`
	Enabled  bool           `json:"enabled"`
}

// Statuses returns the registry contents in registration order.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.regs))
	for _, reg := range r.regs {
		out = append(out, Status{
			Name:     reg.Source.Name(),
			Sectors:  reg.Source.SupportedSectors(),
			Priority: reg.Priority,
			Enabled:  reg.enabled && reg.Source.Enabled(),
		})
	}
	return out
}

// resultBuilder assembles an EnrichmentResult while enforcing the invariant
// that FieldsEnriched lists only fields absent from the input item.
type resultBuilder struct {
	item   model.ExtractedItem
	source string
	fields map[string]any
	order  []string
	notes  []string
}

func newResult(sourceName string, item model.ExtractedItem) *resultBuilder {
	return &resultBuilder{item: item, source: sourceName, fields: make(map[string]any)}
}

// inputHas reports whether the input item already carries the field.
func (b *resultBuilder) inputHas(field string) bool {
	switch field {
	case "vendor":
		return b.item.Vendor != ""
	case "category":
		return b.item.Category != ""
	case "description":
		return b.item.Description != ""
	default:
		return false
	}
}

// set records a proposed field value unless the input already has the field
// or the value is empty.
func (b *resultBuilder) set(field string, value any) {
	if b.inputHas(field) {
		return
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return
	}
	if _, seen := b.fields[field]; !seen {
		b.order = append(b.order, field)
	}
	b.fields[field] = value
}

func (b *resultBuilder) reason(format string, args ...any) {
	b.notes = append(b.notes, fmt.Sprintf(format, args...))
}

// done finalizes the result. With no fields recorded the confidence collapses
// to zero regardless of what the backend claimed.
func (b *resultBuilder) done(confidence float64) model.EnrichmentResult {
	if len(b.order) == 0 {
		confidence = 0
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return model.EnrichmentResult{
		Source:         b.source,
		Confidence:     confidence,
		Fields:         b.fields,
		FieldsEnriched: append([]string{}, b.order...),
		Reasoning:      b.notes,
	}
}

// nameSimilarity is the token-overlap (Jaccard) similarity of two names
// after identity normalization, used to pick the best hit among candidates.
func nameSimilarity(a, b string) float64 {
	ta := strings.Fields(identity.Normalize(a))
	tb := strings.Fields(identity.Normalize(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(ta))
	for _, t := range ta {
		set[t] = true
	}
	inter := 0
	seen := make(map[string]bool, len(tb))
	for _, t := range tb {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			inter++
		}
	}
	union := len(set) + len(seen) - inter
	return float64(inter) / float64(union)
}
