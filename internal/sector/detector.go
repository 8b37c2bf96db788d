// Package sector classifies extracted items into a coarse industry sector
// using keyword scoring over name and description, with an optional semantic
// fallback against per-sector exemplar phrases when keywords are
// inconclusive.
package sector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/embedding"
	"github.com/sells-group/enrich-cli/internal/identity"
	"github.com/sells-group/enrich-cli/internal/model"
)

// Options tunes the detector.
type Options struct {
	// NormalizationScore is the keyword score mapped to confidence 1.0.
	NormalizationScore float64
	// SemanticThreshold triggers the semantic fallback when the keyword
	// confidence falls below it. Zero disables the fallback regardless of
	// whether an embedder is configured.
	SemanticThreshold float64
	// SemanticTimeout bounds the single embedding lookup.
	SemanticTimeout time.Duration
	// ContextBonus is added to the hinted sector's score when the caller
	// supplies an industry context matching a sector.
	ContextBonus float64
}

// DefaultOptions returns the detector defaults.
func DefaultOptions() Options {
	return Options{
		NormalizationScore: 3.0,
		SemanticThreshold:  0.35,
		SemanticTimeout:    10 * time.Second,
		ContextBonus:       2.0,
	}
}

// Detector scores item text against per-sector keyword sets.
// Detect is side-effect-free apart from the optional embedding lookup.
type Detector struct {
	keywords  map[model.Sector][]string
	exemplars map[model.Sector]string
	embedder  embedding.Embedder
	opts      Options

	// exemplar vectors are fetched once on first semantic fallback.
	mu           sync.Mutex
	exemplarVecs map[model.Sector][]float32
}

// NewDetector creates a detector over the given keyword table. A nil embedder
// disables the semantic fallback.
func NewDetector(keywords map[model.Sector][]string, embedder embedding.Embedder, opts Options) *Detector {
	if keywords == nil {
		keywords = defaultKeywords
	}
	if opts.NormalizationScore <= 0 {
		opts.NormalizationScore = DefaultOptions().NormalizationScore
	}
	if opts.SemanticTimeout <= 0 {
		opts.SemanticTimeout = DefaultOptions().SemanticTimeout
	}
	return &Detector{
		keywords:  keywords,
		exemplars: defaultExemplars,
		embedder:  embedder,
		opts:      opts,
	}
}

// sectorScore accumulates keyword evidence for one sector.
type sectorScore struct {
	sector      model.Sector
	score       float64
	phraseChars int // total length of matched multi-word phrases, for tie-breaks
	matched     []string
}

// Detect classifies the item. An empty name yields unknown with confidence 0.
// The industryContext hint, when it names or resembles a sector, biases
// scoring toward that sector without forcing it.
func (d *Detector) Detect(ctx context.Context, item model.ExtractedItem, industryContext string) model.SectorDetectionResult {
	if strings.TrimSpace(item.Name) == "" {
		return model.SectorDetectionResult{
			Sector:     model.SectorUnknown,
			Confidence: 0,
			Method:     model.DetectionKeyword,
			Reasoning:  []string{"empty item name"},
		}
	}

	text := identity.Normalize(item.Name + " " + item.Description)
	hinted := d.matchContext(industryContext)

	scores := make([]sectorScore, 0, len(d.keywords))
	for sec, kws := range d.keywords {
		ss := sectorScore{sector: sec}
		for _, kw := range kws {
			n := countOccurrences(text, kw)
			if n == 0 {
				continue
			}
			ss.score += float64(n)
			ss.matched = append(ss.matched, kw)
			if strings.Contains(kw, " ") {
				ss.phraseChars += n * len(kw)
			}
		}
		if sec == hinted && ss.score > 0 {
			ss.score += d.opts.ContextBonus
			ss.matched = append(ss.matched, "industry context hint")
		}
		if ss.score > 0 {
			scores = append(scores, ss)
		}
	}

	keywordResult := d.pick(scores)
	if keywordResult.Confidence >= d.opts.SemanticThreshold || d.embedder == nil || d.opts.SemanticThreshold <= 0 {
		return keywordResult
	}

	semantic, ok := d.semanticFallback(ctx, text)
	if !ok {
		// Fallback failures never fail detection.
		return keywordResult
	}
	if semantic.Confidence > keywordResult.Confidence {
		return semantic
	}
	return keywordResult
}

// pick applies the scoring and tie-break rules to the accumulated scores.
func (d *Detector) pick(scores []sectorScore) model.SectorDetectionResult {
	if len(scores) == 0 {
		return model.SectorDetectionResult{
			Sector:     model.SectorUnknown,
			Confidence: 0,
			Method:     model.DetectionKeyword,
			Reasoning:  []string{"no sector keywords matched"},
		}
	}

	// Deterministic order: score desc, phrase specificity desc, sector name.
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		if scores[i].phraseChars != scores[j].phraseChars {
			return scores[i].phraseChars > scores[j].phraseChars
		}
		return scores[i].sector < scores[j].sector
	})

	best := scores[0]
	if len(scores) > 1 {
		second := scores[1]
		if second.score == best.score && second.phraseChars == best.phraseChars {
			return model.SectorDetectionResult{
				Sector:     model.SectorUnknown,
				Confidence: 0,
				Method:     model.DetectionKeyword,
				Reasoning: []string{fmt.Sprintf(
					"tie between %s and %s (score %.0f)", best.sector, second.sector, best.score)},
			}
		}
	}

	conf := best.score / d.opts.NormalizationScore
	if conf > 1.0 {
		conf = 1.0
	}
	return model.SectorDetectionResult{
		Sector:     best.sector,
		Confidence: conf,
		Method:     model.DetectionKeyword,
		Reasoning: []string{
			fmt.Sprintf("matched %s keywords: %s", best.sector, strings.Join(best.matched, ", ")),
		},
	}
}

// semanticFallback embeds the item text and the sector exemplars once, then
// takes the nearest exemplar's sector. Returns ok=false on any failure so the
// caller silently keeps the keyword result.
func (d *Detector) semanticFallback(ctx context.Context, text string) (model.SectorDetectionResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.SemanticTimeout)
	defer cancel()

	if err := d.ensureExemplarVecs(ctx); err != nil {
		zap.L().Debug("sector: semantic fallback unavailable", zap.Error(err))
		return model.SectorDetectionResult{}, false
	}

	vec, err := embedding.EmbedOne(ctx, d.embedder, text)
	if err != nil {
		zap.L().Debug("sector: semantic fallback embed failed", zap.Error(err))
		return model.SectorDetectionResult{}, false
	}

	var bestSector model.Sector
	bestSim := -1.0
	for _, sec := range model.AllSectors {
		ev, ok := d.exemplarVecs[sec]
		if !ok {
			continue
		}
		if sim := embedding.Cosine(vec, ev); sim > bestSim {
			bestSim = sim
			bestSector = sec
		}
	}
	if bestSim <= 0 || bestSector == "" {
		return model.SectorDetectionResult{}, false
	}

	return model.SectorDetectionResult{
		Sector:     bestSector,
		Confidence: bestSim,
		Method:     model.DetectionSemantic,
		Reasoning: []string{
			fmt.Sprintf("nearest sector exemplar %s (similarity %.2f)", bestSector, bestSim),
		},
	}, true
}

// ensureExemplarVecs lazily embeds the exemplar phrases, once.
func (d *Detector) ensureExemplarVecs(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.exemplarVecs != nil {
		return nil
	}
	texts := make([]string, 0, len(model.AllSectors))
	for _, sec := range model.AllSectors {
		texts = append(texts, d.exemplars[sec])
	}
	vecs, err := d.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vecs) != len(model.AllSectors) {
		return fmt.Errorf("sector: got %d exemplar vectors for %d sectors", len(vecs), len(model.AllSectors))
	}
	d.exemplarVecs = make(map[model.Sector][]float32, len(vecs))
	for i, sec := range model.AllSectors {
		d.exemplarVecs[sec] = vecs[i]
	}
	return nil
}

// matchContext resolves an industry context hint to a sector, or unknown.
func (d *Detector) matchContext(industryContext string) model.Sector {
	hint := identity.Normalize(industryContext)
	if hint == "" {
		return model.SectorUnknown
	}
	for _, sec := range model.AllSectors {
		if strings.Contains(hint, strings.ReplaceAll(string(sec), "_", " ")) ||
			strings.Contains(hint, string(sec)) {
			return sec
		}
	}
	return model.SectorUnknown
}

// countOccurrences counts non-overlapping occurrences of kw in text on token
// boundaries for single words, substring for multi-word phrases.
func countOccurrences(text, kw string) int {
	if kw == "" {
		return 0
	}
	if strings.Contains(kw, " ") {
		return strings.Count(text, kw)
	}
	count := 0
	for _, tok := range strings.Fields(text) {
		if strings.Trim(tok, ".,;:()[]\"'") == kw {
			count++
		}
	}
	return count
}
