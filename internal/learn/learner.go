// Package learn turns user corrections of enriched items into persisted
// records and field-mapping rules, and proposes values for future items based
// on that history. It only ever suggests; applying a suggestion is the
// caller's decision.
package learn

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/embedding"
	"github.com/sells-group/enrich-cli/internal/identity"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/store"
)

const (
	// ruleConfidenceFloor is the minimum confidence a rule can carry.
	ruleConfidenceFloor = 0.05
	// similarCorrectionWeight discounts evidence from similar past
	// corrections relative to exact rule matches.
	similarCorrectionWeight = 0.6
	// defaultSimilarityThreshold gates which stored corrections count as
	// evidence for an item.
	defaultSimilarityThreshold = 0.85
	defaultSimilarLimit        = 5
)

// Learner records corrections and derives suggestions from them.
type Learner struct {
	store               store.Store
	embedder            embedding.Embedder
	similarityThreshold float64
}

// Config tunes the Learner.
type Config struct {
	// SimilarityThreshold gates similar-correction evidence; <=0 uses the
	// default.
	SimilarityThreshold float64
}

// New creates a Learner. The embedder may be nil; corrections are then stored
// without embeddings and similarity evidence is unavailable.
func New(st store.Store, embedder embedding.Embedder, cfg Config) *Learner {
	threshold := cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = defaultSimilarityThreshold
	}
	return &Learner{store: st, embedder: embedder, similarityThreshold: threshold}
}

// RecordCorrection diffs original against corrected, persists the correction
// record, and upserts one learned rule per changed field. A correction with
// no changed fields is an error.
func (l *Learner) RecordCorrection(ctx context.Context, tenantID string, original, corrected model.ExtractedItem) (model.CorrectionRecord, error) {
	diffs := diffItems(original, corrected)
	if len(diffs) == 0 {
		return model.CorrectionRecord{}, eris.New("learn: original and corrected items are identical")
	}

	rec := model.CorrectionRecord{
		TenantID:         tenantID,
		Original:         original,
		Corrected:        corrected,
		FieldCorrections: diffs,
	}

	if l.embedder != nil {
		emb, err := embedding.EmbedOne(ctx, l.embedder, corrected.Name)
		if err != nil {
			zap.L().Warn("correction embedding failed, storing without it",
				zap.String("item", corrected.Name), zap.Error(err))
		} else {
			rec.NameEmbedding = emb
		}
	}

	if err := l.store.AppendCorrection(ctx, rec); err != nil {
		return model.CorrectionRecord{}, eris.Wrap(err, "learn: append correction")
	}

	for _, diff := range diffs {
		if err := l.reinforceRule(ctx, tenantID, diff); err != nil {
			return model.CorrectionRecord{}, err
		}
	}
	return rec, nil
}

// reinforceRule applies one field diff to the rule keyed by
// (tenant, field, normalized from-value). A diff that confirms the rule's
// target bumps the success count; one proposing a different target bumps the
// failure count. Confidence is Beta-smoothed so a single observation never
// saturates it.
func (l *Learner) reinforceRule(ctx context.Context, tenantID string, diff model.FieldCorrection) error {
	pattern := identity.Normalize(diff.From)
	rule, err := l.store.GetRule(ctx, tenantID, diff.Field, pattern)
	if err != nil {
		return eris.Wrap(err, "learn: get rule")
	}
	if rule == nil {
		rule = &model.LearnedRule{
			TenantID:    tenantID,
			Field:       diff.Field,
			FromPattern: pattern,
			ToValue:     diff.To,
			Active:      true,
		}
	}

	rule.OccurrenceCount++
	if strings.EqualFold(rule.ToValue, diff.To) {
		rule.SuccessCount++
	} else {
		rule.FailureCount++
	}
	rule.Confidence = ruleConfidence(rule.SuccessCount, rule.FailureCount)
	rule.Active = rule.Confidence > ruleConfidenceFloor

	if err := l.store.UpsertRule(ctx, *rule); err != nil {
		return eris.Wrap(err, "learn: upsert rule")
	}
	return nil
}

// ruleConfidence is (success+1)/(success+failure+2), floored. Additional
// confirmations strictly increase it; contradictions strictly decrease it.
func ruleConfidence(success, failure int) float64 {
	c := float64(success+1) / float64(success+failure+2)
	if c < ruleConfidenceFloor {
		return ruleConfidenceFloor
	}
	return c
}

// FindSimilarCorrections returns stored corrections whose item-name embedding
// is within threshold of the given embedding, most similar first.
func (l *Learner) FindSimilarCorrections(ctx context.Context, tenantID string, emb []float32, threshold float64, limit int) ([]store.SimilarCorrection, error) {
	if threshold <= 0 {
		threshold = l.similarityThreshold
	}
	if limit <= 0 {
		limit = defaultSimilarLimit
	}
	matches, err := l.store.SimilarCorrections(ctx, tenantID, emb, threshold, limit)
	return matches, eris.Wrap(err, "learn: similar corrections")
}

// Suggest proposes field values for an item from active rules and similar
// past corrections. Read-only: it never mutates the item or any stored state.
// Suggestions are returned highest confidence first, one per (field, value).
func (l *Learner) Suggest(ctx context.Context, tenantID string, item model.ExtractedItem) ([]model.LearnedSuggestion, error) {
	best := make(map[[2]string]model.LearnedSuggestion)

	rules, err := l.store.ListActiveRules(ctx, tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "learn: list rules")
	}
	for _, rule := range rules {
		current := fieldValue(item, rule.Field)
		if current == "" || identity.Normalize(current) != rule.FromPattern {
			continue
		}
		keep(best, model.LearnedSuggestion{
			Field:      rule.Field,
			Value:      rule.ToValue,
			Confidence: rule.Confidence,
			Basis:      "learned rule",
		})
	}

	if l.embedder != nil && item.Name != "" {
		emb, err := embedding.EmbedOne(ctx, l.embedder, item.Name)
		if err != nil {
			zap.L().Warn("suggestion embedding failed, using rules only",
				zap.String("item", item.Name), zap.Error(err))
		} else {
			matches, err := l.store.SimilarCorrections(ctx, tenantID, emb, l.similarityThreshold, defaultSimilarLimit)
			if err != nil {
				return nil, eris.Wrap(err, "learn: similar corrections")
			}
			for _, m := range matches {
				for _, diff := range m.Record.FieldCorrections {
					current := fieldValue(item, diff.Field)
					if current != "" && identity.Normalize(current) != identity.Normalize(diff.From) {
						continue
					}
					keep(best, model.LearnedSuggestion{
						Field:      diff.Field,
						Value:      diff.To,
						Confidence: m.Similarity * similarCorrectionWeight,
						Basis:      "similar correction",
					})
				}
			}
		}
	}

	suggestions := make([]model.LearnedSuggestion, 0, len(best))
	for _, s := range best {
		suggestions = append(suggestions, s)
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		if suggestions[i].Field != suggestions[j].Field {
			return suggestions[i].Field < suggestions[j].Field
		}
		return suggestions[i].Value < suggestions[j].Value
	})
	return suggestions, nil
}

func keep(best map[[2]string]model.LearnedSuggestion, s model.LearnedSuggestion) {
	key := [2]string{s.Field, s.Value}
	if existing, ok := best[key]; ok && existing.Confidence >= s.Confidence {
		return
	}
	best[key] = s
}

// diffItems lists the string fields whose values changed between original and
// corrected. Unchanged and newly-cleared fields produce no diff.
func diffItems(original, corrected model.ExtractedItem) []model.FieldCorrection {
	var diffs []model.FieldCorrection
	for _, field := range []string{"name", "description", "vendor", "category"} {
		from := fieldValue(original, field)
		to := fieldValue(corrected, field)
		if to == "" || from == to {
			continue
		}
		diffs = append(diffs, model.FieldCorrection{Field: field, From: from, To: to})
	}
	return diffs
}

func fieldValue(item model.ExtractedItem, field string) string {
	switch field {
	case "name":
		return item.Name
	case "description":
		return item.Description
	case "vendor":
		return item.Vendor
	case "category":
		return item.Category
	default:
		return ""
	}
}
