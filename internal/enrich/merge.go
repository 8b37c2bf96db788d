package enrich

import (
	"fmt"
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

// corroborationBonus is added to the overall confidence once per additional
// source that independently reports the same value a field winner reported.
const corroborationBonus = 0.05

// mergedFields is the outcome of fusing per-source results for one item.
type mergedFields struct {
	fields  map[string]any
	winners map[string]string
	overall float64
}

// merge fuses source results field by field. The highest-confidence source
// wins each field; ties go to whichever source appears first in results,
// which the orchestrator keeps in registry order so the outcome is
// deterministic regardless of completion order. Results below minConfidence
// contribute nothing, neither fields nor corroboration.
func merge(results []model.EnrichmentResult, minConfidence float64) mergedFields {
	m := mergedFields{
		fields:  make(map[string]any),
		winners: make(map[string]string),
	}

	winnerConf := make(map[string]float64)
	for _, r := range results {
		if r.Empty() || r.Confidence < minConfidence {
			continue
		}
		if r.Confidence > m.overall {
			m.overall = r.Confidence
		}
		for _, field := range r.FieldsEnriched {
			val, ok := r.Fields[field]
			if !ok {
				continue
			}
			if prev, seen := winnerConf[field]; seen && r.Confidence <= prev {
				continue
			}
			m.fields[field] = val
			m.winners[field] = r.Source
			winnerConf[field] = r.Confidence
		}
	}

	// A source corroborates when it independently reports the winning value
	// for some field it did not win. Each source counts at most once.
	corroborators := make(map[string]bool)
	for _, r := range results {
		if r.Empty() || r.Confidence < minConfidence {
			continue
		}
		for _, field := range r.FieldsEnriched {
			if m.winners[field] == r.Source {
				continue
			}
			val, ok := r.Fields[field]
			if !ok {
				continue
			}
			if won, merged := m.fields[field]; merged && valuesAgree(won, val) {
				corroborators[r.Source] = true
				break
			}
		}
	}

	m.overall += corroborationBonus * float64(len(corroborators))
	if m.overall > 1.0 {
		m.overall = 1.0
	}
	return m
}

// valuesAgree compares field values loosely: strings case-insensitively with
// surrounding whitespace ignored, everything else by formatted equality.
func valuesAgree(a, b any) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.EqualFold(strings.TrimSpace(as), strings.TrimSpace(bs))
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
