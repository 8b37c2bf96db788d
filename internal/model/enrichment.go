package model

// EnrichmentResult is the normalized answer from a single source for a single
// item. Sources that find nothing return Confidence 0 with empty Fields and
// an explanatory Reasoning entry; they never error for "not found".
type EnrichmentResult struct {
	Source         string         `json:"source"`
	Confidence     float64        `json:"confidence"`
	Fields         map[string]any `json:"fields,omitempty"`
	FieldsEnriched []string       `json:"fields_enriched"`
	Reasoning      []string       `json:"reasoning,omitempty"`
}

// Empty reports whether the result carries no usable contribution.
func (r EnrichmentResult) Empty() bool {
	return r.Confidence <= 0 || len(r.FieldsEnriched) == 0
}

// ZeroResult builds the zero-confidence result used when a source has no
// match, fails, times out, or is skipped by rate limiting. The reason string
// is the only surface such outcomes ever reach.
func ZeroResult(source, reason string) EnrichmentResult {
	return EnrichmentResult{
		Source:         source,
		Confidence:     0,
		FieldsEnriched: []string{},
		Reasoning:      []string{reason},
	}
}
