package model

import "time"

// FieldCorrection is a single field-level edit a user made to an enriched item.
type FieldCorrection struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// CorrectionRecord captures one user correction of a previously enriched
// item. Records are append-only; they are never mutated after creation.
type CorrectionRecord struct {
	ID               string            `json:"id"`
	TenantID         string            `json:"tenant_id"`
	Original         ExtractedItem     `json:"original_extraction"`
	Corrected        ExtractedItem     `json:"corrected_item"`
	FieldCorrections []FieldCorrection `json:"field_corrections"`
	NameEmbedding    []float32         `json:"item_name_embedding,omitempty"`
	CreatedAt        time.Time         `json:"timestamp"`
}

// LearnedRule is a persisted field-mapping pattern derived from repeated user
// corrections. Confidence rises with confirming observations and falls with
// contradicting ones, never below a configured floor.
type LearnedRule struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	Field           string    `json:"field_name"`
	FromPattern     string    `json:"from_value_pattern"`
	ToValue         string    `json:"to_value"`
	Confidence      float64   `json:"confidence"`
	OccurrenceCount int       `json:"occurrence_count"`
	SuccessCount    int       `json:"success_count"`
	FailureCount    int       `json:"failure_count"`
	Active          bool      `json:"is_active"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// LearnedSuggestion is a ranked, read-only proposal for a field value derived
// from learned rules and similar past corrections. Callers apply suggestions
// only to fields the item does not already set.
type LearnedSuggestion struct {
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Basis      string  `json:"basis"`
}
