package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnrichmentResult_Empty(t *testing.T) {
	assert.True(t, EnrichmentResult{}.Empty())
	assert.True(t, EnrichmentResult{Confidence: 0.8}.Empty(), "fields required")
	assert.True(t, EnrichmentResult{FieldsEnriched: []string{"vendor"}}.Empty(), "confidence required")
	assert.False(t, EnrichmentResult{Confidence: 0.1, FieldsEnriched: []string{"vendor"}}.Empty())
}

func TestZeroResult(t *testing.T) {
	r := ZeroResult("icecat", "source timed out")

	assert.True(t, r.Empty())
	assert.Equal(t, "icecat", r.Source)
	assert.Equal(t, []string{"source timed out"}, r.Reasoning)
	assert.NotNil(t, r.FieldsEnriched)
}

func TestDuplicateCluster_Singleton(t *testing.T) {
	assert.True(t, DuplicateCluster{Items: []int{3}}.Singleton())
	assert.False(t, DuplicateCluster{Items: []int{1, 2}}.Singleton())
}
