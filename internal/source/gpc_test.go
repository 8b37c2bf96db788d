package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

func TestGS1GPC_ClassifiesByKeywords(t *testing.T) {
	s := NewGS1GPC()

	res, err := s.Enrich(context.Background(),
		model.ExtractedItem{Name: "Arabica Coffee", Description: "ground coffee beverage"}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "50000000", res.Fields["gpc_segment_code"])
	assert.Equal(t, "50200000", res.Fields["gpc_family_code"])
	assert.Equal(t, "Beverages", res.Fields["category"])
	// Two corroborating keywords.
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
}

func TestGS1GPC_SingleKeywordBaseline(t *testing.T) {
	s := NewGS1GPC()

	res, err := s.Enrich(context.Background(), model.ExtractedItem{Name: "Syringe"}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "51100000", res.Fields["gpc_family_code"])
	assert.InDelta(t, 0.35, res.Confidence, 1e-9)
}

func TestGS1GPC_ConfidenceCeiling(t *testing.T) {
	s := NewGS1GPC()

	res, err := s.Enrich(context.Background(),
		model.ExtractedItem{Name: "Laptop", Description: "laptop computer monitor keyboard printer desktop tablet"}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "65100000", res.Fields["gpc_family_code"])
	assert.InDelta(t, 0.65, res.Confidence, 1e-9)
}

func TestGS1GPC_NoMatch(t *testing.T) {
	s := NewGS1GPC()

	res, err := s.Enrich(context.Background(), model.ExtractedItem{Name: "Zoraxil"}, Options{})
	require.NoError(t, err)

	assert.Zero(t, res.Confidence)
	assert.Empty(t, res.FieldsEnriched)
}

func TestGS1GPC_InputCategoryPreserved(t *testing.T) {
	s := NewGS1GPC()

	res, err := s.Enrich(context.Background(),
		model.ExtractedItem{Name: "Coffee", Category: "Hot Drinks"}, Options{})
	require.NoError(t, err)

	assert.NotContains(t, res.Fields, "category")
	assert.Contains(t, res.Fields, "gpc_family_code")
}

func TestContainsKeyword(t *testing.T) {
	assert.True(t, containsKeyword("usb power supply unit", "power supply"))
	assert.True(t, containsKeyword("a laptop stand", "laptop"))
	assert.False(t, containsKeyword("laptops", "laptop"))
	assert.False(t, containsKeyword("power strip supply", "power supply"))
}
