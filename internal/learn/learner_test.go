package learn

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/store"
)

type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, txt := range texts {
		vec, ok := s.vectors[txt]
		if !ok {
			vec = []float32{1, 0, 0}
		}
		out[i] = vec
	}
	return out, nil
}

func newTestLearner(t *testing.T, embedder *stubEmbedder) (*Learner, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "learn.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return New(st, embedder, Config{}), st
}

func TestRecordCorrection_PersistsRecordAndRule(t *testing.T) {
	l, st := newTestLearner(t, &stubEmbedder{})
	ctx := context.Background()

	original := model.ExtractedItem{Name: "Latitude 5540", Type: model.ItemTypeProduct, Vendor: "Del"}
	corrected := original
	corrected.Vendor = "Dell"

	rec, err := l.RecordCorrection(ctx, "t1", original, corrected)
	require.NoError(t, err)
	require.Len(t, rec.FieldCorrections, 1)
	assert.Equal(t, "vendor", rec.FieldCorrections[0].Field)
	assert.NotEmpty(t, rec.NameEmbedding)

	rule, err := st.GetRule(ctx, "t1", "vendor", "del")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "Dell", rule.ToValue)
	assert.Equal(t, 1, rule.OccurrenceCount)
	assert.Equal(t, 1, rule.SuccessCount)
	assert.InDelta(t, 2.0/3.0, rule.Confidence, 1e-9)
	assert.True(t, rule.Active)
}

func TestRecordCorrection_NoChangesIsError(t *testing.T) {
	l, _ := newTestLearner(t, &stubEmbedder{})

	item := model.ExtractedItem{Name: "Latitude 5540", Type: model.ItemTypeProduct}
	_, err := l.RecordCorrection(context.Background(), "t1", item, item)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identical")
}

func TestRecordCorrection_ConfirmationsIncreaseConfidence(t *testing.T) {
	l, st := newTestLearner(t, &stubEmbedder{})
	ctx := context.Background()

	original := model.ExtractedItem{Name: "Latitude 5540", Type: model.ItemTypeProduct, Vendor: "Del"}
	corrected := original
	corrected.Vendor = "Dell"

	var last float64
	for i := 0; i < 3; i++ {
		_, err := l.RecordCorrection(ctx, "t1", original, corrected)
		require.NoError(t, err)

		rule, err := st.GetRule(ctx, "t1", "vendor", "del")
		require.NoError(t, err)
		require.NotNil(t, rule)
		assert.Greater(t, rule.Confidence, last, "confidence must rise with each confirmation")
		last = rule.Confidence
	}
}

func TestRecordCorrection_ContradictionDecreasesConfidence(t *testing.T) {
	l, st := newTestLearner(t, &stubEmbedder{})
	ctx := context.Background()

	original := model.ExtractedItem{Name: "Latitude 5540", Type: model.ItemTypeProduct, Vendor: "Del"}
	asDell := original
	asDell.Vendor = "Dell"
	asHP := original
	asHP.Vendor = "HP"

	_, err := l.RecordCorrection(ctx, "t1", original, asDell)
	require.NoError(t, err)
	rule, err := st.GetRule(ctx, "t1", "vendor", "del")
	require.NoError(t, err)
	before := rule.Confidence

	_, err = l.RecordCorrection(ctx, "t1", original, asHP)
	require.NoError(t, err)
	rule, err = st.GetRule(ctx, "t1", "vendor", "del")
	require.NoError(t, err)
	assert.Less(t, rule.Confidence, before)
	assert.Equal(t, 1, rule.FailureCount)
	assert.Equal(t, "Dell", rule.ToValue) // target does not flip on one contradiction
}

func TestRecordCorrection_EmbedderFailureStillPersists(t *testing.T) {
	l, st := newTestLearner(t, &stubEmbedder{err: eris.New("embeddings down")})
	ctx := context.Background()

	original := model.ExtractedItem{Name: "Latitude 5540", Type: model.ItemTypeProduct, Vendor: "Del"}
	corrected := original
	corrected.Vendor = "Dell"

	rec, err := l.RecordCorrection(ctx, "t1", original, corrected)
	require.NoError(t, err)
	assert.Empty(t, rec.NameEmbedding)

	rule, err := st.GetRule(ctx, "t1", "vendor", "del")
	require.NoError(t, err)
	assert.NotNil(t, rule)
}

func TestSuggest_FromLearnedRule(t *testing.T) {
	l, _ := newTestLearner(t, &stubEmbedder{})
	ctx := context.Background()

	original := model.ExtractedItem{Name: "Latitude 5540", Type: model.ItemTypeProduct, Vendor: "Del"}
	corrected := original
	corrected.Vendor = "Dell"
	_, err := l.RecordCorrection(ctx, "t1", original, corrected)
	require.NoError(t, err)

	item := model.ExtractedItem{Name: "Latitude 7440", Type: model.ItemTypeProduct, Vendor: "del"}
	suggestions, err := l.Suggest(ctx, "t1", item)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "vendor", suggestions[0].Field)
	assert.Equal(t, "Dell", suggestions[0].Value)
	assert.Equal(t, "learned rule", suggestions[0].Basis)
}

func TestSuggest_RuleDoesNotMatchDifferentValue(t *testing.T) {
	l, _ := newTestLearner(t, &stubEmbedder{})
	ctx := context.Background()

	original := model.ExtractedItem{Name: "Latitude 5540", Type: model.ItemTypeProduct, Vendor: "Del"}
	corrected := original
	corrected.Vendor = "Dell"
	_, err := l.RecordCorrection(ctx, "t1", original, corrected)
	require.NoError(t, err)

	item := model.ExtractedItem{Name: "EliteBook 840", Type: model.ItemTypeProduct, Vendor: "HP Inc"}
	suggestions, err := l.Suggest(ctx, "t1", item)
	require.NoError(t, err)
	for _, s := range suggestions {
		assert.NotEqual(t, "Dell", s.Value)
	}
}

func TestSuggest_FromSimilarCorrection(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"Latitude 5540":        {1, 0, 0},
		"Latitude 5540 Laptop": {0.999, 0.04, 0},
	}}
	l, _ := newTestLearner(t, embedder)
	ctx := context.Background()

	original := model.ExtractedItem{Name: "Latitude 5540", Type: model.ItemTypeProduct}
	corrected := original
	corrected.Category = "laptops"
	_, err := l.RecordCorrection(ctx, "t1", original, corrected)
	require.NoError(t, err)

	item := model.ExtractedItem{Name: "Latitude 5540 Laptop", Type: model.ItemTypeProduct}
	suggestions, err := l.Suggest(ctx, "t1", item)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "category", suggestions[0].Field)
	assert.Equal(t, "laptops", suggestions[0].Value)
	assert.Equal(t, "similar correction", suggestions[0].Basis)
}

func TestFindSimilarCorrections_RespectsThreshold(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"Widget A": {1, 0, 0},
	}}
	l, _ := newTestLearner(t, embedder)
	ctx := context.Background()

	original := model.ExtractedItem{Name: "Widget A", Type: model.ItemTypeProduct, Vendor: "Acme"}
	corrected := original
	corrected.Vendor = "ACME Corp"
	_, err := l.RecordCorrection(ctx, "t1", original, corrected)
	require.NoError(t, err)

	near, err := l.FindSimilarCorrections(ctx, "t1", []float32{1, 0, 0}, 0.9, 10)
	require.NoError(t, err)
	assert.Len(t, near, 1)

	far, err := l.FindSimilarCorrections(ctx, "t1", []float32{0, 1, 0}, 0.9, 10)
	require.NoError(t, err)
	assert.Empty(t, far)
}

func TestRuleConfidence_BoundsAndMonotonicity(t *testing.T) {
	assert.InDelta(t, 0.5, ruleConfidence(0, 0), 1e-9)
	assert.Greater(t, ruleConfidence(5, 0), ruleConfidence(4, 0))
	assert.Less(t, ruleConfidence(1, 5), ruleConfidence(1, 4))
	assert.GreaterOrEqual(t, ruleConfidence(0, 1000), 0.05)
}
