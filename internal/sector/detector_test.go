package sector

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

// stubEmbedder returns a fixed vector per input text, or fails wholesale.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := s.vectors[t]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func item(name, description string) model.ExtractedItem {
	return model.ExtractedItem{Name: name, Description: description}
}

func TestDetect_EmptyName(t *testing.T) {
	d := NewDetector(nil, nil, DefaultOptions())

	res := d.Detect(context.Background(), item("   ", "some description"), "")

	assert.Equal(t, model.SectorUnknown, res.Sector)
	assert.Zero(t, res.Confidence)
	assert.Equal(t, model.DetectionKeyword, res.Method)
}

func TestDetect_KeywordScoring(t *testing.T) {
	d := NewDetector(nil, nil, DefaultOptions())

	res := d.Detect(context.Background(), item("Dell Laptop", "portable computer with ssd"), "")

	assert.Equal(t, model.SectorElectronics, res.Sector)
	// laptop + computer + ssd = 3 matches, normalized over 3.
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	require.Len(t, res.Reasoning, 1)
	assert.Contains(t, res.Reasoning[0], "laptop")
}

func TestDetect_ConfidenceCapped(t *testing.T) {
	d := NewDetector(nil, nil, DefaultOptions())

	res := d.Detect(context.Background(),
		item("Laptop", "laptop computer monitor smartphone tablet router printer"), "")

	assert.Equal(t, model.SectorElectronics, res.Sector)
	assert.LessOrEqual(t, res.Confidence, 1.0)
}

func TestDetect_NoMatchIsUnknown(t *testing.T) {
	d := NewDetector(nil, nil, DefaultOptions())

	res := d.Detect(context.Background(), item("Zoraxil", "an unclassifiable widget"), "")

	assert.Equal(t, model.SectorUnknown, res.Sector)
	assert.Zero(t, res.Confidence)
}

func TestDetect_PhraseBreaksScoreTie(t *testing.T) {
	d := NewDetector(nil, nil, DefaultOptions())

	// One industrial keyword (pump) against one electronics phrase match
	// (power supply). Equal scores, but the phrase is more specific.
	res := d.Detect(context.Background(), item("Pump Power Supply", ""), "")

	assert.Equal(t, model.SectorElectronics, res.Sector)
}

func TestDetect_ExactTieIsUnknown(t *testing.T) {
	d := NewDetector(nil, nil, DefaultOptions())

	// laptop (electronics) vs pump (industrial), single-word each.
	res := d.Detect(context.Background(), item("Laptop Pump", ""), "")

	assert.Equal(t, model.SectorUnknown, res.Sector)
	require.Len(t, res.Reasoning, 1)
	assert.Contains(t, res.Reasoning[0], "tie")
}

func TestDetect_ContextHintBreaksTie(t *testing.T) {
	d := NewDetector(nil, nil, DefaultOptions())

	res := d.Detect(context.Background(), item("Laptop Pump", ""), "electronics manufacturing")

	assert.Equal(t, model.SectorElectronics, res.Sector)
}

func TestDetect_ContextHintNeedsKeywordEvidence(t *testing.T) {
	d := NewDetector(nil, nil, DefaultOptions())

	// The hint alone never forces a sector with zero keyword matches.
	res := d.Detect(context.Background(), item("Zoraxil", ""), "electronics")

	assert.Equal(t, model.SectorUnknown, res.Sector)
}

func TestDetect_SemanticFallback(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		defaultExemplars[model.SectorFood]: {1, 0, 0},
		"zoraxil spreadable breakfast paste": {1, 0, 0},
	}}
	d := NewDetector(nil, emb, DefaultOptions())

	res := d.Detect(context.Background(), item("Zoraxil", "spreadable breakfast paste"), "")

	assert.Equal(t, model.SectorFood, res.Sector)
	assert.Equal(t, model.DetectionSemantic, res.Method)
	assert.InDelta(t, 1.0, res.Confidence, 1e-6)
}

func TestDetect_SemanticSkippedWhenKeywordsConfident(t *testing.T) {
	emb := &stubEmbedder{err: eris.New("should not be called")}
	d := NewDetector(nil, emb, DefaultOptions())

	res := d.Detect(context.Background(), item("Dell Laptop", "computer with ssd"), "")

	assert.Equal(t, model.SectorElectronics, res.Sector)
	assert.Equal(t, model.DetectionKeyword, res.Method)
}

func TestDetect_SemanticFailureKeepsKeywordResult(t *testing.T) {
	emb := &stubEmbedder{err: eris.New("embedding api down")}
	d := NewDetector(nil, emb, DefaultOptions())

	res := d.Detect(context.Background(), item("Zoraxil", "an unclassifiable widget"), "")

	assert.Equal(t, model.SectorUnknown, res.Sector)
	assert.Equal(t, model.DetectionKeyword, res.Method)
}

func TestDetect_SemanticDisabledByThreshold(t *testing.T) {
	emb := &stubEmbedder{err: eris.New("should not be called")}
	opts := DefaultOptions()
	opts.SemanticThreshold = 0
	d := NewDetector(nil, emb, opts)

	res := d.Detect(context.Background(), item("Zoraxil", ""), "")

	assert.Equal(t, model.SectorUnknown, res.Sector)
}

func TestCountOccurrences(t *testing.T) {
	tests := []struct {
		text string
		kw   string
		want int
	}{
		{"laptop stand for laptop", "laptop", 2},
		{"laptops", "laptop", 0},
		{"(laptop)", "laptop", 1},
		{"power supply unit", "power supply", 1},
		{"power and supply", "power supply", 0},
		{"anything", "", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, countOccurrences(tt.text, tt.kw), "%q in %q", tt.kw, tt.text)
	}
}
