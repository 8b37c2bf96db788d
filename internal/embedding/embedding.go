// Package embedding defines the embedding contract shared by sector
// detection, deduplication, and correction learning, plus the vector math
// used on the results.
package embedding

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
)

// Embedder produces one vector per input text, in input order.
// pkg/jina satisfies this; tests substitute deterministic fakes.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, eris.Errorf("embedding: got %d vectors for one input", len(vecs))
	}
	return vecs[0], nil
}

// Cosine returns the cosine similarity of two vectors, or 0 when either is
// empty, zero, or the dimensions disagree.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
