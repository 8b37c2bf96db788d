package enrich

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/embedding"
	"github.com/sells-group/enrich-cli/internal/model"
)

// DefaultDedupeThreshold is the cosine similarity above which two items are
// considered the same underlying entity.
const DefaultDedupeThreshold = 0.95

// Deduplicator clusters batch results that refer to the same entity using
// name+description embeddings.
type Deduplicator struct {
	embedder  embedding.Embedder
	threshold float64
}

// NewDeduplicator creates a Deduplicator. A threshold outside (0, 1] falls
// back to DefaultDedupeThreshold.
func NewDeduplicator(embedder embedding.Embedder, threshold float64) *Deduplicator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultDedupeThreshold
	}
	return &Deduplicator{embedder: embedder, threshold: threshold}
}

// Cluster groups items whose embeddings are within the similarity threshold.
// Every pair is compared; batches are small enough that the quadratic cost
// stays negligible next to the embedding call itself. If embedding fails,
// every item becomes a singleton.
func (d *Deduplicator) Cluster(ctx context.Context, items []model.EnrichedItem) []model.DuplicateCluster {
	if len(items) == 0 {
		return nil
	}
	if d == nil || d.embedder == nil || len(items) == 1 {
		return singletons(len(items))
	}

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = strings.TrimSpace(it.Name + " " + it.Description)
	}
	vecs, err := d.embedder.Embed(ctx, texts)
	if err != nil || len(vecs) != len(items) {
		zap.L().Warn("dedupe embedding failed, treating all items as unique", zap.Error(err))
		return singletons(len(items))
	}

	uf := newUnionFind(len(items))
	var pairs []model.PairSimilarity
	for a := 0; a < len(items); a++ {
		for b := a + 1; b < len(items); b++ {
			sim := embedding.Cosine(vecs[a], vecs[b])
			if sim >= d.threshold {
				uf.union(a, b)
				pairs = append(pairs, model.PairSimilarity{A: a, B: b, Similarity: sim})
			}
		}
	}

	byRoot := make(map[int][]int)
	for i := range items {
		root := uf.find(i)
		byRoot[root] = append(byRoot[root], i)
	}

	clusters := make([]model.DuplicateCluster, 0, len(byRoot))
	for _, members := range byRoot {
		sort.Ints(members)
		canonical := members[0]
		for _, idx := range members[1:] {
			if items[idx].ConfidenceOverall > items[canonical].ConfidenceOverall {
				canonical = idx
			}
		}
		cluster := model.DuplicateCluster{Items: members, Canonical: canonical}
		for _, p := range pairs {
			if uf.find(p.A) == uf.find(members[0]) {
				cluster.Similarities = append(cluster.Similarities, p)
			}
		}
		clusters = append(clusters, cluster)
	}

	// Stable output order: by first member index.
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Items[0] < clusters[j].Items[0] })
	return clusters
}

func singletons(n int) []model.DuplicateCluster {
	clusters := make([]model.DuplicateCluster, n)
	for i := range clusters {
		clusters[i] = model.DuplicateCluster{Items: []int{i}, Canonical: i}
	}
	return clusters
}

// unionFind is a plain union-find with path compression and union by size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}
