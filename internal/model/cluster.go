package model

// PairSimilarity records the similarity score between two clustered items,
// identified by their indexes in the batch that was clustered.
type PairSimilarity struct {
	A          int     `json:"a"`
	B          int     `json:"b"`
	Similarity float64 `json:"similarity"`
}

// DuplicateCluster groups batch items judged to be the same underlying
// entity. Canonical is the index of the representative member, chosen as the
// item with the highest overall confidence.
type DuplicateCluster struct {
	Items        []int            `json:"items"`
	Canonical    int              `json:"canonical"`
	Similarities []PairSimilarity `json:"similarities,omitempty"`
}

// Singleton reports whether the cluster contains exactly one item.
func (c DuplicateCluster) Singleton() bool {
	return len(c.Items) == 1
}
