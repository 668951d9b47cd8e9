package index

import (
	"github.com/coder/hnsw"
)

// hnswSearcher narrows the candidate set with an HNSW graph. Candidates are
// re-scored exactly, so only recall differs from the exact index.
type hnswSearcher struct {
	graph    *hnsw.Graph[int]
	efSearch int
}

func newHNSWSearcher(vectors [][]float32, m, efSearch int) *hnswSearcher {
	g := hnsw.NewGraph[int]()
	g.Distance = hnsw.EuclideanDistance
	if m > 0 {
		g.M = m
	}
	if efSearch > 0 {
		g.EfSearch = efSearch
	}

	nodes := make([]hnsw.Node[int], len(vectors))
	for i, v := range vectors {
		nodes[i] = hnsw.MakeNode(i, v)
	}
	g.Add(nodes...)

	return &hnswSearcher{graph: g, efSearch: efSearch}
}

func (h *hnswSearcher) candidates(query []float32, k int) []int {
	n := max(k, h.efSearch)
	nodes := h.graph.Search(query, n)
	positions := make([]int, len(nodes))
	for i, node := range nodes {
		positions[i] = node.Key
	}
	return positions
}
