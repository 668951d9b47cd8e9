package index

import (
	"sort"

	"newsrag/internal/domain"
)

type scored struct {
	pos      int
	distance float64
}

// Search ranks by squared L2 distance with similarity 1/(1+d). Ties keep
// index order, so identical calls give identical results.
func (m *Manager) Search(query []float32, k int, threshold *float64) []domain.RetrievalResult {
	snap := m.current.Load()

	if snap.count() == 0 {
		m.logger.Warn("search on empty index")
		return []domain.RetrievalResult{}
	}
	if len(query) != snap.dim {
		m.logger.Warn("query dimension mismatch", "query_dim", len(query), "index_dim", snap.dim)
		return []domain.RetrievalResult{}
	}
	if k <= 0 {
		return []domain.RetrievalResult{}
	}
	k = min(k, snap.count())

	var positions []int
	if snap.search != nil {
		positions = snap.search.candidates(query, k)
	}

	var hits []scored
	if positions == nil {
		hits = make([]scored, snap.count())
		for i, v := range snap.vectors {
			hits[i] = scored{pos: i, distance: squaredL2(query, v)}
		}
	} else {
		hits = make([]scored, 0, len(positions))
		for _, p := range positions {
			if p >= 0 && p < snap.count() {
				hits = append(hits, scored{pos: p, distance: squaredL2(query, snap.vectors[p])})
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance < hits[j].distance
		}
		return hits[i].pos < hits[j].pos
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	results := make([]domain.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		sim := Similarity(h.distance)
		if threshold != nil && sim < *threshold {
			continue
		}
		e := snap.entries[h.pos]
		results = append(results, domain.RetrievalResult{
			Rank:            len(results) + 1,
			ChunkID:         e.ChunkID,
			ArticleID:       e.ArticleID,
			Content:         e.Content,
			SimilarityScore: sim,
			Distance:        h.distance,
			ArticleTitle:    e.Title,
			Source:          e.Source,
			URL:             e.URL,
			PublishedAt:     e.PublishedAt,
		})
	}
	return results
}

// Similarity maps a distance in [0, inf) to (0, 1].
func Similarity(distance float64) float64 {
	return 1 / (1 + distance)
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
