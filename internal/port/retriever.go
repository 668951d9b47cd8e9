package port

import "newsrag/internal/domain"

// VectorIndex is a searchable projection of the embedding store with
// positional metadata. Variants differ only in how candidates are found.
type VectorIndex interface {
	// Build replaces the whole index. Readers see either the old or the new
	// snapshot, never a mix.
	Build(vectors [][]float32, entries []domain.IndexEntry) (int, error)

	// Add appends vectors and their metadata in one step.
	Add(vectors [][]float32, entries []domain.IndexEntry) error

	// Search returns at most min(k, count) results by descending similarity.
	// A nil threshold disables score filtering.
	Search(query []float32, k int, threshold *float64) []domain.RetrievalResult

	Save() error

	Load() error

	Stats() domain.IndexStats
}
