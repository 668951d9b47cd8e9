package port

import (
	"context"

	"newsrag/internal/domain"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns a slice of vectors, one per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// EmbeddingStore persists one current vector per chunk ID.
type EmbeddingStore interface {
	// UpsertBatch replaces any existing vector for each chunk ID. It fails
	// with domain.ErrDimensionMismatch, storing nothing, if any vector has
	// the wrong length.
	UpsertBatch(ctx context.Context, chunkIDs []string, vectors [][]float32, modelID string) error

	Get(ctx context.Context, chunkID string) ([]float32, bool, error)

	// GetAll returns every vector ordered by chunk ID. The order defines
	// index row to metadata row correspondence on rebuild.
	GetAll(ctx context.Context) ([][]float32, []string, error)

	Stats(ctx context.Context) (domain.EmbeddingStats, error)

	// Missing returns chunks that have no stored vector, ordered by chunk ID.
	Missing(ctx context.Context) ([]domain.Chunk, error)

	Dimension() int
}
