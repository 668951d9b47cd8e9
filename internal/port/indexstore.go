package port

import (
	"context"

	"newsrag/internal/domain"
)

type ArticleStore interface {
	PutArticle(ctx context.Context, article domain.Article) error

	GetArticle(ctx context.Context, id string) (domain.Article, error)

	ListArticles(ctx context.Context) ([]domain.Article, error)

	Unprocessed(ctx context.Context) ([]domain.Article, error)

	MarkProcessed(ctx context.Context, id string) error
}

type ChunkStore interface {
	// PutChunks replaces the chunk set of an article.
	PutChunks(ctx context.Context, articleID string, chunks []domain.Chunk) error

	GetChunk(ctx context.Context, id string) (domain.Chunk, error)

	ChunksByArticle(ctx context.Context, articleID string) ([]domain.Chunk, error)

	CountChunks(ctx context.Context) (int, error)
}

// Store is the full persistence surface a storage driver provides.
type Store interface {
	ArticleStore
	ChunkStore
	EmbeddingStore

	CorpusStats(ctx context.Context) (domain.CorpusStats, error)

	Close() error
}
