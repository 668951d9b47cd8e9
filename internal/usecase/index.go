package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"newsrag/internal/domain"
	"newsrag/internal/port"
)

// indexSource is what the index builder reads from the store.
type indexSource interface {
	port.ArticleStore
	port.ChunkStore
	port.EmbeddingStore
}

// IndexUseCase rebuilds or extends the vector index from stored embeddings.
type IndexUseCase struct {
	store  indexSource
	index  port.VectorIndex
	logger *slog.Logger
}

func NewIndexUseCase(store indexSource, index port.VectorIndex, logger *slog.Logger) *IndexUseCase {
	return &IndexUseCase{
		store:  store,
		index:  index,
		logger: logger,
	}
}

// Rebuild replaces the index with every stored embedding and persists it.
// An empty store yields an empty index and a nil error.
func (u *IndexUseCase) Rebuild(ctx context.Context) (int, error) {
	vectors, ids, err := u.store.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load embeddings: %w", err)
	}

	entries, err := u.entries(ctx, ids)
	if err != nil {
		return 0, err
	}

	n, err := u.index.Build(vectors, entries)
	if err != nil {
		return 0, fmt.Errorf("failed to build index: %w", err)
	}

	if err := u.index.Save(); err != nil {
		return n, err
	}

	u.logger.Info("index rebuilt", "vectors", n, "kind", u.index.Stats().Kind)
	return n, nil
}

// Extend adds the given chunks to the current index, replacing rows with
// the same chunk id. Chunks with no stored vector are skipped. If the index
// still disagrees with the store afterwards it is rebuilt.
func (u *IndexUseCase) Extend(ctx context.Context, chunkIDs []string) (int, error) {
	var (
		vectors [][]float32
		ids     []string
	)
	for _, id := range chunkIDs {
		v, ok, err := u.store.Get(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("failed to load embedding %s: %w", id, err)
		}
		if !ok {
			u.logger.Warn("no embedding for chunk", "chunk_id", id)
			continue
		}
		vectors = append(vectors, v)
		ids = append(ids, id)
	}
	if len(vectors) == 0 {
		return 0, nil
	}

	entries, err := u.entries(ctx, ids)
	if err != nil {
		return 0, err
	}

	if err := u.index.Add(vectors, entries); err != nil {
		return 0, fmt.Errorf("failed to extend index: %w", err)
	}

	// Rows of chunks deleted since the last build cannot be found from the
	// incoming ids, so a count that disagrees with the store forces a rebuild.
	stats, err := u.store.Stats(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read embedding stats: %w", err)
	}
	if stats.Total != u.index.Stats().Count {
		u.logger.Info("index out of step with store, rebuilding",
			"indexed", u.index.Stats().Count, "stored", stats.Total)
		if _, err := u.Rebuild(ctx); err != nil {
			return 0, err
		}
		return len(vectors), nil
	}

	if err := u.index.Save(); err != nil {
		return len(vectors), err
	}

	u.logger.Info("index extended", "added", len(vectors), "total", u.index.Stats().Count)
	return len(vectors), nil
}

// entries joins chunk ids to their chunk and article for display.
func (u *IndexUseCase) entries(ctx context.Context, ids []string) ([]domain.IndexEntry, error) {
	articles := make(map[string]*domain.Article)
	entries := make([]domain.IndexEntry, len(ids))

	for i, id := range ids {
		chunk, err := u.store.GetChunk(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			entries[i] = domain.IndexEntry{ChunkID: id, Content: "Unknown"}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load chunk %s: %w", id, err)
		}

		entry := domain.IndexEntry{
			ChunkID:    id,
			ArticleID:  chunk.ArticleID,
			Content:    chunk.Content,
			ChunkIndex: chunk.Index,
		}

		article, seen := articles[chunk.ArticleID]
		if !seen {
			a, err := u.store.GetArticle(ctx, chunk.ArticleID)
			switch {
			case err == nil:
				article = &a
			case errors.Is(err, domain.ErrNotFound):
			default:
				return nil, fmt.Errorf("failed to load article %s: %w", chunk.ArticleID, err)
			}
			articles[chunk.ArticleID] = article
		}
		if article != nil {
			entry.Title = article.Title
			entry.Source = article.Source
			entry.URL = article.URL
			entry.PublishedAt = article.PublishedAt
		}

		entries[i] = entry
	}
	return entries, nil
}
