package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"newsrag/internal/adapter/store"
	"newsrag/internal/domain"
)

type embedding struct {
	vector  []float32
	modelID string
}

// MemoryStore keeps everything in maps. It is used for tests and for
// throwaway runs with storage.driver "memory".
type MemoryStore struct {
	mu            sync.RWMutex
	opts          store.Options
	articles      map[string]domain.Article
	chunks        map[string]domain.Chunk
	articleChunks map[string][]string
	embeddings    map[string]embedding
}

func NewMemoryStore(opts store.Options) *MemoryStore {
	return &MemoryStore{
		opts:          opts,
		articles:      make(map[string]domain.Article),
		chunks:        make(map[string]domain.Chunk),
		articleChunks: make(map[string][]string),
		embeddings:    make(map[string]embedding),
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) PutArticle(ctx context.Context, article domain.Article) error {
	if article.ID == "" {
		return fmt.Errorf("article has empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[article.ID] = article
	return nil
}

func (s *MemoryStore) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	article, ok := s.articles[id]
	if !ok {
		return domain.Article{}, fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	return article, nil
}

func (s *MemoryStore) ListArticles(ctx context.Context) ([]domain.Article, error) {
	return s.listArticles(func(domain.Article) bool { return true }), nil
}

func (s *MemoryStore) Unprocessed(ctx context.Context) ([]domain.Article, error) {
	return s.listArticles(func(a domain.Article) bool { return !a.Processed }), nil
}

func (s *MemoryStore) listArticles(keep func(domain.Article) bool) []domain.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var articles []domain.Article
	for _, a := range s.articles {
		if keep(a) {
			articles = append(articles, a)
		}
	}
	sort.Slice(articles, func(i, j int) bool { return articles[i].ID < articles[j].ID })
	return articles
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	article, ok := s.articles[id]
	if !ok {
		return fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	article.Processed = true
	s.articles[id] = article
	return nil
}

func (s *MemoryStore) PutChunks(ctx context.Context, articleID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make(map[string]string, len(chunks))
	for _, c := range chunks {
		fresh[c.ID] = c.Content
	}
	for _, id := range s.articleChunks[articleID] {
		content, keep := fresh[id]
		if keep && s.chunks[id].Content == content {
			continue
		}
		delete(s.embeddings, id)
		if !keep {
			delete(s.chunks, id)
		}
	}

	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		c.ArticleID = articleID
		s.chunks[c.ID] = c
		ids = append(ids, c.ID)
	}
	s.articleChunks[articleID] = ids
	return nil
}

func (s *MemoryStore) GetChunk(ctx context.Context, id string) (domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[id]
	if !ok {
		return domain.Chunk{}, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
	}
	return chunk, nil
}

func (s *MemoryStore) ChunksByArticle(ctx context.Context, articleID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.articleChunks[articleID]
	chunks := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			chunks = append(chunks, c)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

func (s *MemoryStore) CountChunks(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *MemoryStore) CorpusStats(ctx context.Context) (domain.CorpusStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := domain.CorpusStats{Articles: len(s.articles), Chunks: len(s.chunks)}
	for _, a := range s.articles {
		if a.Processed {
			stats.Processed++
		}
	}
	return stats, nil
}

func (s *MemoryStore) Dimension() int {
	return s.opts.Dimension
}

func (s *MemoryStore) UpsertBatch(ctx context.Context, chunkIDs []string, vectors [][]float32, modelID string) error {
	if err := store.CheckBatch(chunkIDs, vectors, s.opts.Dimension); err != nil {
		return err
	}
	if len(chunkIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.StrictModel {
		for _, e := range s.embeddings {
			if e.modelID != modelID {
				return fmt.Errorf("store holds %q vectors, got %q: %w", e.modelID, modelID, domain.ErrModelMismatch)
			}
		}
	}
	for i, id := range chunkIDs {
		v := make([]float32, len(vectors[i]))
		copy(v, vectors[i])
		s.embeddings[id] = embedding{vector: v, modelID: modelID}
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, chunkID string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.embeddings[chunkID]
	if !ok {
		return nil, false, nil
	}
	v := make([]float32, len(e.vector))
	copy(v, e.vector)
	return v, true, nil
}

func (s *MemoryStore) GetAll(ctx context.Context) ([][]float32, []string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.embeddings))
	for id := range s.embeddings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	vectors := make([][]float32, len(ids))
	for i, id := range ids {
		v := s.embeddings[id].vector
		vectors[i] = append([]float32(nil), v...)
	}
	return vectors, ids, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (domain.EmbeddingStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := domain.EmbeddingStats{Total: len(s.embeddings), PerModel: make(map[string]int)}
	seen := make(map[int]bool)
	for _, e := range s.embeddings {
		stats.PerModel[e.modelID]++
		if !seen[len(e.vector)] {
			seen[len(e.vector)] = true
			stats.Dims = append(stats.Dims, len(e.vector))
		}
	}
	sort.Ints(stats.Dims)
	return stats, nil
}

func (s *MemoryStore) Missing(ctx context.Context) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var chunks []domain.Chunk
	for id, c := range s.chunks {
		if _, ok := s.embeddings[id]; !ok {
			chunks = append(chunks, c)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })
	return chunks, nil
}
