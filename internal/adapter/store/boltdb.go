package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"
	"newsrag/internal/domain"
)

var (
	bucketArticles      = []byte("articles")
	bucketChunks        = []byte("chunks")
	bucketBlobs         = []byte("blobs")
	bucketArticleChunks = []byte("article_chunks")
	bucketEmbeddings    = []byte("embeddings")
	bucketStats         = []byte("stats")
)

// Options configures the embedding side of a store.
type Options struct {
	Dimension int
	// StrictModel rejects upserts while the store holds vectors of another
	// model.
	StrictModel bool
}

type BoltStore struct {
	db   *bbolt.DB
	opts Options
}

func NewBoltStore(path string, opts Options) (*BoltStore, error) {
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", opts.Dimension)
	}

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketArticles, bucketChunks, bucketBlobs, bucketArticleChunks, bucketEmbeddings, bucketStats}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, opts: opts}, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

type articleMeta struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Summary     string `json:"summary,omitempty"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at"`
	Language    string `json:"language,omitempty"`
	Processed   bool   `json:"processed"`
}

type chunkMeta struct {
	ArticleID          string  `json:"article_id"`
	Index              int     `json:"chunk_index"`
	StartPos           int     `json:"start_pos"`
	EndPos             int     `json:"end_pos"`
	WordCount          int     `json:"word_count"`
	CharCount          int     `json:"char_count"`
	LanguageCode       string  `json:"language_code,omitempty"`
	LanguageConfidence float64 `json:"language_confidence"`
}

func (s *BoltStore) PutArticle(ctx context.Context, article domain.Article) error {
	if article.ID == "" {
		return fmt.Errorf("article has empty id")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		meta := articleMeta{
			Title:       article.Title,
			URL:         article.URL,
			Summary:     article.Summary,
			Source:      article.Source,
			PublishedAt: article.PublishedAt,
			Language:    article.Language,
			Processed:   article.Processed,
		}
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketArticles).Put([]byte(article.ID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketBlobs).Put(articleBlobKey(article.ID), []byte(article.Content))
	})
}

func (s *BoltStore) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	var article domain.Article
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketArticles).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
		}
		var err error
		article, err = decodeArticle(tx, []byte(id), data)
		return err
	})
	return article, err
}

func (s *BoltStore) ListArticles(ctx context.Context) ([]domain.Article, error) {
	return s.listArticles(func(domain.Article) bool { return true })
}

func (s *BoltStore) Unprocessed(ctx context.Context) ([]domain.Article, error) {
	return s.listArticles(func(a domain.Article) bool { return !a.Processed })
}

func (s *BoltStore) listArticles(keep func(domain.Article) bool) ([]domain.Article, error) {
	var articles []domain.Article
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketArticles).ForEach(func(k, v []byte) error {
			article, err := decodeArticle(tx, k, v)
			if err != nil {
				return err
			}
			if keep(article) {
				articles = append(articles, article)
			}
			return nil
		})
	})
	return articles, err
}

func (s *BoltStore) MarkProcessed(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketArticles)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
		}
		var meta articleMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		meta.Processed = true
		updated, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), updated)
	})
}

func decodeArticle(tx *bbolt.Tx, key, data []byte) (domain.Article, error) {
	var meta articleMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.Article{}, fmt.Errorf("decode article %s: %w", key, err)
	}
	id := string(key)
	return domain.Article{
		ID:          id,
		Title:       meta.Title,
		URL:         meta.URL,
		Content:     string(tx.Bucket(bucketBlobs).Get(articleBlobKey(id))),
		Summary:     meta.Summary,
		Source:      meta.Source,
		PublishedAt: meta.PublishedAt,
		Language:    meta.Language,
		Processed:   meta.Processed,
	}, nil
}

// PutChunks replaces the chunk set of an article. Chunks that disappear or
// whose content changed lose their embedding so they are re-embedded.
func (s *BoltStore) PutChunks(ctx context.Context, articleID string, chunks []domain.Chunk) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		chunkBucket := tx.Bucket(bucketChunks)
		blobBucket := tx.Bucket(bucketBlobs)
		embBucket := tx.Bucket(bucketEmbeddings)
		articleChunks := tx.Bucket(bucketArticleChunks)

		fresh := make(map[string]string, len(chunks))
		for _, c := range chunks {
			fresh[c.ID] = c.Content
		}

		var oldIDs []string
		if existing := articleChunks.Get([]byte(articleID)); existing != nil {
			if err := json.Unmarshal(existing, &oldIDs); err != nil {
				return err
			}
		}
		for _, id := range oldIDs {
			content, keep := fresh[id]
			if keep && string(blobBucket.Get(chunkBlobKey(id))) == content {
				continue
			}
			if err := embBucket.Delete([]byte(id)); err != nil {
				return err
			}
			if keep {
				continue
			}
			if err := chunkBucket.Delete([]byte(id)); err != nil {
				return err
			}
			if err := blobBucket.Delete(chunkBlobKey(id)); err != nil {
				return err
			}
		}

		chunkIDs := make([]string, 0, len(chunks))
		for _, c := range chunks {
			meta := chunkMeta{
				ArticleID:          articleID,
				Index:              c.Index,
				StartPos:           c.StartPos,
				EndPos:             c.EndPos,
				WordCount:          c.WordCount,
				CharCount:          c.CharCount,
				LanguageCode:       c.LanguageCode,
				LanguageConfidence: c.LanguageConfidence,
			}
			data, err := json.Marshal(meta)
			if err != nil {
				return err
			}
			if err := chunkBucket.Put([]byte(c.ID), data); err != nil {
				return err
			}
			if err := blobBucket.Put(chunkBlobKey(c.ID), []byte(c.Content)); err != nil {
				return err
			}
			chunkIDs = append(chunkIDs, c.ID)
		}

		data, err := json.Marshal(chunkIDs)
		if err != nil {
			return err
		}
		return articleChunks.Put([]byte(articleID), data)
	})
}

func (s *BoltStore) GetChunk(ctx context.Context, id string) (domain.Chunk, error) {
	var chunk domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketChunks).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
		}
		var err error
		chunk, err = decodeChunk(tx, []byte(id), data)
		return err
	})
	return chunk, err
}

func (s *BoltStore) ChunksByArticle(ctx context.Context, articleID string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketArticleChunks).Get([]byte(articleID))
		if data == nil {
			return nil
		}
		var chunkIDs []string
		if err := json.Unmarshal(data, &chunkIDs); err != nil {
			return err
		}
		chunkBucket := tx.Bucket(bucketChunks)
		for _, id := range chunkIDs {
			data := chunkBucket.Get([]byte(id))
			if data == nil {
				continue
			}
			chunk, err := decodeChunk(tx, []byte(id), data)
			if err != nil {
				return err
			}
			chunks = append(chunks, chunk)
		}
		return nil
	})
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, err
}

func (s *BoltStore) CountChunks(ctx context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketChunks).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *BoltStore) CorpusStats(ctx context.Context) (domain.CorpusStats, error) {
	var stats domain.CorpusStats
	err := s.db.View(func(tx *bbolt.Tx) error {
		stats.Chunks = tx.Bucket(bucketChunks).Stats().KeyN
		return tx.Bucket(bucketArticles).ForEach(func(k, v []byte) error {
			var meta articleMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			stats.Articles++
			if meta.Processed {
				stats.Processed++
			}
			return nil
		})
	})
	return stats, err
}

func decodeChunk(tx *bbolt.Tx, key, data []byte) (domain.Chunk, error) {
	var meta chunkMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.Chunk{}, fmt.Errorf("decode chunk %s: %w", key, err)
	}
	id := string(key)
	return domain.Chunk{
		ID:                 id,
		ArticleID:          meta.ArticleID,
		Content:            string(tx.Bucket(bucketBlobs).Get(chunkBlobKey(id))),
		Index:              meta.Index,
		StartPos:           meta.StartPos,
		EndPos:             meta.EndPos,
		WordCount:          meta.WordCount,
		CharCount:          meta.CharCount,
		LanguageCode:       meta.LanguageCode,
		LanguageConfidence: meta.LanguageConfidence,
	}, nil
}

func articleBlobKey(id string) []byte { return []byte("a:" + id) }
func chunkBlobKey(id string) []byte   { return []byte("c:" + id) }
