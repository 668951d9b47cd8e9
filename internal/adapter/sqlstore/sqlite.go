// Package sqlstore provides a SQLite-backed port.Store.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"

	"newsrag/internal/adapter/store"
	"newsrag/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	url          TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	summary      TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT '',
	published_at TEXT NOT NULL DEFAULT '',
	language     TEXT NOT NULL DEFAULT '',
	processed    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS chunks (
	chunk_id            TEXT PRIMARY KEY,
	article_id          TEXT NOT NULL,
	content             TEXT NOT NULL,
	chunk_index         INTEGER NOT NULL,
	start_pos           INTEGER NOT NULL,
	end_pos             INTEGER NOT NULL,
	word_count          INTEGER NOT NULL,
	char_count          INTEGER NOT NULL,
	language_code       TEXT NOT NULL DEFAULT '',
	language_confidence REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_chunks_article ON chunks(article_id);

CREATE TABLE IF NOT EXISTS embeddings (
	chunk_id  TEXT PRIMARY KEY,
	embedding BLOB NOT NULL,
	dim       INTEGER NOT NULL,
	model_id  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS store_info (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const keyConfigHash = "config_hash"

// SQLiteStore implements port.Store on a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	opts store.Options
}

// NewSQLiteStore opens (or creates) the database at path. path may be
// ":memory:" for a private in-memory database.
func NewSQLiteStore(path string, opts store.Options) (*SQLiteStore, error) {
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", opts.Dimension)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; also keeps ":memory:" to a single database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, opts: opts}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ConfigHash returns the recorded chunking and embedding config hash, or ""
// for a new database.
func (s *SQLiteStore) ConfigHash() (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT value FROM store_info WHERE key = ?`, keyConfigHash).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

func (s *SQLiteStore) SetConfigHash(hash string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO store_info (key, value) VALUES (?, ?)`, keyConfigHash, hash)
	return err
}

// ClearEmbeddings drops every stored vector, keeping articles and chunks.
func (s *SQLiteStore) ClearEmbeddings() error {
	_, err := s.db.Exec(`DELETE FROM embeddings`)
	return err
}

// RequeueArticles marks every article unprocessed so the next ingest run
// re-chunks it.
func (s *SQLiteStore) RequeueArticles() error {
	_, err := s.db.Exec(`UPDATE articles SET processed = 0`)
	return err
}

func (s *SQLiteStore) PutArticle(ctx context.Context, a domain.Article) error {
	if a.ID == "" {
		return fmt.Errorf("article has empty id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO articles
			(id, title, url, content, summary, source, published_at, language, processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.URL, a.Content, a.Summary, a.Source, a.PublishedAt, a.Language, a.Processed)
	if err != nil {
		return fmt.Errorf("put article %s: %w", a.ID, err)
	}
	return nil
}

const articleColumns = `id, title, url, content, summary, source, published_at, language, processed`

func scanArticle(row interface{ Scan(...any) error }) (domain.Article, error) {
	var a domain.Article
	err := row.Scan(&a.ID, &a.Title, &a.URL, &a.Content, &a.Summary, &a.Source, &a.PublishedAt, &a.Language, &a.Processed)
	return a, err
}

func (s *SQLiteStore) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	return a, err
}

func (s *SQLiteStore) ListArticles(ctx context.Context) ([]domain.Article, error) {
	return s.queryArticles(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY id`)
}

func (s *SQLiteStore) Unprocessed(ctx context.Context) ([]domain.Article, error) {
	return s.queryArticles(ctx, `SELECT `+articleColumns+` FROM articles WHERE processed = 0 ORDER BY id`)
}

func (s *SQLiteStore) queryArticles(ctx context.Context, query string) ([]domain.Article, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE articles SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark processed %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// PutChunks replaces the chunk set of an article in one transaction. Chunks
// that disappear or whose content changed lose their embedding.
func (s *SQLiteStore) PutChunks(ctx context.Context, articleID string, chunks []domain.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	fresh := make(map[string]string, len(chunks))
	for _, c := range chunks {
		fresh[c.ID] = c.Content
	}

	rows, err := tx.QueryContext(ctx, `SELECT chunk_id, content FROM chunks WHERE article_id = ?`, articleID)
	if err != nil {
		return fmt.Errorf("query chunks: %w", err)
	}
	var stale, gone []string
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			rows.Close()
			return err
		}
		newContent, keep := fresh[id]
		switch {
		case !keep:
			gone = append(gone, id)
			stale = append(stale, id)
		case newContent != content:
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE chunk_id = ?`, id); err != nil {
			return err
		}
	}
	for _, id := range gone {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE chunk_id = ?`, id); err != nil {
			return err
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
			(chunk_id, article_id, content, chunk_index, start_pos, end_pos,
			 word_count, char_count, language_code, language_confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		_, err := stmt.ExecContext(ctx, c.ID, articleID, c.Content, c.Index, c.StartPos, c.EndPos,
			c.WordCount, c.CharCount, c.LanguageCode, c.LanguageConfidence)
		if err != nil {
			return fmt.Errorf("put chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

const chunkColumns = `chunk_id, article_id, content, chunk_index, start_pos, end_pos,
	word_count, char_count, language_code, language_confidence`

func scanChunk(row interface{ Scan(...any) error }) (domain.Chunk, error) {
	var c domain.Chunk
	err := row.Scan(&c.ID, &c.ArticleID, &c.Content, &c.Index, &c.StartPos, &c.EndPos,
		&c.WordCount, &c.CharCount, &c.LanguageCode, &c.LanguageConfidence)
	return c, err
}

func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (domain.Chunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE chunk_id = ?`, id)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Chunk{}, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
	}
	return c, err
}

func (s *SQLiteStore) ChunksByArticle(ctx context.Context, articleID string) ([]domain.Chunk, error) {
	return s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE article_id = ? ORDER BY chunk_index`, articleID)
}

func (s *SQLiteStore) queryChunks(ctx context.Context, query string, args ...any) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) CountChunks(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) CorpusStats(ctx context.Context) (domain.CorpusStats, error) {
	var stats domain.CorpusStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM articles),
			(SELECT COUNT(*) FROM articles WHERE processed = 1),
			(SELECT COUNT(*) FROM chunks)`).
		Scan(&stats.Articles, &stats.Processed, &stats.Chunks)
	return stats, err
}

func (s *SQLiteStore) Dimension() int {
	return s.opts.Dimension
}

func (s *SQLiteStore) UpsertBatch(ctx context.Context, chunkIDs []string, vectors [][]float32, modelID string) error {
	if err := store.CheckBatch(chunkIDs, vectors, s.opts.Dimension); err != nil {
		return err
	}
	if len(chunkIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if s.opts.StrictModel {
		var other string
		err := tx.QueryRowContext(ctx,
			`SELECT model_id FROM embeddings WHERE model_id != ? LIMIT 1`, modelID).Scan(&other)
		switch {
		case err == nil:
			return fmt.Errorf("store holds %q vectors, got %q: %w", other, modelID, domain.ErrModelMismatch)
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO embeddings (chunk_id, embedding, dim, model_id) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, id, store.EncodeVector(vectors[i]), len(vectors[i]), modelID); err != nil {
			return fmt.Errorf("upsert embedding %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, chunkID string) ([]float32, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT embedding FROM embeddings WHERE chunk_id = ?`, chunkID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := store.DecodeVector(blob)
	if err != nil {
		return nil, false, fmt.Errorf("decode embedding %s: %w", chunkID, err)
	}
	return v, true, nil
}

// GetAll relies on the BINARY collation of chunk_id for byte-wise order.
func (s *SQLiteStore) GetAll(ctx context.Context) ([][]float32, []string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, embedding FROM embeddings ORDER BY chunk_id`)
	if err != nil {
		return nil, nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var (
		vectors [][]float32
		ids     []string
	)
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, nil, err
		}
		v, err := store.DecodeVector(blob)
		if err != nil {
			return nil, nil, fmt.Errorf("decode embedding %s: %w", id, err)
		}
		vectors = append(vectors, v)
		ids = append(ids, id)
	}
	return vectors, ids, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (domain.EmbeddingStats, error) {
	stats := domain.EmbeddingStats{PerModel: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT model_id, dim, COUNT(*) FROM embeddings GROUP BY model_id, dim`)
	if err != nil {
		return stats, fmt.Errorf("query embedding stats: %w", err)
	}
	defer rows.Close()

	dims := make(map[int]bool)
	for rows.Next() {
		var (
			model  string
			dim, n int
		)
		if err := rows.Scan(&model, &dim, &n); err != nil {
			return stats, err
		}
		stats.Total += n
		stats.PerModel[model] += n
		if !dims[dim] {
			dims[dim] = true
			stats.Dims = append(stats.Dims, dim)
		}
	}
	sort.Ints(stats.Dims)
	return stats, rows.Err()
}

func (s *SQLiteStore) Missing(ctx context.Context) ([]domain.Chunk, error) {
	return s.queryChunks(ctx, `
		SELECT `+chunkColumns+` FROM chunks
		WHERE chunk_id NOT IN (SELECT chunk_id FROM embeddings)
		ORDER BY chunk_id`)
}
