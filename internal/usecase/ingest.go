package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"newsrag/internal/adapter/fs"
	"newsrag/internal/domain"
	"newsrag/internal/port"
)

// ingestStore is the part of the store the ingest pipeline touches.
type ingestStore interface {
	port.ArticleStore
	port.ChunkStore
}

// IngestUseCase turns article records into cleaned, language-tagged chunks.
type IngestUseCase struct {
	store           ingestStore
	walker          port.FileWalker
	cleaner         port.Cleaner
	detector        port.LanguageDetector
	chunker         port.Chunker
	minArticleChars int
	logger          *slog.Logger
}

func NewIngestUseCase(
	store ingestStore,
	walker port.FileWalker,
	cleaner port.Cleaner,
	detector port.LanguageDetector,
	chunker port.Chunker,
	minArticleChars int,
	logger *slog.Logger,
) *IngestUseCase {
	return &IngestUseCase{
		store:           store,
		walker:          walker,
		cleaner:         cleaner,
		detector:        detector,
		chunker:         chunker,
		minArticleChars: minArticleChars,
		logger:          logger,
	}
}

// ImportResult contains the results of an import operation.
type ImportResult struct {
	FilesRead       int
	ArticlesAdded   int
	ArticlesUpdated int
	ArticlesSkipped int
	Errors          []string
}

// Import reads article files under root into the store. Unchanged articles
// keep their processed flag; changed ones are queued for processing again.
func (u *IngestUseCase) Import(ctx context.Context, root string) (*ImportResult, error) {
	files, err := u.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	result := &ImportResult{}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		articles, err := fs.LoadArticles(file.Path)
		if err != nil {
			u.logger.Warn("skipping article file", "path", file.Path, "err", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", file.Path, err))
			continue
		}
		result.FilesRead++

		for _, article := range articles {
			if err := u.importArticle(ctx, article, result); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", article.ID, err))
			}
		}
	}

	u.logger.Info("import finished",
		"files", result.FilesRead,
		"added", result.ArticlesAdded,
		"updated", result.ArticlesUpdated,
		"unchanged", result.ArticlesSkipped)
	return result, nil
}

func (u *IngestUseCase) importArticle(ctx context.Context, article domain.Article, result *ImportResult) error {
	existing, err := u.store.GetArticle(ctx, article.ID)
	switch {
	case err == nil:
		if sameArticle(existing, article) {
			result.ArticlesSkipped++
			return nil
		}
		article.Processed = false
		if err := u.store.PutArticle(ctx, article); err != nil {
			return err
		}
		result.ArticlesUpdated++
	case errors.Is(err, domain.ErrNotFound):
		article.Processed = false
		if err := u.store.PutArticle(ctx, article); err != nil {
			return err
		}
		result.ArticlesAdded++
	default:
		return err
	}
	return nil
}

func sameArticle(a, b domain.Article) bool {
	return a.Title == b.Title && a.Content == b.Content && a.Summary == b.Summary &&
		a.Source == b.Source && a.URL == b.URL && a.PublishedAt == b.PublishedAt
}

// Process chunks every unprocessed article and returns how many articles
// were processed. Failures are logged and the article is left unprocessed.
func (u *IngestUseCase) Process(ctx context.Context) (int, error) {
	articles, err := u.store.Unprocessed(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list unprocessed articles: %w", err)
	}
	if len(articles) == 0 {
		u.logger.Info("no unprocessed articles")
		return 0, nil
	}

	processed := 0
	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		n, err := u.ProcessArticle(ctx, article)
		if err != nil {
			u.logger.Error("failed to process article", "article_id", article.ID, "err", err)
			continue
		}
		if n > 0 {
			processed++
		}
	}

	u.logger.Info("processing finished", "processed", processed, "total", len(articles))
	return processed, nil
}

// ProcessArticle cleans, classifies and chunks one article and replaces its
// stored chunks. Articles whose cleaned text is too short are marked
// processed without chunks and report zero.
func (u *IngestUseCase) ProcessArticle(ctx context.Context, article domain.Article) (int, error) {
	text := u.cleaner.Clean(article.FullText())
	if utf8.RuneCountInString(text) < u.minArticleChars {
		u.logger.Debug("article too short", "article_id", article.ID)
		if err := u.store.PutChunks(ctx, article.ID, nil); err != nil {
			return 0, err
		}
		return 0, u.store.MarkProcessed(ctx, article.ID)
	}

	code, ok, confidence := u.detector.Detect(text)
	if !ok {
		code, confidence = "", 0
	}

	chunks := u.chunker.Chunk(text, article.ID)
	for i := range chunks {
		chunks[i].LanguageCode = code
		chunks[i].LanguageConfidence = confidence
	}

	if err := u.store.PutChunks(ctx, article.ID, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := u.store.MarkProcessed(ctx, article.ID); err != nil {
		return 0, err
	}

	u.logger.Debug("article chunked", "article_id", article.ID, "chunks", len(chunks), "language", code)
	return len(chunks), nil
}
