package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"newsrag/internal/domain"
	"newsrag/internal/port"
)

// RetrieveUseCase embeds a query, searches the index and assembles the
// context handed to answer synthesis.
type RetrieveUseCase struct {
	embedder     port.Embedder
	index        port.VectorIndex
	embedTimeout time.Duration
	logger       *slog.Logger
}

// NewRetrieveUseCase creates a new retrieve use case. The embedder must be
// the one the corpus was embedded with.
func NewRetrieveUseCase(embedder port.Embedder, index port.VectorIndex, embedTimeout time.Duration, logger *slog.Logger) *RetrieveUseCase {
	return &RetrieveUseCase{
		embedder:     embedder,
		index:        index,
		embedTimeout: embedTimeout,
		logger:       logger,
	}
}

// RetrieveOptions controls one retrieval pass.
type RetrieveOptions struct {
	TopK           int
	ScoreThreshold float64
	IncludeSources bool
}

// Filter restricts results by case-insensitive substring matches. Empty
// fields match everything.
type Filter struct {
	Source string
	Date   string
}

func (f Filter) match(r domain.RetrievalResult) bool {
	if f.Source != "" && !strings.Contains(strings.ToLower(r.Source), strings.ToLower(f.Source)) {
		return false
	}
	if f.Date != "" && !strings.Contains(strings.ToLower(r.PublishedAt), strings.ToLower(f.Date)) {
		return false
	}
	return true
}

// Retrieve returns the ranked documents for query. Only a failure to embed
// the query is an error; an empty index gives an empty retrieval.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, query string, opts RetrieveOptions) (*domain.Retrieval, error) {
	results, err := u.search(ctx, query, opts.TopK, opts.ScoreThreshold)
	if err != nil {
		return nil, err
	}
	return assemble(query, results, opts), nil
}

// RetrieveFiltered over-fetches, keeps results matching filter and ranks the
// survivors 1..n.
func (u *RetrieveUseCase) RetrieveFiltered(ctx context.Context, query string, filter Filter, opts RetrieveOptions) (*domain.Retrieval, error) {
	results, err := u.search(ctx, query, opts.TopK*2, opts.ScoreThreshold)
	if err != nil {
		return nil, err
	}

	kept := make([]domain.RetrievalResult, 0, len(results))
	for _, r := range results {
		if filter.match(r) {
			kept = append(kept, r)
		}
	}
	if len(kept) > opts.TopK {
		kept = kept[:opts.TopK]
	}
	for i := range kept {
		kept[i].Rank = i + 1
	}

	return assemble(query, kept, opts), nil
}

func (u *RetrieveUseCase) search(ctx context.Context, query string, k int, threshold float64) ([]domain.RetrievalResult, error) {
	if u.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.embedTimeout)
		defer cancel()
	}

	vectors, err := u.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("failed to embed query: got %d vectors", len(vectors))
	}

	results := u.index.Search(vectors[0], k, &threshold)
	u.logger.Debug("retrieved documents", "query", truncate(query, 50), "results", len(results), "top_k", k)
	return results, nil
}

func assemble(query string, results []domain.RetrievalResult, opts RetrieveOptions) *domain.Retrieval {
	r := &domain.Retrieval{
		Query:          query,
		Documents:      results,
		Sources:        []string{},
		TotalResults:   len(results),
		TopKRequested:  opts.TopK,
		ScoreThreshold: opts.ScoreThreshold,
	}
	if len(results) == 0 {
		r.Documents = []domain.RetrievalResult{}
		return r
	}

	var (
		parts []string
		sum   float64
		seen  = make(map[string]bool)
	)
	for i, doc := range results {
		parts = append(parts, fmt.Sprintf("[Document %d]: %s", i+1, doc.Content))
		sum += doc.SimilarityScore

		if opts.IncludeSources {
			src := doc.Source + " - " + doc.ArticleTitle
			if !seen[src] {
				seen[src] = true
				r.Sources = append(r.Sources, src)
			}
		}
	}
	r.ContextText = strings.Join(parts, "\n\n")
	r.AvgSimilarity = sum / float64(len(results))

	if !opts.IncludeSources {
		for i := range r.Documents {
			r.Documents[i].ArticleID = ""
			r.Documents[i].URL = ""
			r.Documents[i].PublishedAt = ""
		}
	}
	return r
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
