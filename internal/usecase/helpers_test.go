package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"newsrag/internal/adapter/chunker"
	"newsrag/internal/adapter/cleaner"
	"newsrag/internal/adapter/embedding"
	"newsrag/internal/adapter/fs"
	"newsrag/internal/adapter/index"
	"newsrag/internal/adapter/memstore"
	"newsrag/internal/adapter/store"
	"newsrag/internal/domain"
	"newsrag/internal/logger"
)

const testDim = 1024

type fixedDetector struct {
	code       string
	confidence float64
}

func (d fixedDetector) Detect(text string) (string, bool, float64) {
	if len(text) < 10 {
		return "", false, 0
	}
	return d.code, true, d.confidence
}

// failingEmbedder fails every call.
type failingEmbedder struct{ dim int }

func (e failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("embedding service unreachable")
}
func (e failingEmbedder) Dimension() int    { return e.dim }
func (e failingEmbedder) ModelName() string { return "failing" }

var renewableArticles = []domain.Article{
	{
		ID: "solar-spain", Title: "Solar farms expand across Spain", Source: "Reuters",
		URL: "https://example.com/solar-spain", PublishedAt: "2024-03-01",
		Content: "Renewable energy capacity from solar farms grew sharply this year. Energy ministers praised renewable investment in the southern regions.",
	},
	{
		ID: "wind-north-sea", Title: "North Sea wind auction sets record", Source: "Bloomberg",
		URL: "https://example.com/wind", PublishedAt: "2024-03-02",
		Content: "Offshore wind is now the cheapest renewable energy source in Britain. The auction adds enough renewable energy for millions of homes.",
	},
	{
		ID: "grid-storage", Title: "Grid storage unlocks renewable energy", Source: "Reuters",
		URL: "https://example.com/storage", PublishedAt: "2024-03-03",
		Content: "Battery storage lets utilities keep renewable energy flowing after sunset. Energy regulators approved new renewable storage projects.",
	},
	{
		ID: "hydrogen", Title: "Green hydrogen plans gather pace", Source: "Financial Times",
		URL: "https://example.com/hydrogen", PublishedAt: "2024-03-04",
		Content: "Producers use renewable energy to split water into hydrogen. Investors expect renewable energy prices to keep falling.",
	},
	{
		ID: "energy-jobs", Title: "Renewable energy jobs hit new high", Source: "AP",
		URL: "https://example.com/jobs", PublishedAt: "2024-03-05",
		Content: "Employment in renewable energy rose for the fifth year. Solar and wind energy installers led the renewable hiring boom.",
	},
}

var unrelatedArticles = []domain.Article{
	{
		ID: "football", Title: "Late goal settles derby", Source: "BBC Sport", PublishedAt: "2024-03-01",
		Content: "A stoppage time header decided the derby at the stadium. Supporters celebrated in the streets until midnight.",
	},
	{
		ID: "recipe", Title: "Autumn soup recipes", Source: "Food Weekly", PublishedAt: "2024-03-02",
		Content: "Roast pumpkin with garlic and thyme before blending it smooth. Serve the soup with toasted bread and cheese.",
	},
	{
		ID: "election", Title: "Mayor wins second term", Source: "Local Times", PublishedAt: "2024-03-03",
		Content: "Voters returned the mayor with a comfortable majority. Turnout was higher than at the previous municipal ballot.",
	},
	{
		ID: "museum", Title: "Museum reopens painting gallery", Source: "Culture Desk", PublishedAt: "2024-03-04",
		Content: "Restored portraits are back on display in the east wing. Curators spent two years cleaning the old canvases.",
	},
	{
		ID: "chess", Title: "Teenager claims chess title", Source: "AP", PublishedAt: "2024-03-05",
		Content: "The sixteen year old won the final game with a daring sacrifice. Spectators applauded as the veteran resigned.",
	},
}

// pipeline wires the in-memory store, hash embedder and exact index.
type pipeline struct {
	store    *memstore.MemoryStore
	embedder *embedding.HashEmbedder
	index    *index.Manager
	ingest   *IngestUseCase
	embed    *EmbedUseCase
	indexer  *IndexUseCase
	retrieve *RetrieveUseCase
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	log := logger.Nop()

	st := memstore.NewMemoryStore(store.Options{Dimension: testDim})
	emb := embedding.NewHashEmbedder(testDim)
	idx, err := index.New(index.Options{Kind: index.KindExact, Dir: t.TempDir(), Dimension: testDim}, log)
	require.NoError(t, err)

	return &pipeline{
		store:    st,
		embedder: emb,
		index:    idx,
		ingest: NewIngestUseCase(st, fs.NewWalker(nil, nil), cleaner.NewTextCleaner(),
			fixedDetector{code: "en", confidence: 0.97}, chunker.NewSentenceChunker(512, 50, 40), 50, log),
		embed:    NewEmbedUseCase(st, emb, 4, 2, log),
		indexer:  NewIndexUseCase(st, idx, log),
		retrieve: NewRetrieveUseCase(embedding.NewCachedEmbedder(emb, 16, 0), idx, 0, log),
	}
}

// load runs the whole offline pipeline over articles.
func (p *pipeline) load(t *testing.T, articles ...domain.Article) {
	t.Helper()
	ctx := context.Background()
	for _, a := range articles {
		require.NoError(t, p.store.PutArticle(ctx, a))
	}
	_, err := p.ingest.Process(ctx)
	require.NoError(t, err)
	_, err = p.embed.Run(ctx, nil)
	require.NoError(t, err)
	_, err = p.indexer.Rebuild(ctx)
	require.NoError(t, err)
}

func corpus() []domain.Article {
	return append(append([]domain.Article{}, renewableArticles...), unrelatedArticles...)
}
