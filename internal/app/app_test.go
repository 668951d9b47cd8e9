package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsrag/config"
	"newsrag/internal/domain"
	"newsrag/internal/logger"
)

const feed = `[
  {"title": "Solar farms expand across Spain", "source": "Reuters", "url": "https://example.com/solar",
   "published_at": "2024-03-01",
   "content": "Renewable energy capacity from solar farms grew sharply this year. Energy ministers praised renewable investment in the southern regions of the country."},
  {"title": "North Sea wind auction sets record", "source": "Bloomberg", "url": "https://example.com/wind",
   "published_at": "2024-03-02",
   "content": "Offshore wind is now the cheapest renewable energy source in Britain. The auction adds enough renewable energy for millions of homes across the north."},
  {"title": "Late goal settles derby", "source": "BBC Sport", "url": "https://example.com/derby",
   "published_at": "2024-03-03",
   "content": "A stoppage time header decided the derby at the stadium. Supporters celebrated in the streets until well after midnight on Saturday."}
]`

func testConfig(driver string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.Driver = driver
	cfg.Embedding.Provider = "hash"
	cfg.Embedding.Dimension = 512
	cfg.Generation.Provider = "none"
	cfg.Language.Languages = []string{"en", "de"}
	cfg.Logging.Level = "error"
	return cfg
}

func runPipeline(t *testing.T, a *App, root string) {
	t.Helper()
	ctx := context.Background()

	res, err := a.Ingest.Import(ctx, root)
	require.NoError(t, err)
	require.Equal(t, 3, res.ArticlesAdded)

	n, err := a.Ingest.Process(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	emb, err := a.Embed.Run(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, emb.Pending, emb.Embedded)

	_, err = a.Indexer.Rebuild(ctx)
	require.NoError(t, err)
}

func TestPipelineAcrossDrivers(t *testing.T) {
	for _, driver := range []string{"bolt", "sqlite", "memory"} {
		t.Run(driver, func(t *testing.T) {
			root := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(root, "feed.json"), []byte(feed), 0644))

			a, err := New(testConfig(driver), root, logger.Nop())
			require.NoError(t, err)
			defer a.Close()

			runPipeline(t, a, root)

			resp := a.Synth.Ask(context.Background(), "What's new in renewable energy?", a.RetrieveOptions())
			assert.Equal(t, domain.PathFallback, resp.Path)
			require.NotEmpty(t, resp.RetrievedDocuments)
			assert.NotEqual(t, "BBC Sport", resp.RetrievedDocuments[0].Source)

			chunks, err := a.Store.CountChunks(context.Background())
			require.NoError(t, err)
			assert.Equal(t, chunks, a.Index.Stats().Count)
		})
	}
}

func TestIndexSurvivesReopen(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "feed.json"), []byte(feed), 0644))
	cfg := testConfig("bolt")

	a, err := New(cfg, root, logger.Nop())
	require.NoError(t, err)
	runPipeline(t, a, root)
	want := a.Index.Stats()
	require.NoError(t, a.Close())

	b, err := New(cfg, root, logger.Nop())
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.LoadIndex())
	assert.Equal(t, want, b.Index.Stats())

	stats, err := b.Store.CorpusStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Articles)
	assert.Equal(t, 3, stats.Processed)
}

func TestChunkingConfigChangeResetsDerivedData(t *testing.T) {
	for _, driver := range []string{"bolt", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			root := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(root, "feed.json"), []byte(feed), 0644))
			cfg := testConfig(driver)

			a, err := New(cfg, root, logger.Nop())
			require.NoError(t, err)
			runPipeline(t, a, root)
			require.NoError(t, a.Close())

			same, err := New(cfg, root, logger.Nop())
			require.NoError(t, err)
			stats, err := same.Store.Stats(ctx)
			require.NoError(t, err)
			assert.NotZero(t, stats.Total)
			require.NoError(t, same.Close())

			cfg.Chunking.ChunkSize = 256
			b, err := New(cfg, root, logger.Nop())
			require.NoError(t, err)
			defer b.Close()

			stats, err = b.Store.Stats(ctx)
			require.NoError(t, err)
			assert.Zero(t, stats.Total)

			corpus, err := b.Store.CorpusStats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, corpus.Articles)
			assert.Zero(t, corpus.Processed)

			n, err := b.Ingest.Process(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, n)
		})
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig("memory")
	cfg.Embedding.Provider = "word2vec"
	_, err := New(cfg, t.TempDir(), logger.Nop())
	require.Error(t, err)
}

func TestNewGeneratorWithoutKey(t *testing.T) {
	cfg := testConfig("memory")
	cfg.Generation.Provider = "openai"
	cfg.Generation.APIKeyEnv = "NEWSRAG_TEST_MISSING_KEY"
	t.Setenv("NEWSRAG_TEST_MISSING_KEY", "")

	assert.Nil(t, NewGenerator(cfg, logger.Nop()))
}
