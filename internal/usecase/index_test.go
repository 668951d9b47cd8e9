package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsrag/internal/adapter/index"
	"newsrag/internal/logger"
)

func TestRebuildJoinsDisplayMetadata(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	p.load(t, corpus()...)

	stats := p.index.Stats()
	assert.Equal(t, 10, stats.Count)
	assert.Equal(t, 10, stats.MetadataCount)
	assert.Equal(t, testDim, stats.Dim)

	chunk, err := p.store.GetChunk(ctx, "solar-spain_chunk_0")
	require.NoError(t, err)
	vec, ok, err := p.store.Get(ctx, chunk.ID)
	require.NoError(t, err)
	require.True(t, ok)

	results := p.index.Search(vec, 1, nil)
	require.Len(t, results, 1)
	assert.Equal(t, chunk.ID, results[0].ChunkID)
	assert.Equal(t, "Solar farms expand across Spain", results[0].ArticleTitle)
	assert.Equal(t, "Reuters", results[0].Source)
	assert.Equal(t, "https://example.com/solar-spain", results[0].URL)
	assert.Equal(t, chunk.Content, results[0].Content)
}

func TestRebuildOrphanEmbeddingGetsPlaceholder(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)

	vec := make([]float32, testDim)
	vec[7] = 1
	require.NoError(t, p.store.UpsertBatch(ctx, []string{"gone_chunk_0"}, [][]float32{vec}, "hash"))

	n, err := p.indexer.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results := p.index.Search(vec, 1, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "Unknown", results[0].Content)
	assert.Empty(t, results[0].ArticleTitle)
}

func TestRebuildEmptyStore(t *testing.T) {
	p := newPipeline(t)
	n, err := p.indexer.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, p.index.Stats().Count)
}

func TestRebuildPersistsArtifacts(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	p.load(t, renewableArticles...)

	dir := t.TempDir()
	idx, err := index.New(index.Options{Kind: index.KindExact, Dir: dir, Dimension: testDim}, logger.Nop())
	require.NoError(t, err)
	uc := NewIndexUseCase(p.store, idx, logger.Nop())
	_, err = uc.Rebuild(ctx)
	require.NoError(t, err)

	reloaded, err := index.New(index.Options{Kind: index.KindExact, Dir: dir, Dimension: testDim}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, idx.Stats(), reloaded.Stats())
}

func TestExtendAddsNewChunks(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	p.load(t, renewableArticles[:2]...)
	require.Equal(t, 2, p.index.Stats().Count)

	chunkAll(t, p, renewableArticles[2:]...)
	res, err := p.embed.Run(ctx, nil)
	require.NoError(t, err)
	require.Len(t, res.ChunkIDs, 3)

	n, err := p.indexer.Extend(ctx, append(res.ChunkIDs, "no-such-chunk"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 5, p.index.Stats().Count)

	vec, ok, err := p.store.Get(ctx, "hydrogen_chunk_0")
	require.NoError(t, err)
	require.True(t, ok)
	results := p.index.Search(vec, 1, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "Green hydrogen plans gather pace", results[0].ArticleTitle)
}

func TestExtendReplacesRechunkedRows(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	p.load(t, renewableArticles[0])
	require.Equal(t, 1, p.index.Stats().Count)

	edited := renewableArticles[0]
	edited.Content = "Complete overhaul of the Spanish solar permitting rules was announced today. Developers expect faster approvals for new solar farms."
	_, err := p.ingest.ProcessArticle(ctx, edited)
	require.NoError(t, err)

	res, err := p.embed.Run(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"solar-spain_chunk_0"}, res.ChunkIDs)

	n, err := p.indexer.Extend(ctx, res.ChunkIDs)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats := p.index.Stats()
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 1, stats.MetadataCount)

	vec, ok, err := p.store.Get(ctx, "solar-spain_chunk_0")
	require.NoError(t, err)
	require.True(t, ok)
	results := p.index.Search(vec, 5, nil)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "Complete overhaul")
}

func TestExtendRebuildsWhenChunksDisappear(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)

	long := renewableArticles[1]
	long.Content = strings.Repeat("Offshore wind output rose again across the North Sea this week. ", 14)
	p.load(t, long)
	before := p.index.Stats().Count
	require.Greater(t, before, 1)

	long.Content = "The wind auction was paused while regulators review grid connection costs for new farms."
	_, err := p.ingest.ProcessArticle(ctx, long)
	require.NoError(t, err)
	res, err := p.embed.Run(ctx, nil)
	require.NoError(t, err)

	_, err = p.indexer.Extend(ctx, res.ChunkIDs)
	require.NoError(t, err)

	stored, err := p.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, stored.Total, p.index.Stats().Count)
	assert.Equal(t, 1, p.index.Stats().Count)

	vec, ok, err := p.store.Get(ctx, "wind-north-sea_chunk_0")
	require.NoError(t, err)
	require.True(t, ok)
	results := p.index.Search(vec, 5, nil)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "auction was paused")
}
