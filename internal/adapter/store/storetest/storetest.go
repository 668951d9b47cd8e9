// Package storetest holds the behaviour every port.Store driver must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsrag/internal/domain"
	"newsrag/internal/port"
)

// Factory opens a fresh, empty store with the given dimension.
type Factory func(t *testing.T, dim int, strictModel bool) port.Store

const dim = 4

// Run exercises the full store contract against a driver.
func Run(t *testing.T, open Factory) {
	t.Run("Articles", func(t *testing.T) { testArticles(t, open) })
	t.Run("Chunks", func(t *testing.T) { testChunks(t, open) })
	t.Run("RoundTripBitExact", func(t *testing.T) { testRoundTrip(t, open) })
	t.Run("UpsertOverwrites", func(t *testing.T) { testUpsertOverwrites(t, open) })
	t.Run("DimensionMismatch", func(t *testing.T) { testDimensionMismatch(t, open) })
	t.Run("StrictModel", func(t *testing.T) { testStrictModel(t, open) })
	t.Run("StrictModelFollowsStoredVectors", func(t *testing.T) { testStrictModelStoredVectors(t, open) })
	t.Run("GetAllOrdered", func(t *testing.T) { testGetAllOrdered(t, open) })
	t.Run("StatsAndMissing", func(t *testing.T) { testStatsAndMissing(t, open) })
	t.Run("RechunkInvalidatesEmbeddings", func(t *testing.T) { testRechunk(t, open) })
}

func article(id string) domain.Article {
	return domain.Article{
		ID:          id,
		Title:       "Title " + id,
		URL:         "https://news.example/" + id,
		Content:     "Body of " + id,
		Source:      "Example Wire",
		PublishedAt: "2024-03-01",
	}
}

func chunks(articleID string, contents ...string) []domain.Chunk {
	out := make([]domain.Chunk, len(contents))
	for i, c := range contents {
		out[i] = domain.Chunk{
			ID:                 fmt.Sprintf("%s_chunk_%d", articleID, i),
			ArticleID:          articleID,
			Content:            c,
			Index:              i,
			StartPos:           i * 10,
			EndPos:             i*10 + len(c),
			WordCount:          1,
			CharCount:          len(c),
			LanguageCode:       "en",
			LanguageConfidence: 0.9,
		}
	}
	return out
}

func vec(seed float32) []float32 {
	return []float32{seed, seed + 1, seed + 2, seed + 3}
}

func testArticles(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, dim, false)

	require.NoError(t, s.PutArticle(ctx, article("a1")))
	require.NoError(t, s.PutArticle(ctx, article("a2")))

	got, err := s.GetArticle(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, article("a1"), got)

	_, err = s.GetArticle(ctx, "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	pending, err := s.Unprocessed(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, s.MarkProcessed(ctx, "a1"))
	pending, err = s.Unprocessed(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a2", pending[0].ID)

	all, err := s.ListArticles(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	stats, err := s.CorpusStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.CorpusStats{Articles: 2, Processed: 1}, stats)
}

func testChunks(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, dim, false)

	in := chunks("a1", "first passage", "second passage", "third passage")
	require.NoError(t, s.PutChunks(ctx, "a1", in))

	got, err := s.ChunksByArticle(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, in, got)

	c, err := s.GetChunk(ctx, "a1_chunk_1")
	require.NoError(t, err)
	assert.Equal(t, in[1], c)

	_, err = s.GetChunk(ctx, "a1_chunk_9")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	// re-processing with fewer chunks drops the stale ones
	require.NoError(t, s.PutChunks(ctx, "a1", in[:2]))
	n, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testRoundTrip(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, dim, false)

	v := []float32{math.SmallestNonzeroFloat32, -0.0, float32(math.Pi), math.MaxFloat32}
	require.NoError(t, s.UpsertBatch(ctx, []string{"c1"}, [][]float32{v}, "m1"))

	got, ok, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, dim)
	for i := range v {
		assert.Equal(t, math.Float32bits(v[i]), math.Float32bits(got[i]), "component %d", i)
	}

	_, ok, err = s.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testUpsertOverwrites(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, dim, false)

	require.NoError(t, s.UpsertBatch(ctx, []string{"c1"}, [][]float32{vec(1)}, "m1"))
	require.NoError(t, s.UpsertBatch(ctx, []string{"c1"}, [][]float32{vec(1)}, "m1"))
	require.NoError(t, s.UpsertBatch(ctx, []string{"c1"}, [][]float32{vec(5)}, "m2"))

	got, _, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, vec(5), got)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, map[string]int{"m2": 1}, stats.PerModel)
}

func testDimensionMismatch(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, dim, false)

	err := s.UpsertBatch(ctx,
		[]string{"ok", "bad"},
		[][]float32{vec(1), {1, 2, 3}},
		"m1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))

	_, ok, err := s.Get(ctx, "ok")
	require.NoError(t, err)
	assert.False(t, ok, "nothing from a rejected batch may be stored")

	err = s.UpsertBatch(ctx, []string{"a", "b"}, [][]float32{vec(1)}, "m1")
	assert.Error(t, err)
}

func testStrictModel(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, dim, true)

	require.NoError(t, s.UpsertBatch(ctx, []string{"c1"}, [][]float32{vec(1)}, "m1"))
	err := s.UpsertBatch(ctx, []string{"c2"}, [][]float32{vec(2)}, "m2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrModelMismatch))

	_, ok, err := s.Get(ctx, "c2")
	require.NoError(t, err)
	assert.False(t, ok)
}

// Strict mode compares against the vectors actually stored, so once the
// last vector of a model is gone another model may be written.
func testStrictModelStoredVectors(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, dim, true)

	require.NoError(t, s.PutChunks(ctx, "a1", chunks("a1", "first draft")))
	require.NoError(t, s.UpsertBatch(ctx, []string{"a1_chunk_0"}, [][]float32{vec(1)}, "m1"))

	require.NoError(t, s.PutChunks(ctx, "a1", chunks("a1", "second draft")))
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.Total)

	require.NoError(t, s.UpsertBatch(ctx, []string{"a1_chunk_0"}, [][]float32{vec(2)}, "m2"))
	err = s.UpsertBatch(ctx, []string{"a1_chunk_1"}, [][]float32{vec(3)}, "m1")
	assert.True(t, errors.Is(err, domain.ErrModelMismatch))
}

func testGetAllOrdered(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, dim, false)

	ids := []string{"b_chunk_0", "a_chunk_10", "a_chunk_2", "A_chunk_0"}
	vectors := [][]float32{vec(1), vec(2), vec(3), vec(4)}
	require.NoError(t, s.UpsertBatch(ctx, ids, vectors, "m1"))

	gotVecs, gotIDs, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A_chunk_0", "a_chunk_10", "a_chunk_2", "b_chunk_0"}, gotIDs)
	assert.Equal(t, [][]float32{vec(4), vec(2), vec(3), vec(1)}, gotVecs)
}

func testStatsAndMissing(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, dim, false)

	empty, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)

	require.NoError(t, s.PutChunks(ctx, "a1", chunks("a1", "one", "two", "three")))
	require.NoError(t, s.UpsertBatch(ctx, []string{"a1_chunk_1"}, [][]float32{vec(1)}, "m1"))

	missing, err := s.Missing(ctx)
	require.NoError(t, err)
	require.Len(t, missing, 2)
	assert.Equal(t, "a1_chunk_0", missing[0].ID)
	assert.Equal(t, "a1_chunk_2", missing[1].ID)
	assert.Equal(t, "three", missing[1].Content)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, []int{dim}, stats.Dims)
	assert.Equal(t, dim, s.Dimension())
}

func testRechunk(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, dim, false)

	require.NoError(t, s.PutChunks(ctx, "a1", chunks("a1", "one", "two")))
	require.NoError(t, s.UpsertBatch(ctx,
		[]string{"a1_chunk_0", "a1_chunk_1"},
		[][]float32{vec(1), vec(2)},
		"m1"))

	require.NoError(t, s.PutChunks(ctx, "a1", chunks("a1", "one", "two, revised")))

	_, ok, err := s.Get(ctx, "a1_chunk_0")
	require.NoError(t, err)
	assert.True(t, ok, "unchanged chunk keeps its vector")

	_, ok, err = s.Get(ctx, "a1_chunk_1")
	require.NoError(t, err)
	assert.False(t, ok, "changed chunk must be re-embedded")
}
