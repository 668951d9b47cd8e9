package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsrag/config"
	"newsrag/internal/adapter/store/storetest"
	"newsrag/internal/domain"
	"newsrag/internal/port"
)

func openTestStore(t *testing.T, dim int, strict bool) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "news.db"), Options{Dimension: dim, StrictModel: strict})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, dim int, strict bool) port.Store {
		return openTestStore(t, dim, strict)
	})
}

func TestBoltStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "news.db")
	ctx := context.Background()

	s, err := NewBoltStore(path, Options{Dimension: 2})
	require.NoError(t, err)
	require.NoError(t, s.UpsertBatch(ctx, []string{"c1"}, [][]float32{{0.25, -1.5}}, "m1"))
	require.NoError(t, s.Close())

	s, err = NewBoltStore(path, Options{Dimension: 2})
	require.NoError(t, err)
	defer s.Close()

	got, ok, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0.25, -1.5}, got)
}

func TestNewBoltStoreRejectsZeroDimension(t *testing.T) {
	_, err := NewBoltStore(filepath.Join(t.TempDir(), "news.db"), Options{})
	assert.Error(t, err)
}

func TestCodec(t *testing.T) {
	v := []float32{1, -2.5, 3.75}
	data := EncodeVector(v)
	assert.Len(t, data, 12)
	assert.Equal(t, []byte{0, 0, 0x80, 0x3f}, data[:4])

	got, err := DecodeVector(data)
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestMigrations(t *testing.T) {
	s := openTestStore(t, 4, false)
	cfg := config.DefaultConfig()

	result, err := s.CheckMigration(cfg)
	require.NoError(t, err)
	assert.True(t, result.NeedsMigration)

	require.NoError(t, s.Migrate(cfg))

	result, err = s.CheckMigration(cfg)
	require.NoError(t, err)
	assert.False(t, result.NeedsMigration)
	assert.False(t, result.NeedsRebuild)

	cfg.Embedding.Model = "text-embedding-3-large"
	rebuild, reason, err := s.NeedsRebuild(cfg)
	require.NoError(t, err)
	assert.True(t, rebuild)
	assert.Contains(t, reason, "configuration changed")
}

func TestClearEmbeddings(t *testing.T) {
	s := openTestStore(t, 2, true)
	ctx := context.Background()

	require.NoError(t, s.UpsertBatch(ctx, []string{"c1"}, [][]float32{{1, 2}}, "m1"))
	require.NoError(t, s.ClearEmbeddings())

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)

	// the model lock is released with the vectors
	assert.NoError(t, s.UpsertBatch(ctx, []string{"c1"}, [][]float32{{1, 2}}, "m2"))
}

func TestRequeueArticles(t *testing.T) {
	s := openTestStore(t, 2, false)
	ctx := context.Background()

	require.NoError(t, s.PutArticle(ctx, domain.Article{ID: "a1", Title: "one"}))
	require.NoError(t, s.PutArticle(ctx, domain.Article{ID: "a2", Title: "two"}))
	require.NoError(t, s.MarkProcessed(ctx, "a1"))
	require.NoError(t, s.MarkProcessed(ctx, "a2"))

	require.NoError(t, s.RequeueArticles())

	pending, err := s.Unprocessed(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	got, err := s.GetArticle(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "one", got.Title)
}
