package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsrag/internal/adapter/store"
	"newsrag/internal/adapter/store/storetest"
	"newsrag/internal/domain"
	"newsrag/internal/port"
)

func TestSQLiteStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, dim int, strict bool) port.Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "news.sqlite"), store.Options{Dimension: dim, StrictModel: strict})
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteInMemory(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(":memory:", store.Options{Dimension: 3})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.UpsertBatch(ctx, []string{"x"}, [][]float32{{1, 2, 3}}, "m"))

	var blobLen int
	require.NoError(t, s.db.QueryRow(`SELECT length(embedding) FROM embeddings WHERE chunk_id = 'x'`).Scan(&blobLen))
	assert.Equal(t, 12, blobLen)
}

func TestSQLiteConfigHashAndReset(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "news.sqlite"), store.Options{Dimension: 3})
	require.NoError(t, err)
	defer s.Close()

	hash, err := s.ConfigHash()
	require.NoError(t, err)
	assert.Empty(t, hash)

	require.NoError(t, s.SetConfigHash("abc"))
	require.NoError(t, s.SetConfigHash("def"))
	hash, err = s.ConfigHash()
	require.NoError(t, err)
	assert.Equal(t, "def", hash)

	require.NoError(t, s.PutArticle(ctx, domain.Article{ID: "a1", Title: "t"}))
	require.NoError(t, s.MarkProcessed(ctx, "a1"))
	require.NoError(t, s.UpsertBatch(ctx, []string{"a1_chunk_0"}, [][]float32{{1, 2, 3}}, "m"))

	require.NoError(t, s.ClearEmbeddings())
	require.NoError(t, s.RequeueArticles())

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	pending, err := s.Unprocessed(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a1", pending[0].ID)
}
