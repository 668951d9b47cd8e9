package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"newsrag/internal/domain"
	"newsrag/internal/logger"
)

func newManager(t *testing.T, kind string, dim int) *Manager {
	t.Helper()
	m, err := New(Options{Kind: kind, Dir: t.TempDir(), Dimension: dim, HNSWM: 8, HNSWEfSearch: 32}, logger.Nop())
	require.NoError(t, err)
	return m
}

func entriesFor(n int) []domain.IndexEntry {
	out := make([]domain.IndexEntry, n)
	for i := range out {
		out[i] = domain.IndexEntry{
			ChunkID:   fmt.Sprintf("c%03d", i),
			ArticleID: fmt.Sprintf("a%d", i),
			Content:   fmt.Sprintf("content %d", i),
			Title:     fmt.Sprintf("Title %d", i),
			Source:    "Wire",
		}
	}
	return out
}

func randomVectors(r *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = r.Float32()
		}
		out[i] = v
	}
	return out
}

func ptr(f float64) *float64 { return &f }

func TestSearchIdenticalVectorRanksFirst(t *testing.T) {
	for _, kind := range []string{KindExact, KindHNSW} {
		t.Run(kind, func(t *testing.T) {
			m := newManager(t, kind, 3)
			vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0.5, 0.5, 0.5}}

			n, err := m.Build(vectors, entriesFor(3))
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			results := m.Search([]float32{0, 1, 0}, 5, nil)
			require.Len(t, results, 3)
			assert.Equal(t, "c001", results[0].ChunkID)
			assert.Equal(t, 1, results[0].Rank)
			assert.Equal(t, 1.0, results[0].SimilarityScore)
			assert.Zero(t, results[0].Distance)
			assert.Equal(t, "Title 1", results[0].ArticleTitle)

			for i := 1; i < len(results); i++ {
				assert.Equal(t, i+1, results[i].Rank)
				assert.LessOrEqual(t, results[i].SimilarityScore, results[i-1].SimilarityScore)
			}
		})
	}
}

func TestSearchBoundsAndThreshold(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	m := newManager(t, KindExact, 8)
	_, err := m.Build(randomVectors(r, 20, 8), entriesFor(20))
	require.NoError(t, err)

	query := randomVectors(r, 1, 8)[0]

	results := m.Search(query, 5, nil)
	assert.Len(t, results, 5)

	threshold := results[2].SimilarityScore
	filtered := m.Search(query, 5, &threshold)
	require.Len(t, filtered, 3)
	for _, res := range filtered {
		assert.GreaterOrEqual(t, res.SimilarityScore, threshold)
		assert.Greater(t, res.SimilarityScore, 0.0)
		assert.LessOrEqual(t, res.SimilarityScore, 1.0)
	}

	assert.Len(t, m.Search(query, 50, nil), 20)
	assert.Empty(t, m.Search(query, 5, ptr(1.1)))
	assert.Empty(t, m.Search(query, 0, nil))
}

func TestSearchDeterministic(t *testing.T) {
	m := newManager(t, KindExact, 2)
	// all equidistant from the query: ties must keep index order
	vectors := [][]float32{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}
	_, err := m.Build(vectors, entriesFor(4))
	require.NoError(t, err)

	first := m.Search([]float32{0, 0}, 4, nil)
	second := m.Search([]float32{0, 0}, 4, nil)
	assert.Equal(t, first, second)
	assert.Equal(t, "c000", first[0].ChunkID)
	assert.Equal(t, "c003", first[3].ChunkID)
	assert.Equal(t, 0.5, first[0].SimilarityScore)
}

func TestSearchEmptyIndex(t *testing.T) {
	m := newManager(t, KindExact, 3)

	results := m.Search([]float32{1, 2, 3}, 3, nil)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearchDimensionMismatch(t *testing.T) {
	m := newManager(t, KindExact, 0)
	_, err := m.Build([][]float32{{1, 2}}, entriesFor(1))
	require.NoError(t, err)

	assert.Empty(t, m.Search([]float32{1, 2, 3}, 1, nil))
}

func TestBuildEmptyCorpus(t *testing.T) {
	m := newManager(t, KindExact, 2)
	_, err := m.Build([][]float32{{1, 2}}, entriesFor(1))
	require.NoError(t, err)

	n, err := m.Build(nil, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 0, m.Stats().Count)
	assert.Equal(t, 0, m.Stats().MetadataCount)
}

func TestBuildRejectsBadInputKeepsSnapshot(t *testing.T) {
	m := newManager(t, KindExact, 2)
	_, err := m.Build([][]float32{{1, 2}, {3, 4}}, entriesFor(2))
	require.NoError(t, err)

	_, err = m.Build([][]float32{{1, 2}}, entriesFor(2))
	assert.Error(t, err)

	_, err = m.Build([][]float32{{1, 2, 3}}, entriesFor(1))
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))

	assert.Equal(t, 2, m.Stats().Count)
}

func TestAddExtendsBothArrays(t *testing.T) {
	for _, kind := range []string{KindExact, KindHNSW} {
		t.Run(kind, func(t *testing.T) {
			m := newManager(t, kind, 2)

			require.NoError(t, m.Add([][]float32{{1, 1}}, entriesFor(1)))
			require.NoError(t, m.Add([][]float32{{5, 5}, {9, 9}}, entriesFor(3)[1:]))

			stats := m.Stats()
			assert.Equal(t, 3, stats.Count)
			assert.Equal(t, stats.Count, stats.MetadataCount)
			assert.Equal(t, 2, stats.Dim)

			results := m.Search([]float32{9, 9}, 1, nil)
			require.Len(t, results, 1)
			assert.Equal(t, "c002", results[0].ChunkID)

			assert.Error(t, m.Add([][]float32{{1, 2}}, nil))
			assert.True(t, errors.Is(m.Add([][]float32{{1, 2, 3}}, entriesFor(1)), domain.ErrDimensionMismatch))
			assert.Equal(t, 3, m.Stats().Count)
		})
	}
}

func TestAddReplacesRowsWithSameChunkID(t *testing.T) {
	for _, kind := range []string{KindExact, KindHNSW} {
		t.Run(kind, func(t *testing.T) {
			m := newManager(t, kind, 2)
			_, err := m.Build([][]float32{{1, 0}, {0, 1}, {1, 1}}, entriesFor(3))
			require.NoError(t, err)

			updated := entriesFor(2)[1:]
			updated[0].Content = "rewritten"
			require.NoError(t, m.Add([][]float32{{9, 9}}, updated))

			stats := m.Stats()
			assert.Equal(t, 3, stats.Count)
			assert.Equal(t, 3, stats.MetadataCount)

			results := m.Search([]float32{9, 9}, 3, nil)
			require.Len(t, results, 3)
			assert.Equal(t, "c001", results[0].ChunkID)
			assert.Equal(t, "rewritten", results[0].Content)
			seen := map[string]int{}
			for _, r := range results {
				seen[r.ChunkID]++
			}
			assert.Equal(t, map[string]int{"c000": 1, "c001": 1, "c002": 1}, seen)
		})
	}
}

func TestAddDuplicateIDsInBatchKeepsLast(t *testing.T) {
	m := newManager(t, KindExact, 2)
	entries := []domain.IndexEntry{{ChunkID: "a", Content: "first"}, {ChunkID: "a", Content: "second"}}
	require.NoError(t, m.Add([][]float32{{1, 0}, {0, 1}}, entries))

	assert.Equal(t, 1, m.Stats().Count)
	results := m.Search([]float32{0, 1}, 2, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "second", results[0].Content)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := rand.New(rand.NewSource(3))
	vectors := randomVectors(r, 10, 4)

	m, err := New(Options{Kind: KindExact, Dir: dir, Dimension: 4}, logger.Nop())
	require.NoError(t, err)
	_, err = m.Build(vectors, entriesFor(10))
	require.NoError(t, err)
	require.NoError(t, m.Save())

	assert.FileExists(t, filepath.Join(dir, vectorFile))
	assert.FileExists(t, filepath.Join(dir, metadataFile))

	loaded, err := New(Options{Kind: KindHNSW, Dir: dir, Dimension: 4}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, loaded.Load())

	assert.Equal(t, 10, loaded.Stats().Count)
	assert.Equal(t, 10, loaded.Stats().MetadataCount)
	assert.Equal(t, "ApproximateHNSW", loaded.Stats().Kind)

	want := m.Search(vectors[4], 3, nil)
	got := loaded.Search(vectors[4], 3, nil)
	require.NotEmpty(t, got)
	assert.Equal(t, want[0], got[0])
	assert.Equal(t, 1.0, got[0].SimilarityScore)
}

func TestLoadHalfMissingPairResets(t *testing.T) {
	tests := []struct {
		name   string
		damage func(t *testing.T, dir string)
	}{
		{"missing metadata", func(t *testing.T, dir string) {
			require.NoError(t, os.Remove(filepath.Join(dir, metadataFile)))
		}},
		{"missing vectors", func(t *testing.T, dir string) {
			require.NoError(t, os.Remove(filepath.Join(dir, vectorFile)))
		}},
		{"corrupt vectors", func(t *testing.T, dir string) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, vectorFile), []byte("garbage"), 0644))
		}},
		{"count mismatch", func(t *testing.T, dir string) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, metadataFile), []byte(`[{"chunk_id":"x","content":"y"}]`), 0644))
		}},
		{"header count larger than file", func(t *testing.T, dir string) {
			header := append([]byte{}, magic[:]...)
			for _, v := range []uint32{formatVersion, 4, 0xFFFFFFF0, 0} {
				header = binary.LittleEndian.AppendUint32(header, v)
			}
			require.NoError(t, os.WriteFile(filepath.Join(dir, vectorFile), header, 0644))
			require.NoError(t, os.WriteFile(filepath.Join(dir, metadataFile), []byte(`[]`), 0644))
		}},
		{"truncated vectors", func(t *testing.T, dir string) {
			path := filepath.Join(dir, vectorFile)
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(path, data[:len(data)-3], 0644))
		}},
		{"metadata from another save", func(t *testing.T, dir string) {
			other := t.TempDir()
			m, err := New(Options{Kind: KindExact, Dir: other, Dimension: 2}, logger.Nop())
			require.NoError(t, err)
			entries := entriesFor(2)
			entries[0].Title = "stale"
			_, err = m.Build([][]float32{{1, 2}, {3, 4}}, entries)
			require.NoError(t, err)
			require.NoError(t, m.Save())

			data, err := os.ReadFile(filepath.Join(other, metadataFile))
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(filepath.Join(dir, metadataFile), data, 0644))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			m, err := New(Options{Kind: KindExact, Dir: dir, Dimension: 2}, logger.Nop())
			require.NoError(t, err)
			_, err = m.Build([][]float32{{1, 2}, {3, 4}}, entriesFor(2))
			require.NoError(t, err)
			require.NoError(t, m.Save())

			tt.damage(t, dir)

			err = m.Load()
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrPersistence))

			stats := m.Stats()
			assert.Zero(t, stats.Count)
			assert.Zero(t, stats.MetadataCount)
			assert.Empty(t, m.Search([]float32{1, 2}, 1, nil))
		})
	}
}

func TestSaveEmptyIndex(t *testing.T) {
	dir := t.TempDir()
	m, err := New(Options{Kind: KindExact, Dir: dir, Dimension: 2}, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, m.Save())
	require.NoError(t, m.Load())
	assert.Zero(t, m.Stats().Count)
}

func TestHNSWMatchesExactTopHit(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	vectors := randomVectors(r, 200, 16)

	exact := newManager(t, KindExact, 16)
	approx := newManager(t, KindHNSW, 16)
	_, err := exact.Build(vectors, entriesFor(200))
	require.NoError(t, err)
	_, err = approx.Build(vectors, entriesFor(200))
	require.NoError(t, err)

	for _, i := range []int{0, 57, 123, 199} {
		got := approx.Search(vectors[i], 1, nil)
		want := exact.Search(vectors[i], 1, nil)
		require.Len(t, got, 1)
		assert.Equal(t, want[0].ChunkID, got[0].ChunkID)
		assert.Equal(t, 1.0, got[0].SimilarityScore)
	}
}

func TestConcurrentSearchDuringRebuild(t *testing.T) {
	defer goleak.VerifyNone(t)

	const dim = 4
	m := newManager(t, KindExact, dim)

	// vector i is {i, i, i, i} and its entry is c%03d of i, in every snapshot
	build := func(n int) {
		vectors := make([][]float32, n)
		for i := range vectors {
			f := float32(i)
			vectors[i] = []float32{f, f, f, f}
		}
		_, err := m.Build(vectors, entriesFor(n))
		assert.NoError(t, err)
	}
	build(10)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				stats := m.Stats()
				if stats.Count != stats.MetadataCount {
					t.Errorf("count %d != metadata %d", stats.Count, stats.MetadataCount)
					return
				}
				res := m.Search([]float32{5, 5, 5, 5}, 1, nil)
				if len(res) != 1 || res[0].ChunkID != "c005" || res[0].SimilarityScore != 1.0 {
					t.Errorf("unexpected search result %+v", res)
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		build(10 + i%7*5)
		if i%5 == 0 {
			f := float32(100 + i)
			assert.NoError(t, m.Add([][]float32{{f, f, f, f}}, []domain.IndexEntry{{ChunkID: "extra", Content: "x"}}))
		}
	}

	close(stop)
	wg.Wait()
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(Options{Kind: "ivf"}, logger.Nop())
	assert.Error(t, err)
}

func TestInMemoryIndexSkipsPersistence(t *testing.T) {
	m, err := New(Options{Kind: KindExact, Dimension: 2}, logger.Nop())
	require.NoError(t, err)

	_, err = m.Build([][]float32{{1, 0}, {0, 1}}, entriesFor(2))
	require.NoError(t, err)
	require.NoError(t, m.Save())
	require.NoError(t, m.Load())
	assert.Equal(t, 2, m.Stats().Count)
}
