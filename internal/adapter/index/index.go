// Package index holds the in-process vector index searched at query time.
//
// The index is a projection of the embedding store: vectors and their
// display metadata live side by side in an immutable snapshot. Readers load
// the current snapshot with one atomic read; writers build a replacement
// and publish it under a mutex, so a search never sees vectors and
// metadata of different lengths.
package index

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"newsrag/internal/domain"
)

const (
	KindExact = "exact"
	KindHNSW  = "hnsw"
)

type Options struct {
	Kind string
	// Dir holds the index.vec / index.meta.json pair.
	Dir string
	// Dimension is enforced on Build and Add when positive.
	Dimension    int
	HNSWM        int
	HNSWEfSearch int
}

// searcher proposes candidate positions for a query. A nil result means
// every position is a candidate.
type searcher interface {
	candidates(query []float32, k int) []int
}

type snapshot struct {
	dim     int
	vectors [][]float32
	entries []domain.IndexEntry
	search  searcher
}

func (s *snapshot) count() int { return len(s.vectors) }

// Manager implements port.VectorIndex.
type Manager struct {
	opts        Options
	newSearcher func(vectors [][]float32) searcher
	logger      *slog.Logger

	mu      sync.Mutex
	current atomic.Pointer[snapshot]
}

func New(opts Options, logger *slog.Logger) (*Manager, error) {
	m := &Manager{opts: opts, logger: logger}

	switch opts.Kind {
	case KindExact, "":
		m.opts.Kind = KindExact
		m.newSearcher = func([][]float32) searcher { return nil }
	case KindHNSW:
		m.newSearcher = func(vectors [][]float32) searcher {
			return newHNSWSearcher(vectors, opts.HNSWM, opts.HNSWEfSearch)
		}
	default:
		return nil, fmt.Errorf("unsupported index kind: %q", opts.Kind)
	}

	m.current.Store(m.emptySnapshot())
	return m, nil
}

func (m *Manager) emptySnapshot() *snapshot {
	return &snapshot{dim: m.opts.Dimension}
}

// Build replaces the whole index. The new snapshot is assembled before the
// write lock is taken. An empty corpus publishes an empty snapshot.
func (m *Manager) Build(vectors [][]float32, entries []domain.IndexEntry) (int, error) {
	if len(vectors) != len(entries) {
		return 0, fmt.Errorf("build: %d vectors but %d metadata entries", len(vectors), len(entries))
	}

	if len(vectors) == 0 {
		m.logger.Warn("building empty index", "error", domain.ErrEmptyCorpus)
		m.publish(m.emptySnapshot())
		return 0, nil
	}

	snap, err := m.newSnapshot(copyVectors(vectors), copyEntries(entries))
	if err != nil {
		return 0, fmt.Errorf("build: %w", err)
	}

	m.publish(snap)
	m.logger.Info("index built", "vectors", snap.count(), "dim", snap.dim, "kind", m.opts.Kind)
	return snap.count(), nil
}

// Add publishes an extended copy of the current snapshot. Rows whose
// chunk id is in the incoming set are replaced, so the index keeps one row
// per chunk; within the incoming set the last row for an id wins.
func (m *Manager) Add(vectors [][]float32, entries []domain.IndexEntry) error {
	if len(vectors) != len(entries) {
		return fmt.Errorf("add: %d vectors but %d metadata entries", len(vectors), len(entries))
	}
	if len(vectors) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.current.Load()
	if cur.count() > 0 {
		for i, v := range vectors {
			if len(v) != cur.dim {
				return fmt.Errorf("add: vector %d has dim %d, index has %d: %w", i, len(v), cur.dim, domain.ErrDimensionMismatch)
			}
		}
	}

	last := make(map[string]int, len(entries))
	for i, e := range entries {
		last[e.ChunkID] = i
	}

	allVectors := make([][]float32, 0, cur.count()+len(vectors))
	allEntries := make([]domain.IndexEntry, 0, cur.count()+len(entries))
	for i, e := range cur.entries {
		if _, replaced := last[e.ChunkID]; replaced {
			continue
		}
		allVectors = append(allVectors, cur.vectors[i])
		allEntries = append(allEntries, e)
	}
	for i, e := range entries {
		if last[e.ChunkID] != i {
			continue
		}
		allVectors = append(allVectors, append([]float32(nil), vectors[i]...))
		allEntries = append(allEntries, e)
	}

	snap, err := m.newSnapshot(allVectors, allEntries)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	m.current.Store(snap)
	if replaced := cur.count() + len(last) - snap.count(); replaced > 0 {
		m.logger.Debug("index rows replaced", "rows", replaced)
	}
	return nil
}

func (m *Manager) publish(snap *snapshot) {
	m.mu.Lock()
	m.current.Store(snap)
	m.mu.Unlock()
}

func (m *Manager) newSnapshot(vectors [][]float32, entries []domain.IndexEntry) (*snapshot, error) {
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("zero-length vector: %w", domain.ErrDimensionMismatch)
	}
	if m.opts.Dimension > 0 && dim != m.opts.Dimension {
		return nil, fmt.Errorf("vectors have dim %d, index expects %d: %w", dim, m.opts.Dimension, domain.ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dim %d, expected %d: %w", i, len(v), dim, domain.ErrDimensionMismatch)
		}
	}

	return &snapshot{
		dim:     dim,
		vectors: vectors,
		entries: entries,
		search:  m.newSearcher(vectors),
	}, nil
}

func (m *Manager) Stats() domain.IndexStats {
	snap := m.current.Load()
	return domain.IndexStats{
		Count:         snap.count(),
		Dim:           snap.dim,
		MetadataCount: len(snap.entries),
		Kind:          m.kindName(),
	}
}

func (m *Manager) kindName() string {
	if m.opts.Kind == KindHNSW {
		return "ApproximateHNSW"
	}
	return "ExactL2"
}

func copyVectors(in [][]float32) [][]float32 {
	out := make([][]float32, len(in))
	for i, v := range in {
		out[i] = append([]float32(nil), v...)
	}
	return out
}

func copyEntries(in []domain.IndexEntry) []domain.IndexEntry {
	return append([]domain.IndexEntry(nil), in...)
}
