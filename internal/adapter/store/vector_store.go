package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"
	"newsrag/internal/domain"
)

type storedEmbedding struct {
	Embedding []byte `json:"embedding"`
	Dim       int    `json:"dim"`
	ModelID   string `json:"model_id"`
}

func (s *BoltStore) Dimension() int {
	return s.opts.Dimension
}

// UpsertBatch writes all vectors in one transaction. A dimension or model
// mismatch rejects the whole batch.
func (s *BoltStore) UpsertBatch(ctx context.Context, chunkIDs []string, vectors [][]float32, modelID string) error {
	if err := CheckBatch(chunkIDs, vectors, s.opts.Dimension); err != nil {
		return err
	}
	if len(chunkIDs) == 0 {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEmbeddings)
		if s.opts.StrictModel {
			other, err := otherModel(b, modelID)
			if err != nil {
				return err
			}
			if other != "" {
				return fmt.Errorf("store holds %q vectors, got %q: %w", other, modelID, domain.ErrModelMismatch)
			}
		}

		for i, id := range chunkIDs {
			data, err := json.Marshal(storedEmbedding{
				Embedding: EncodeVector(vectors[i]),
				Dim:       len(vectors[i]),
				ModelID:   modelID,
			})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(id), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// otherModel returns the model of the first stored vector not written by
// modelID, or "" when every stored vector matches.
func otherModel(b *bbolt.Bucket, modelID string) (string, error) {
	var other string
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var stored struct {
			ModelID string `json:"model_id"`
		}
		if err := json.Unmarshal(v, &stored); err != nil {
			return "", fmt.Errorf("decode embedding %s: %w", k, err)
		}
		if stored.ModelID != modelID {
			other = stored.ModelID
			break
		}
	}
	return other, nil
}

func (s *BoltStore) Get(ctx context.Context, chunkID string) ([]float32, bool, error) {
	var vec []float32
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEmbeddings).Get([]byte(chunkID))
		if data == nil {
			return nil
		}
		var err error
		vec, err = decodeEmbedding(chunkID, data)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return vec, vec != nil, nil
}

// GetAll returns vectors in byte-wise chunk ID order, which is bbolt's key order.
func (s *BoltStore) GetAll(ctx context.Context) ([][]float32, []string, error) {
	var (
		vectors [][]float32
		ids     []string
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEmbeddings).ForEach(func(k, v []byte) error {
			vec, err := decodeEmbedding(string(k), v)
			if err != nil {
				return err
			}
			vectors = append(vectors, vec)
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return vectors, ids, nil
}

func (s *BoltStore) Stats(ctx context.Context) (domain.EmbeddingStats, error) {
	stats := domain.EmbeddingStats{PerModel: make(map[string]int)}
	dims := make(map[int]struct{})
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEmbeddings).ForEach(func(k, v []byte) error {
			var stored storedEmbedding
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("decode embedding %s: %w", k, err)
			}
			stats.Total++
			stats.PerModel[stored.ModelID]++
			dims[stored.Dim] = struct{}{}
			return nil
		})
	})
	stats.Dims = sortedDims(dims)
	return stats, err
}

// Missing walks the chunk bucket in key order and returns chunks with no vector.
func (s *BoltStore) Missing(ctx context.Context) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		emb := tx.Bucket(bucketEmbeddings)
		return tx.Bucket(bucketChunks).ForEach(func(k, v []byte) error {
			if emb.Get(k) != nil {
				return nil
			}
			chunk, err := decodeChunk(tx, k, v)
			if err != nil {
				return err
			}
			chunks = append(chunks, chunk)
			return nil
		})
	})
	return chunks, err
}

func decodeEmbedding(chunkID string, data []byte) ([]float32, error) {
	var stored storedEmbedding
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode embedding %s: %w", chunkID, err)
	}
	vec, err := DecodeVector(stored.Embedding)
	if err != nil {
		return nil, fmt.Errorf("decode embedding %s: %w", chunkID, err)
	}
	return vec, nil
}

// CheckBatch validates an upsert before anything is written. Drivers call it
// so a rejected batch stores nothing.
func CheckBatch(chunkIDs []string, vectors [][]float32, dim int) error {
	if len(chunkIDs) != len(vectors) {
		return fmt.Errorf("upsert batch has %d ids and %d vectors", len(chunkIDs), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("chunk %s: expected %d, got %d: %w", chunkIDs[i], dim, len(v), domain.ErrDimensionMismatch)
		}
	}
	return nil
}

func sortedDims(dims map[int]struct{}) []int {
	out := make([]int, 0, len(dims))
	for d := range dims {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
