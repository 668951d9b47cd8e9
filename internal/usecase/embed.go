package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"newsrag/internal/domain"
	"newsrag/internal/port"
)

// EmbedUseCase computes vectors for chunks that have none yet.
type EmbedUseCase struct {
	store     port.EmbeddingStore
	embedder  port.Embedder
	batchSize int
	workers   int
	logger    *slog.Logger
}

func NewEmbedUseCase(store port.EmbeddingStore, embedder port.Embedder, batchSize, workers int, logger *slog.Logger) *EmbedUseCase {
	if batchSize <= 0 {
		batchSize = 32
	}
	if workers <= 0 {
		workers = 1
	}
	return &EmbedUseCase{
		store:     store,
		embedder:  embedder,
		batchSize: batchSize,
		workers:   workers,
		logger:    logger,
	}
}

// EmbedResult summarizes one embedding job.
type EmbedResult struct {
	Pending       int
	Embedded      int
	FailedBatches int
	ChunkIDs      []string
}

// ProgressFunc is called after each batch with the number of chunks handled
// so far, successful or not.
type ProgressFunc func(done, total int)

// Run embeds all missing chunks in parallel batches. A failing batch is
// logged and skipped; the rest of the job continues. Dimension and model
// mismatches abort the job since every later batch would fail the same way.
func (u *EmbedUseCase) Run(ctx context.Context, progress ProgressFunc) (*EmbedResult, error) {
	chunks, err := u.store.Missing(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks without embeddings: %w", err)
	}

	result := &EmbedResult{Pending: len(chunks)}
	if len(chunks) == 0 {
		return result, nil
	}

	var (
		embedded atomic.Int64
		failed   atomic.Int64
		mu       sync.Mutex
		done     int
		ids      []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.workers)

	for start := 0; start < len(chunks); start += u.batchSize {
		if gctx.Err() != nil {
			break
		}
		batch := chunks[start:min(start+u.batchSize, len(chunks))]

		g.Go(func() error {
			err := u.embedBatch(gctx, batch)

			mu.Lock()
			done += len(batch)
			if err == nil {
				for _, c := range batch {
					ids = append(ids, c.ID)
				}
			}
			if progress != nil {
				progress(done, len(chunks))
			}
			mu.Unlock()

			switch {
			case err == nil:
				embedded.Add(int64(len(batch)))
				return nil
			case errors.Is(err, domain.ErrDimensionMismatch), errors.Is(err, domain.ErrModelMismatch):
				return err
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				failed.Add(1)
				u.logger.Warn("embedding batch failed", "first_chunk", batch[0].ID, "size", len(batch), "err", err)
				return nil
			}
		})
	}

	err = g.Wait()
	result.Embedded = int(embedded.Load())
	result.FailedBatches = int(failed.Load())
	result.ChunkIDs = ids

	if err != nil {
		return result, fmt.Errorf("embedding job aborted: %w", err)
	}

	u.logger.Info("embedding finished",
		"pending", result.Pending,
		"embedded", result.Embedded,
		"failed_batches", result.FailedBatches)
	return result, nil
}

func (u *EmbedUseCase) embedBatch(ctx context.Context, batch []domain.Chunk) error {
	texts := make([]string, len(batch))
	ids := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
		ids[i] = c.ID
	}

	vectors, err := u.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
	}

	return u.store.UpsertBatch(ctx, ids, vectors, u.embedder.ModelName())
}
