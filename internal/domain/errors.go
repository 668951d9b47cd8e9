package domain

import "errors"

var (
	// ErrDimensionMismatch is returned when a vector length differs from the
	// configured dimension. Nothing is stored when it occurs.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrModelMismatch is returned in strict-model mode when an upsert uses a
	// different model than the vectors already stored.
	ErrModelMismatch = errors.New("embedding model mismatch")

	ErrEmptyCorpus = errors.New("no embeddings to index")

	// ErrPersistence wraps index artifact save/load failures.
	ErrPersistence = errors.New("index persistence failed")

	// ErrBackend wraps failures of the generation backend.
	ErrBackend = errors.New("generation backend failed")

	ErrNotFound = errors.New("not found")
)
