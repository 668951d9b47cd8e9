package port

import "newsrag/internal/domain"

type Chunker interface {
	Chunk(text string, articleID string) []domain.Chunk
}

// Cleaner normalizes raw article text. Implementations must be total and
// idempotent.
type Cleaner interface {
	Clean(text string) string
}

// LanguageDetector classifies the dominant language of a text. ok is false
// when the text is too short to classify.
type LanguageDetector interface {
	Detect(text string) (code string, ok bool, confidence float64)
}
