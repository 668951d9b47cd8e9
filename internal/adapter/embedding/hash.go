package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true, "were": true,
	"with": true, "that": true, "this": true, "from": true, "what": true, "whats": true,
	"new": true, "has": true, "have": true, "about": true, "into": true, "its": true,
	"their": true, "there": true, "which": true, "will": true, "been": true, "latest": true,
	"recent": true, "news": true, "available": true, "developments": true,
}

// HashEmbedder maps texts to L2-normalized bag-of-words vectors with the
// hashing trick. It needs no network and is deterministic, so texts sharing
// content words land close together.
type HashEmbedder struct {
	dimension int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashEmbedder{dimension: dimension}
}

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	v := make([]float32, e.dimension)
	for _, tok := range Terms(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		v[sum%uint32(e.dimension)] += 1
	}
	normalize(v)
	return v
}

func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashEmbedder) ModelName() string {
	return fmt.Sprintf("hash-%d", e.dimension)
}

// Terms lowercases text and returns its content words.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	terms := fields[:0]
	for _, f := range fields {
		f = strings.ReplaceAll(f, "'", "")
		if len(f) < 3 || stopwords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
