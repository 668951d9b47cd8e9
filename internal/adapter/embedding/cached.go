package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"newsrag/internal/port"
)

// CachedEmbedder memoizes embeddings of repeated texts, typically queries.
// Entries expire after ttl and the least recently used are evicted first.
type CachedEmbedder struct {
	inner port.Embedder
	cache *expirable.LRU[string, []float32]
}

func NewCachedEmbedder(inner port.Embedder, size int, ttl time.Duration) *CachedEmbedder {
	if size <= 0 {
		size = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedEmbedder{
		inner: inner,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func cacheKey(model, text string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(hash[:16])
}

// Embed serves hits from the cache and sends only misses to the inner
// embedder, in one call.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)
	model := c.inner.ModelName()
	for i, t := range texts {
		if v, ok := c.cache.Get(cacheKey(model, t)); ok {
			out[i] = v
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, v := range vectors {
		if j >= len(missIdx) {
			break
		}
		out[missIdx[j]] = v
		c.cache.Add(cacheKey(model, missTexts[j]), v)
	}
	return out, nil
}

func (c *CachedEmbedder) Invalidate() {
	c.cache.Purge()
}

func (c *CachedEmbedder) Size() int {
	return c.cache.Len()
}

func (c *CachedEmbedder) Dimension() int {
	return c.inner.Dimension()
}

func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}
