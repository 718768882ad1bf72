package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder memoizes single-text embeddings in an LRU cache. Query
// embedding dominates interactive search latency, and queries repeat.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]

	hits   int64
	misses int64
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with a cache of the given size. Size <= 0
// returns inner unwrapped.
func NewCachedEmbedder(inner Embedder, size int) Embedder {
	if size <= 0 {
		return inner
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return inner
	}
	return &CachedEmbedder{inner: inner, cache: cache}
}

func cacheKey(model, text string) string {
	h := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(h[:16])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(c.inner.ModelName(), text)
	if v, ok := c.cache.Get(key); ok {
		c.hits++
		return v, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.misses++
	c.cache.Add(key, v)
	return v, nil
}

// EmbedBatch passes through uncached; bulk indexing never repeats inputs.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *CachedEmbedder) Dimensions() int                    { return c.inner.Dimensions() }
func (c *CachedEmbedder) ModelName() string                  { return c.inner.ModelName() }
func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }
func (c *CachedEmbedder) Close() error                       { return c.inner.Close() }

// Stats reports cache effectiveness.
func (c *CachedEmbedder) Stats() (hits, misses int64) {
	return c.hits, c.misses
}
