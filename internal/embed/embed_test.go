package embed

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// fakeEmbedder returns deterministic vectors and counts calls.
type fakeEmbedder struct {
	calls atomic.Int64
	dims  int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	v := make([]float32, f.dims)
	for i := range v {
		v[i] = float32(len(text)%7) + float32(i)
	}
	return normalizeVector(v), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := f.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int                { return f.dims }
func (f *fakeEmbedder) ModelName() string              { return "fake-model" }
func (f *fakeEmbedder) Available(context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                   { return nil }

func TestNormalizeVector(t *testing.T) {
	v := normalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)

	// zero vector passes through
	z := normalizeVector([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, z)
}

func TestCachedEmbedder_HitsAvoidBackend(t *testing.T) {
	fake := &fakeEmbedder{dims: 4}
	cached := NewCachedEmbedder(fake, 16)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "hello world")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "hello world")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), fake.calls.Load())

	_, err = cached.Embed(ctx, "different")
	require.NoError(t, err)
	assert.Equal(t, int64(2), fake.calls.Load())

	c := cached.(*CachedEmbedder)
	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestCachedEmbedder_ZeroSizeUnwrapped(t *testing.T) {
	fake := &fakeEmbedder{dims: 4}
	assert.Same(t, Embedder(fake), NewCachedEmbedder(fake, 0))
}

func TestUnavailable(t *testing.T) {
	u := Unavailable{Model: "nomic-embed-text"}
	ctx := context.Background()

	assert.False(t, u.Available(ctx))
	assert.Zero(t, u.Dimensions())

	_, err := u.Embed(ctx, "x")
	require.Error(t, err)
	assert.Equal(t, spiralerr.ErrCodeEmbeddingFailed, spiralerr.GetCode(err))
	assert.True(t, spiralerr.IsWarning(err))

	_, err = u.EmbedBatch(ctx, []string{"x"})
	assert.Error(t, err)
	assert.NoError(t, u.Close())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultOllamaHost, cfg.Host)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
}

func TestCacheKey_DistinguishesModels(t *testing.T) {
	assert.NotEqual(t, cacheKey("a", "text"), cacheKey("b", "text"))
	assert.NotEqual(t, cacheKey("a", "x"), cacheKey("a", "y"))
	assert.Equal(t, cacheKey("m", "same"), cacheKey("m", "same"))
}
