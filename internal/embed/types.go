// Package embed generates dense vectors for transcript chunks via a local
// Ollama server. Absence of the server degrades softly: callers get an
// unavailable embedder and search falls back to keyword-only.
package embed

import (
	"context"
	"math"
	"time"
)

// Defaults for the Ollama backend.
const (
	DefaultOllamaHost = "http://localhost:11434"
	DefaultModel      = "nomic-embed-text"
	DefaultBatchSize  = 32
	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 3
	DefaultDimensions = 768
)

// Embedder turns texts into fixed-dimension vectors.
type Embedder interface {
	// Embed returns the vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions is the fixed vector width for this model.
	Dimensions() int
	// ModelName identifies the embedding model.
	ModelName() string
	// Available reports whether the backend can serve requests now.
	Available(ctx context.Context) bool
	Close() error
}

// Config configures the Ollama embedder.
type Config struct {
	Host       string
	Model      string
	Dimensions int // 0 auto-detects from the first embedding
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
	CacheSize  int // query cache entries, 0 disables caching
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultOllamaHost
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// normalizeVector scales a vector to unit length. Zero vectors pass
// through unchanged.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
