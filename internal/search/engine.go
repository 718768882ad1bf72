package search

import (
	"log/slog"

	"github.com/spiralmem/spiralmem/internal/embed"
	"github.com/spiralmem/spiralmem/internal/store"
)

// Config tunes the engine's fusion weights and thresholds.
type Config struct {
	VectorWeight        float64
	KeywordWeight       float64
	SimilarityThreshold float64 // vector-only
	HybridThreshold     float64 // vector leg inside hybrid
}

// DefaultConfig mirrors the shipped configuration defaults.
func DefaultConfig() Config {
	return Config{
		VectorWeight:        DefaultVectorWeight,
		KeywordWeight:       DefaultKeywordWeight,
		SimilarityThreshold: DefaultVectorThreshold,
		HybridThreshold:     DefaultHybridThreshold,
	}
}

// Engine runs all search modes over one store.
type Engine struct {
	store    *store.Store
	embedder embed.Embedder
	vectors  *vectorIndex
	cfg      Config
	log      *slog.Logger
}

// NewEngine wires the engine. The embedder may be an unavailable stub;
// vector legs then degrade gracefully.
func NewEngine(s *store.Store, embedder embed.Embedder, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if cfg.VectorWeight == 0 && cfg.KeywordWeight == 0 {
		cfg = DefaultConfig()
	}
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = DefaultVectorThreshold
	}
	if cfg.HybridThreshold == 0 {
		cfg.HybridThreshold = DefaultHybridThreshold
	}
	return &Engine{
		store:    s,
		embedder: embedder,
		vectors:  newVectorIndex(),
		cfg:      cfg,
		log:      log,
	}
}
