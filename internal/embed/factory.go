package embed

import (
	"context"
	"log/slog"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// New builds the embedding stack: Ollama client wrapped in a query cache.
// When Ollama is unreachable or the model missing, it returns an
// Unavailable embedder instead of an error so the pipeline and search can
// degrade to keyword-only.
func New(ctx context.Context, cfg Config, log *slog.Logger) Embedder {
	if log == nil {
		log = slog.Default()
	}

	e, err := NewOllamaEmbedder(ctx, cfg, log)
	if err != nil {
		log.Warn("embeddings unavailable, falling back to keyword-only search",
			"error", err.Error())
		return Unavailable{Model: cfg.withDefaults().Model}
	}
	return NewCachedEmbedder(e, cfg.CacheSize)
}

// Unavailable is the stable stand-in when no embedding backend can serve.
// Every embedding call fails typed; Available always reports false.
type Unavailable struct {
	Model string
}

var _ Embedder = Unavailable{}

func (u Unavailable) Embed(context.Context, string) ([]float32, error) {
	return nil, u.err()
}

func (u Unavailable) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, u.err()
}

func (u Unavailable) Dimensions() int                { return 0 }
func (u Unavailable) ModelName() string              { return u.Model }
func (u Unavailable) Available(context.Context) bool { return false }
func (u Unavailable) Close() error                   { return nil }

func (u Unavailable) err() error {
	return spiralerr.New(spiralerr.ErrCodeEmbeddingFailed, "no embedding backend available").
		WithSuggestion("start Ollama and pull an embedding model, e.g. ollama pull nomic-embed-text")
}
