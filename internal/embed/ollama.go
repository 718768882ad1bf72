package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// OllamaEmbedder generates embeddings through Ollama's HTTP API.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	cfg       Config
	modelName string
	dims      int
	log       *slog.Logger

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

type modelListResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaEmbedder connects to Ollama, verifies the model exists, and
// auto-detects vector dimensions when the config leaves them at zero.
func NewOllamaEmbedder(ctx context.Context, cfg Config, log *slog.Logger) (*OllamaEmbedder, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     10 * time.Second,
	}

	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		cfg:       cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
		log:       log,
	}

	checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	model, err := e.findModel(checkCtx)
	if err != nil {
		transport.CloseIdleConnections()
		return nil, err
	}
	e.modelName = model

	if e.dims == 0 {
		vec, err := e.request(checkCtx, []string{"dimension detection"})
		if err != nil || len(vec) == 0 || len(vec[0]) == 0 {
			transport.CloseIdleConnections()
			if err == nil {
				err = spiralerr.New(spiralerr.ErrCodeEmbeddingFailed, "empty embedding returned during dimension detection")
			}
			return nil, err
		}
		e.dims = len(vec[0])
	}

	log.Info("embedder ready", "model", e.modelName, "dimensions", e.dims, "host", cfg.Host)
	return e, nil
}

func (e *OllamaEmbedder) Dimensions() int   { return e.dims }
func (e *OllamaEmbedder) ModelName() string { return e.modelName }

// Embed returns the vector for a single text. Whitespace-only input maps
// to the zero vector without an API call.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dims), nil
	}
	vecs, err := e.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, spiralerr.New(spiralerr.ErrCodeEmbeddingFailed, "no embedding returned")
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in config-sized batches, preserving input order.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexed struct {
		idx  int
		text string
	}
	results := make([][]float32, len(texts))
	var pending []indexed
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			results[i] = make([]float32, e.dims)
			continue
		}
		pending = append(pending, indexed{i, t})
	}

	for start := 0; start < len(pending); start += e.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + e.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		vecs, err := e.embedWithRetry(ctx, batchTexts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, spiralerr.New(spiralerr.ErrCodeEmbeddingFailed,
				fmt.Sprintf("expected %d embeddings, got %d", len(batch), len(vecs)))
		}
		for i, v := range vecs {
			results[batch[i].idx] = v
		}
	}
	return results, nil
}

// Available probes /api/tags for the configured model.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if e.checkOpen() != nil {
		return false
	}
	models, err := e.listModels(ctx)
	if err != nil {
		return false
	}
	want := strings.ToLower(e.modelName)
	for _, m := range models {
		if strings.Contains(strings.ToLower(m), strings.Split(want, ":")[0]) {
			return true
		}
	}
	return false
}

func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		e.transport.CloseIdleConnections()
	}
	return nil
}

func (e *OllamaEmbedder) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return spiralerr.New(spiralerr.ErrCodeEmbeddingFailed, "embedder is closed")
	}
	return nil
}

func (e *OllamaEmbedder) listModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.Host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, spiralerr.Wrap(err, spiralerr.ErrCodeEmbeddingFailed, "cannot reach Ollama")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, spiralerr.New(spiralerr.ErrCodeEmbeddingFailed,
			fmt.Sprintf("Ollama tags returned status %d: %s", resp.StatusCode, truncate(body)))
	}

	var list modelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, spiralerr.Wrap(err, spiralerr.ErrCodeEmbeddingFailed, "unparseable Ollama response")
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// findModel resolves the configured model name against the installed
// models, matching with and without the tag suffix.
func (e *OllamaEmbedder) findModel(ctx context.Context) (string, error) {
	models, err := e.listModels(ctx)
	if err != nil {
		return "", err
	}

	want := strings.ToLower(e.cfg.Model)
	wantBase := strings.Split(want, ":")[0]
	for _, m := range models {
		name := strings.ToLower(m)
		if name == want || strings.Split(name, ":")[0] == wantBase {
			return m, nil
		}
	}
	return "", spiralerr.New(spiralerr.ErrCodeEmbeddingFailed,
		fmt.Sprintf("model %q is not installed in Ollama", e.cfg.Model)).
		WithSuggestion(fmt.Sprintf("run: ollama pull %s", e.cfg.Model))
}

func (e *OllamaEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			backoff := time.Duration(100<<attempt) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		vecs, err := e.request(reqCtx, texts)
		cancel()
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		e.log.Debug("embedding attempt failed", "attempt", attempt+1, "error", err.Error())
	}
	return nil, spiralerr.Wrap(lastErr, spiralerr.ErrCodeEmbeddingFailed,
		fmt.Sprintf("embedding failed after %d attempts", e.cfg.MaxRetries))
}

func (e *OllamaEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	body, err := json.Marshal(embedRequest{Model: e.modelName, Input: input})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed returned status %d: %s", resp.StatusCode, truncate(respBody))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(out.Embeddings))
	for i, emb := range out.Embeddings {
		v := make([]float32, len(emb))
		for j, x := range emb {
			v[j] = float32(x)
		}
		vecs[i] = normalizeVector(v)
	}
	return vecs, nil
}

func truncate(b []byte) string {
	s := string(b)
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}
