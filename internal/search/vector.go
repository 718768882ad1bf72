package search

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
	"github.com/spiralmem/spiralmem/internal/store"
)

// cosineSimilarity returns (a·b)/(‖a‖·‖b‖), or 0 when either norm is 0
// or the lengths differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// vectorIndex is an in-memory ANN graph over the stored embeddings for one
// model. The graph prunes candidates; exact cosine produces final scores.
type vectorIndex struct {
	mu      sync.Mutex
	model   string
	graph   *hnsw.Graph[string]
	vectors map[string]*store.VectorEmbedding
}

func newVectorIndex() *vectorIndex {
	return &vectorIndex{vectors: map[string]*store.VectorEmbedding{}}
}

// refresh rebuilds the graph when the stored set changed.
func (idx *vectorIndex) refresh(model string, rows []*store.VectorEmbedding) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.model == model && len(rows) == len(idx.vectors) {
		same := true
		for _, r := range rows {
			if _, ok := idx.vectors[r.ContentID]; !ok {
				same = false
				break
			}
		}
		if same {
			return
		}
	}

	g := hnsw.NewGraph[string]()
	g.M = 16
	g.Ml = 0.25
	g.EfSearch = 40
	g.Distance = hnsw.CosineDistance

	vectors := make(map[string]*store.VectorEmbedding, len(rows))
	for _, r := range rows {
		vectors[r.ContentID] = r
		g.Add(hnsw.MakeNode(r.ContentID, r.Vector))
	}

	idx.model = model
	idx.graph = g
	idx.vectors = vectors
}

type scored struct {
	embedding *store.VectorEmbedding
	score     float64
}

// search returns candidates above the threshold, best first. ANN narrows
// the field; exact cosine decides.
func (idx *vectorIndex) search(query []float32, limit int, threshold float64) []scored {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.graph == nil || len(idx.vectors) == 0 {
		return nil
	}

	k := limit * 4
	if k > len(idx.vectors) {
		k = len(idx.vectors)
	}
	nodes := idx.graph.Search(query, k)

	results := make([]scored, 0, len(nodes))
	for _, n := range nodes {
		emb := idx.vectors[n.Key]
		if emb == nil {
			continue
		}
		score := cosineSimilarity(query, emb.Vector)
		if score >= threshold {
			results = append(results, scored{embedding: emb, score: score})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Vector embeds the query and ranks stored embeddings by cosine
// similarity. Threshold <= 0 uses the configured vector-only default.
func (e *Engine) Vector(ctx context.Context, query string, filter Filter, threshold float64) ([]*Result, error) {
	if threshold <= 0 {
		threshold = e.cfg.SimilarityThreshold
	}
	if !e.embedder.Available(ctx) {
		return nil, spiralerr.New(spiralerr.ErrCodeEmbeddingFailed, "embedding backend unavailable")
	}

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	rows, err := e.store.Vectors.ListByModel(ctx, e.embedder.ModelName())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	e.vectors.refresh(e.embedder.ModelName(), rows)

	hits := e.vectors.search(queryVec, filter.limit(), threshold)
	if len(hits) == 0 {
		return nil, nil
	}

	return e.enrichVectorHits(ctx, hits, filter)
}

// enrichVectorHits loads the chunk and memory rows behind embedding hits
// and applies the memory-level filter.
func (e *Engine) enrichVectorHits(ctx context.Context, hits []scored, filter Filter) ([]*Result, error) {
	var chunkIDs, memoryIDs []string
	for _, h := range hits {
		switch h.embedding.ContentType {
		case store.EmbeddingContentChunk:
			chunkIDs = append(chunkIDs, h.embedding.ContentID)
		case store.EmbeddingContentMemory:
			memoryIDs = append(memoryIDs, h.embedding.ContentID)
		}
	}

	chunks, err := e.store.Chunks.GetMany(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		memoryIDs = append(memoryIDs, c.MemoryID)
	}
	memories, err := e.store.Memories.GetMany(ctx, memoryIDs)
	if err != nil {
		return nil, err
	}

	var results []*Result
	for _, h := range hits {
		r := &Result{Similarity: h.score, MatchType: MatchVector}
		switch h.embedding.ContentType {
		case store.EmbeddingContentChunk:
			c := chunks[h.embedding.ContentID]
			if c == nil {
				continue
			}
			r.Chunk = c
			r.Memory = memories[c.MemoryID]
			if c.StartOffsetMs != nil && c.EndOffsetMs != nil {
				r.Timestamps = &Timestamps{StartMs: *c.StartOffsetMs, EndMs: *c.EndOffsetMs}
			}
		case store.EmbeddingContentMemory:
			r.Memory = memories[h.embedding.ContentID]
		default:
			continue
		}
		if r.Memory == nil || !memoryMatchesFilter(r.Memory, filter) {
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

func memoryMatchesFilter(m *store.Memory, f Filter) bool {
	if f.SpaceID != "" && m.SpaceID != f.SpaceID {
		return false
	}
	if len(f.ContentTypes) > 0 {
		ok := false
		for _, ct := range f.ContentTypes {
			if m.ContentType == ct {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.After != nil && m.CreatedAt.Before(*f.After) {
		return false
	}
	if f.Before != nil && m.CreatedAt.After(*f.Before) {
		return false
	}
	return true
}
