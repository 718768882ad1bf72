package search

import (
	"context"
	"sort"
	"strings"

	"github.com/spiralmem/spiralmem/internal/store"
)

// Keyword runs substring search over memory titles, memory content, and
// chunk text. An empty query returns everything newest-first.
func (e *Engine) Keyword(ctx context.Context, query string, filter Filter) ([]*Result, error) {
	tokens := tokenize(query)

	if len(tokens) == 0 {
		memories, err := e.store.Memories.Search(ctx, "", filter.storeFilter())
		if err != nil {
			return nil, err
		}
		results := make([]*Result, 0, len(memories))
		for _, m := range memories {
			results = append(results, &Result{
				Memory: m, Similarity: 1, MatchType: MatchKeyword,
			})
		}
		return results, nil
	}

	byID := map[string]*Result{}

	// Memory-level hits: one repo pass per token, scored over the union.
	for _, tok := range tokens {
		memories, err := e.store.Memories.Search(ctx, tok, filter.storeFilter())
		if err != nil {
			return nil, err
		}
		for _, m := range memories {
			if _, seen := byID[m.ID]; seen {
				continue
			}
			text := m.Title + " " + m.Content
			score := keywordScore(text, tokens)
			if score == 0 {
				continue
			}
			byID[m.ID] = &Result{
				Memory:     m,
				Similarity: score,
				MatchType:  MatchKeyword,
				Highlights: buildHighlights(m.Content, tokens),
			}
		}
	}

	// Chunk-level hits, scoped to the filter's memory set when present.
	chunkResults, err := e.keywordChunks(ctx, tokens, filter)
	if err != nil {
		return nil, err
	}
	for _, r := range chunkResults {
		if prev, seen := byID[r.contentID()]; !seen || r.Similarity > prev.Similarity {
			byID[r.contentID()] = r
		}
	}

	results := make([]*Result, 0, len(byID))
	for _, r := range byID {
		results = append(results, r)
	}
	sortResults(results)
	if len(results) > filter.limit() {
		results = results[:filter.limit()]
	}
	return results, nil
}

func (e *Engine) keywordChunks(ctx context.Context, tokens []string, filter Filter) ([]*Result, error) {
	var memoryIDs []string
	if filter.SpaceID != "" || len(filter.ContentTypes) > 0 || filter.After != nil || filter.Before != nil {
		scoped := filter.storeFilter()
		scoped.Limit = scopeLimit // scope query, not a page
		memories, err := e.store.Memories.Search(ctx, "", scoped)
		if err != nil {
			return nil, err
		}
		if len(memories) == 0 {
			return nil, nil
		}
		for _, m := range memories {
			memoryIDs = append(memoryIDs, m.ID)
		}
	}

	seen := map[string]*store.Chunk{}
	for _, tok := range tokens {
		chunks, err := e.store.Chunks.Search(ctx, tok, memoryIDs, filter.limit()*4)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			seen[c.ID] = c
		}
	}
	if len(seen) == 0 {
		return nil, nil
	}

	memIDs := map[string]struct{}{}
	for _, c := range seen {
		memIDs[c.MemoryID] = struct{}{}
	}

	memoryList := make([]string, 0, len(memIDs))
	for id := range memIDs {
		memoryList = append(memoryList, id)
	}
	memories, err := e.store.Memories.GetMany(ctx, memoryList)
	if err != nil {
		return nil, err
	}

	var results []*Result
	for _, c := range seen {
		score := keywordScore(c.ChunkText, tokens)
		if score == 0 {
			continue
		}
		r := &Result{
			Memory:     memories[c.MemoryID],
			Chunk:      c,
			Similarity: score,
			MatchType:  MatchKeyword,
			Highlights: buildHighlights(c.ChunkText, tokens),
		}
		if c.StartOffsetMs != nil && c.EndOffsetMs != nil {
			r.Timestamps = &Timestamps{StartMs: *c.StartOffsetMs, EndMs: *c.EndOffsetMs}
		}
		results = append(results, r)
	}
	return results, nil
}

// tokenize lowercases, splits on whitespace, and keeps tokens longer than
// two characters.
func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `.,;:!?"'()[]{}`)
		if len(f) >= minTokenLen {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// keywordScore is the fraction of query tokens found in the text.
func keywordScore(text string, tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}

// buildHighlights returns up to three windows of text around the first
// occurrence of each matched token.
func buildHighlights(text string, tokens []string) []string {
	lower := strings.ToLower(text)
	var highlights []string
	for _, tok := range tokens {
		if len(highlights) >= maxHighlights {
			break
		}
		idx := strings.Index(lower, tok)
		if idx < 0 {
			continue
		}
		start := idx - highlightRadius
		if start < 0 {
			start = 0
		}
		end := idx + len(tok) + highlightRadius
		if end > len(text) {
			end = len(text)
		}
		window := strings.TrimSpace(text[start:end])
		if start > 0 {
			window = "..." + window
		}
		if end < len(text) {
			window += "..."
		}
		highlights = append(highlights, window)
	}
	return highlights
}

// sortResults orders by similarity desc, then newest memory first for
// stable presentation.
func sortResults(results []*Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		mi, mj := results[i].Memory, results[j].Memory
		if mi != nil && mj != nil && !mi.CreatedAt.Equal(mj.CreatedAt) {
			return mi.CreatedAt.After(mj.CreatedAt)
		}
		return results[i].contentID() < results[j].contentID()
	})
}
