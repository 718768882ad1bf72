package search

import (
	"context"
	"strings"

	"github.com/spiralmem/spiralmem/internal/store"
)

// WithTimestamps runs a keyword search and enriches every chunk hit with
// per-word sub-matches from the stored transcript word lists.
func (e *Engine) WithTimestamps(ctx context.Context, query string, filter Filter) ([]*Result, error) {
	results, err := e.Keyword(ctx, query, filter)
	if err != nil {
		return nil, err
	}
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return results, nil
	}

	// Transcripts are loaded once per memory, not per chunk.
	transcripts := map[string]*store.Transcript{}
	for _, r := range results {
		if r.Chunk == nil || r.Memory == nil || r.Timestamps == nil {
			continue
		}
		t, ok := transcripts[r.Memory.ID]
		if !ok {
			pc, err := e.store.Content.GetByMemoryID(ctx, r.Memory.ID)
			if err != nil || pc.Transcript == nil {
				transcripts[r.Memory.ID] = nil
				continue
			}
			t = pc.Transcript
			transcripts[r.Memory.ID] = t
		}
		if t == nil {
			continue
		}
		r.Timestamps.WordMatches = wordMatches(t, tokens, r.Timestamps.StartMs, r.Timestamps.EndMs)
	}
	return results, nil
}

// wordMatches collects transcript words matching any query token whose
// time range falls inside the chunk window.
func wordMatches(t *store.Transcript, tokens []string, startMs, endMs int64) []WordMatch {
	var matches []WordMatch
	for _, seg := range t.Segments {
		segStart := int64(seg.StartSec * 1000)
		segEnd := int64(seg.EndSec * 1000)
		if segEnd < startMs || segStart > endMs {
			continue
		}
		for _, w := range seg.Words {
			if w.StartMs < startMs || w.EndMs > endMs {
				continue
			}
			if matchesToken(w.Word, tokens) {
				matches = append(matches, WordMatch{
					Word:    normalizeWord(w.Word),
					StartMs: w.StartMs,
					EndMs:   w.EndMs,
				})
			}
		}
	}
	return matches
}

func matchesToken(word string, tokens []string) bool {
	w := normalizeWord(word)
	for _, tok := range tokens {
		if w == tok || strings.Contains(w, tok) {
			return true
		}
	}
	return false
}

func normalizeWord(w string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(w)), `.,;:!?"'()[]{}`)
}
