package search

import (
	"context"
)

// Hybrid fuses the vector and keyword legs by weighted score. A vector
// failure degrades to keyword-only and is recorded in the log, never
// surfaced as an error.
func (e *Engine) Hybrid(ctx context.Context, query string, filter Filter) ([]*Result, error) {
	var vectorResults, keywordResults []*Result

	if e.cfg.VectorWeight > 0 {
		vr, err := e.Vector(ctx, query, filter, e.cfg.HybridThreshold)
		if err != nil {
			e.log.Warn("vector leg failed, continuing keyword-only", "error", err.Error())
		} else {
			vectorResults = vr
		}
	}

	if e.cfg.KeywordWeight > 0 {
		kr, err := e.Keyword(ctx, query, filter)
		if err != nil {
			return nil, err
		}
		keywordResults = kr
	}

	fused := fuse(vectorResults, keywordResults, e.cfg.VectorWeight, e.cfg.KeywordWeight)
	sortResults(fused)
	if len(fused) > filter.limit() {
		fused = fused[:filter.limit()]
	}
	return fused, nil
}

// fuse combines the two legs per content id: combined = v·wv + k·wk.
// Duplicates keep the higher-scoring shell and merge highlight sets.
func fuse(vector, keyword []*Result, vectorWeight, keywordWeight float64) []*Result {
	type legs struct {
		result *Result
		vScore float64
		kScore float64
		hasV   bool
		hasK   bool
	}
	byID := map[string]*legs{}
	order := []string{}

	for _, r := range vector {
		id := r.contentID()
		if id == "" {
			continue
		}
		byID[id] = &legs{result: r, vScore: r.Similarity, hasV: true}
		order = append(order, id)
	}
	for _, r := range keyword {
		id := r.contentID()
		if id == "" {
			continue
		}
		if l, ok := byID[id]; ok {
			l.kScore = r.Similarity
			l.hasK = true
			l.result.Highlights = mergeHighlights(l.result.Highlights, r.Highlights)
			if l.result.Timestamps == nil {
				l.result.Timestamps = r.Timestamps
			}
		} else {
			byID[id] = &legs{result: r, kScore: r.Similarity, hasK: true}
			order = append(order, id)
		}
	}

	out := make([]*Result, 0, len(order))
	for _, id := range order {
		l := byID[id]
		r := l.result
		r.Similarity = l.vScore*vectorWeight + l.kScore*keywordWeight
		switch {
		case l.hasV && l.hasK:
			r.MatchType = MatchHybrid
		case l.hasV:
			r.MatchType = MatchVector
		default:
			r.MatchType = MatchKeyword
		}
		out = append(out, r)
	}
	return out
}

// mergeHighlights unions two highlight sets, capped at the display limit.
func mergeHighlights(a, b []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, h := range append(a, b...) {
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
		if len(out) >= maxHighlights {
			break
		}
	}
	return out
}
