// Package search implements keyword, vector, and hybrid retrieval over
// stored memories and chunks, plus timestamp enrichment and compilation
// segment extraction for cut tooling.
package search

import (
	"time"

	"github.com/spiralmem/spiralmem/internal/store"
)

// Default scoring thresholds and weights.
const (
	DefaultVectorThreshold = 0.7 // vector-only search
	DefaultHybridThreshold = 0.6 // vector leg inside hybrid
	DefaultVectorWeight    = 0.3
	DefaultKeywordWeight   = 0.7
	DefaultLimit           = 20

	highlightRadius = 50
	maxHighlights   = 3
	minTokenLen     = 3 // tokens shorter than this are ignored

	// scopeLimit is used where a memory query scopes a chunk search
	// rather than paging results; it must exceed any plausible store.
	scopeLimit = 1 << 20
)

// MatchType records which leg produced a result.
type MatchType string

const (
	MatchKeyword MatchType = "keyword"
	MatchVector  MatchType = "vector"
	MatchHybrid  MatchType = "hybrid"
)

// WordMatch is a query token hit with its position on the timeline.
type WordMatch struct {
	Word    string `json:"word"`
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
}

// Timestamps carries the time range of a matched chunk and per-word hits.
type Timestamps struct {
	StartMs     int64       `json:"startMs"`
	EndMs       int64       `json:"endMs"`
	WordMatches []WordMatch `json:"wordMatches,omitempty"`
}

// Result is the common shape across all search modes.
type Result struct {
	Memory     *store.Memory `json:"memory"`
	Chunk      *store.Chunk  `json:"chunk,omitempty"`
	Similarity float64       `json:"similarity"`
	MatchType  MatchType     `json:"matchType"`
	Highlights []string      `json:"highlights,omitempty"`
	Timestamps *Timestamps   `json:"timestamps,omitempty"`
}

// contentID keys deduplication across legs: the chunk id when the result
// is chunk-level, otherwise the memory id.
func (r *Result) contentID() string {
	if r.Chunk != nil {
		return r.Chunk.ID
	}
	if r.Memory != nil {
		return r.Memory.ID
	}
	return ""
}

// Filter narrows a search.
type Filter struct {
	SpaceID      string
	ContentTypes []store.ContentType
	After        *time.Time
	Before       *time.Time
	Limit        int
	Offset       int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

func (f Filter) storeFilter() store.MemoryFilter {
	return store.MemoryFilter{
		SpaceID:      f.SpaceID,
		ContentTypes: f.ContentTypes,
		From:         f.After,
		To:           f.Before,
		Limit:        f.limit(),
		Offset:       f.Offset,
	}
}

// CompilationSegment is one cut candidate derived from a word match.
type CompilationSegment struct {
	Source     string `json:"source"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	StartMs    int64  `json:"start_ms"`
	EndMs      int64  `json:"end_ms"`
	DurationMs int64  `json:"duration_ms"`
	Speaker    string `json:"speaker"`
}

// CutHint renders a human-readable edit instruction for one segment.
func (s CompilationSegment) CutHint() string {
	return formatCutHint(s)
}
