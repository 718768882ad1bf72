package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spiralmem/spiralmem/internal/search"
	"github.com/spiralmem/spiralmem/internal/store"
)

func TestFormatMs(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0:00"},
		{1000, "0:01"},
		{61000, "1:01"},
		{600000, "10:00"},
		{3661000, "1:01:01"},
		{-5, "0:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatMs(tt.ms))
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KB", FormatBytes(1024))
	assert.Equal(t, "1.5 MB", FormatBytes(1572864))
	assert.Equal(t, "2.0 GB", FormatBytes(2147483648))
}

func TestSearchResults_RendersTitlesAndTimestamps(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)

	start, end := int64(65000), int64(72000)
	r.SearchResults([]*search.Result{
		{
			Memory:     &store.Memory{Title: "demo talk", Source: "/v/demo.mp4"},
			Similarity: 0.82,
			MatchType:  search.MatchHybrid,
			Highlights: []string{"...said hello world and..."},
			Timestamps: &search.Timestamps{StartMs: start, EndMs: end},
		},
	}, 42*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "1 results")
	assert.Contains(t, out, "demo talk")
	assert.Contains(t, out, "0.82 hybrid")
	assert.Contains(t, out, "1:05 - 1:12")
	assert.Contains(t, out, "hello world")
	assert.Contains(t, out, "/v/demo.mp4")
}

func TestSearchResults_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf, true).SearchResults(nil, time.Millisecond)
	assert.Contains(t, buf.String(), "no results")
}

func TestSegments_RendersCutHints(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf, true).Segments([]search.CompilationSegment{
		{Source: "/v/a.mp4", Title: "clip", Text: "the moment", StartMs: 1000, EndMs: 4000, DurationMs: 3000},
	})
	out := buf.String()
	assert.Contains(t, out, "1 segments")
	assert.Contains(t, out, "0:01 - 0:04")
	assert.Contains(t, out, "ffmpeg -ss")
}

func TestStats_Renders(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf, true).Stats(
		map[string]int{"video": 3, "text": 1}, 42, 2,
		&store.EmbeddingStats{TotalEmbeddings: 40, ByModel: map[string]int{"nomic-embed-text": 40}})
	out := buf.String()
	assert.Contains(t, out, "memories: 4")
	assert.Contains(t, out, "video: 3")
	assert.Contains(t, out, "chunks: 42")
	assert.Contains(t, out, "tags: 2")
	assert.Contains(t, out, "nomic-embed-text: 40")
}

func TestStylesFor_NonTerminalIsPlain(t *testing.T) {
	var buf bytes.Buffer
	styles := StylesFor(&buf, false)
	assert.Equal(t, "demo", styles.Header.Render("demo"))
}
