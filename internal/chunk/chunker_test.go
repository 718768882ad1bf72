package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spiralmem/spiralmem/internal/store"
)

func transcriptFrom(texts []string, secPerSegment float64) *store.Transcript {
	t := &store.Transcript{Language: "en"}
	for i, text := range texts {
		t.Segments = append(t.Segments, store.TranscriptSegment{
			Text:     text,
			StartSec: float64(i) * secPerSegment,
			EndSec:   float64(i+1) * secPerSegment,
		})
	}
	t.SegmentCount = len(t.Segments)
	return t
}

func TestSplit_EmptyTranscript(t *testing.T) {
	res := Split(nil, DefaultOptions())
	assert.Empty(t, res.Chunks)
	assert.Zero(t, res.TimestampCoverage)

	res = Split(&store.Transcript{}, DefaultOptions())
	assert.Empty(t, res.Chunks)
}

func TestSplit_SingleShortSegment(t *testing.T) {
	tr := transcriptFrom([]string{"hello world"}, 2)
	res := Split(tr, DefaultOptions())

	require.Len(t, res.Chunks, 1)
	c := res.Chunks[0]
	assert.Equal(t, "hello world", c.Content)
	assert.Equal(t, 0, c.ChunkIndex)
	assert.Equal(t, 2, c.WordCount)
	require.NotNil(t, c.StartTimeMs)
	require.NotNil(t, c.EndTimeMs)
	assert.Equal(t, int64(0), *c.StartTimeMs)
	assert.Equal(t, int64(2000), *c.EndTimeMs)
	assert.Equal(t, 1.0, res.TimestampCoverage)
}

func TestSplit_IndexesStrictlyIncrease(t *testing.T) {
	texts := make([]string, 40)
	for i := range texts {
		texts[i] = "segment text with some words in it."
	}
	res := Split(transcriptFrom(texts, 3), DefaultOptions())

	require.Greater(t, len(res.Chunks), 1)
	for i, c := range res.Chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.LessOrEqual(t, c.CharacterCount, DefaultChunkSize)
		assert.NotEmpty(t, c.Content)
	}
}

func TestSplit_TimestampsMonotonicAndBounded(t *testing.T) {
	texts := make([]string, 30)
	for i := range texts {
		texts[i] = "one two three four five six seven eight nine ten."
	}
	tr := transcriptFrom(texts, 5)
	durationMs := int64(30 * 5 * 1000)

	res := Split(tr, DefaultOptions())
	require.Greater(t, len(res.Chunks), 1)

	var prevStart int64 = -1
	for _, c := range res.Chunks {
		require.NotNil(t, c.StartTimeMs)
		require.NotNil(t, c.EndTimeMs)
		assert.LessOrEqual(t, *c.StartTimeMs, *c.EndTimeMs)
		assert.GreaterOrEqual(t, *c.StartTimeMs, int64(0))
		assert.LessOrEqual(t, *c.EndTimeMs, durationMs)
		assert.Greater(t, *c.StartTimeMs, prevStart, "chunk starts must strictly increase")
		prevStart = *c.StartTimeMs
	}
	assert.Equal(t, 1.0, res.TimestampCoverage)
}

func TestSplit_OverlapReconstructsText(t *testing.T) {
	texts := []string{
		"The quick brown fox jumps over the lazy dog near the river bank.",
		"Later that day the fox returned to look for more interesting things.",
		"Nothing was found but the journey itself was worth every minute spent.",
		"Finally the fox went home and slept through the entire cold night.",
	}
	tr := transcriptFrom(texts, 4)
	full := strings.Join(texts, " ")

	opts := Options{ChunkSize: 80, OverlapSize: 16}
	res := Split(tr, opts)
	require.Greater(t, len(res.Chunks), 1)

	// Strip each chunk's leading overlap by locating it inside the
	// reconstruction so far, then compare modulo whitespace.
	rebuilt := res.Chunks[0].Content
	for _, c := range res.Chunks[1:] {
		content := c.Content
		matched := false
		for cut := len(content); cut > 0; cut-- {
			if strings.HasSuffix(rebuilt, content[:cut]) {
				rebuilt += content[cut:]
				matched = true
				break
			}
		}
		if !matched {
			rebuilt += " " + content
		}
	}
	normalize := func(s string) string { return strings.Join(strings.Fields(s), " ") }
	assert.Equal(t, normalize(full), normalize(rebuilt))
	// The separator between sentences must survive the chunk boundary.
	assert.Contains(t, rebuilt, "bank. Later")
}

func TestSplit_SentenceBreakBacksOff(t *testing.T) {
	// One sentence ends inside the last quarter of the first chunk; the
	// cut should land right after the period.
	text := strings.Repeat("word ", 15) + "end of sentence. " + strings.Repeat("more ", 30)
	tr := &store.Transcript{Segments: []store.TranscriptSegment{{Text: text, StartSec: 0, EndSec: 60}}}

	res := Split(tr, Options{ChunkSize: 100, OverlapSize: 20, DisableTimestamps: true})
	require.NotEmpty(t, res.Chunks)
	assert.True(t, strings.HasSuffix(res.Chunks[0].Content, "sentence."),
		"got %q", res.Chunks[0].Content)
}

func TestSplit_NoSentenceBreak(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("abcde ", 50))
	tr := &store.Transcript{Segments: []store.TranscriptSegment{{Text: text, StartSec: 0, EndSec: 10}}}

	res := Split(tr, Options{ChunkSize: 100, OverlapSize: 20, DisableSentenceBreak: true})
	require.Greater(t, len(res.Chunks), 1)
	for _, c := range res.Chunks[:len(res.Chunks)-1] {
		// Without sentence backoff every window is exactly chunkSize wide;
		// only boundary whitespace trimming may shave characters off.
		assert.InDelta(t, 100, c.CharacterCount, 2)
	}
}

func TestSplit_DefaultsApplied(t *testing.T) {
	opts := withDefaults(Options{})
	assert.Equal(t, DefaultChunkSize, opts.ChunkSize)
	assert.Equal(t, DefaultOverlapSize, opts.OverlapSize)

	// unset overlap follows the chunk size at 20%
	opts = withDefaults(Options{ChunkSize: 100})
	assert.Equal(t, 20, opts.OverlapSize)

	// overlap >= size falls back to 20%
	opts = withDefaults(Options{ChunkSize: 100, OverlapSize: 150})
	assert.Equal(t, 20, opts.OverlapSize)
}

func TestSplit_ZeroOptionsCarryTimestamps(t *testing.T) {
	texts := make([]string, 12)
	for i := range texts {
		texts[i] = "the narrator keeps talking about one more topic in this part."
	}
	res := Split(transcriptFrom(texts, 4), Options{})

	require.Greater(t, len(res.Chunks), 1)
	assert.Equal(t, 1.0, res.TimestampCoverage)
	for _, c := range res.Chunks {
		require.NotNil(t, c.StartTimeMs)
		require.NotNil(t, c.EndTimeMs)
	}
}
