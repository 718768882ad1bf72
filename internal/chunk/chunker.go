// Package chunk splits transcripts into overlapping, retrieval-sized
// pieces that carry millisecond offsets back into the source timeline.
package chunk

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spiralmem/spiralmem/internal/store"
)

// Defaults tuned for transcript retrieval.
const (
	DefaultChunkSize   = 400 // characters
	DefaultOverlapSize = 80  // 20% of chunk size
)

// Options configures one chunking run. The zero value applies the
// defaults: 400-character chunks, 20% overlap, sentence-aligned cuts,
// timestamps carried through.
type Options struct {
	ChunkSize            int
	OverlapSize          int
	DisableTimestamps    bool
	DisableSentenceBreak bool
}

// DefaultOptions returns the standard transcript chunking configuration.
func DefaultOptions() Options {
	return Options{
		ChunkSize:   DefaultChunkSize,
		OverlapSize: DefaultOverlapSize,
	}
}

// Chunk is one emitted piece of transcript text.
type Chunk struct {
	Content        string `json:"content"`
	ChunkIndex     int    `json:"chunkIndex"`
	StartTimeMs    *int64 `json:"startTimeMs,omitempty"`
	EndTimeMs      *int64 `json:"endTimeMs,omitempty"`
	WordCount      int    `json:"wordCount"`
	CharacterCount int    `json:"characterCount"`
}

// Result is the full chunking output.
type Result struct {
	Chunks []Chunk `json:"chunks"`
	// TimestampCoverage is the fraction of chunks carrying both a start
	// and an end time.
	TimestampCoverage float64 `json:"timestampCoverage"`
}

// span is one character with its owning segment's time range.
type span struct {
	startMs int64
	endMs   int64
	timed   bool
}

// Split walks the transcript segments and emits overlapping chunks.
// An empty transcript yields zero chunks and no error.
func Split(t *store.Transcript, opts Options) *Result {
	opts = withDefaults(opts)
	res := &Result{}
	if t == nil || len(t.Segments) == 0 {
		return res
	}

	// Flatten segments into one text with a per-character time map.
	var text strings.Builder
	var spans []span
	for i, seg := range t.Segments {
		s := strings.TrimSpace(seg.Text)
		if s == "" {
			continue
		}
		if text.Len() > 0 {
			text.WriteByte(' ')
			spans = append(spans, spans[len(spans)-1])
		}
		startMs := int64(seg.StartSec * 1000)
		endMs := int64(seg.EndSec * 1000)
		timed := seg.EndSec > 0 || seg.StartSec > 0 || i == 0
		for range s {
			spans = append(spans, span{startMs: startMs, endMs: endMs, timed: timed})
		}
		text.WriteString(s)
	}

	full := text.String()
	if full == "" {
		return res
	}
	runes := []rune(full)

	step := opts.ChunkSize - opts.OverlapSize
	if step < 1 {
		step = 1
	}

	index := 0
	timestamped := 0
	for pos := 0; pos < len(runes); {
		end := pos + opts.ChunkSize
		if end > len(runes) {
			end = len(runes)
		} else if !opts.DisableSentenceBreak {
			end = backOffToSentence(runes, pos, end)
		}

		content := strings.TrimSpace(string(runes[pos:end]))
		if content != "" {
			c := Chunk{
				Content:        content,
				ChunkIndex:     index,
				WordCount:      len(strings.Fields(content)),
				CharacterCount: utf8.RuneCountInString(content),
			}
			if !opts.DisableTimestamps {
				if start, stop, ok := timeRange(spans, pos, end); ok {
					c.StartTimeMs = &start
					c.EndTimeMs = &stop
					timestamped++
				}
			}
			res.Chunks = append(res.Chunks, c)
			index++
		}

		if end >= len(runes) {
			break
		}
		next := end - opts.OverlapSize
		if next <= pos {
			next = pos + step
		}
		pos = next
	}

	if len(res.Chunks) > 0 {
		res.TimestampCoverage = float64(timestamped) / float64(len(res.Chunks))
	}
	return res
}

func withDefaults(opts Options) Options {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.OverlapSize <= 0 || opts.OverlapSize >= opts.ChunkSize {
		opts.OverlapSize = opts.ChunkSize / 5
	}
	return opts
}

// backOffToSentence moves the cut point back to the nearest sentence
// terminator, but only within the last quarter of the chunk.
func backOffToSentence(runes []rune, start, end int) int {
	limit := end - (end-start)/4
	for i := end - 1; i >= limit; i-- {
		if isSentenceEnd(runes[i]) {
			return i + 1
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return unicode.Is(unicode.Sentence_Terminal, r)
}

// timeRange reports the earliest start and latest end over the spans
// backing [start,end).
func timeRange(spans []span, start, end int) (int64, int64, bool) {
	if start >= len(spans) {
		return 0, 0, false
	}
	if end > len(spans) {
		end = len(spans)
	}
	var lo, hi int64
	found := false
	for i := start; i < end; i++ {
		if !spans[i].timed {
			continue
		}
		if !found || spans[i].startMs < lo {
			lo = spans[i].startMs
		}
		if !found || spans[i].endMs > hi {
			hi = spans[i].endMs
		}
		found = true
	}
	return lo, hi, found
}
