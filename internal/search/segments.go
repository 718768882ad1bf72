package search

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/spiralmem/spiralmem/internal/platform"
)

// SegmentOptions bounds compilation-segment extraction.
type SegmentOptions struct {
	MinDurationMs int64
	MaxDurationMs int64
	Limit         int
	Filter        Filter
}

// ExtractSegments enumerates word matches from a timestamped search and
// returns cut candidates within the duration window. An inverted window
// (min > max) yields an empty set, not an error.
func (e *Engine) ExtractSegments(ctx context.Context, query string, opts SegmentOptions) ([]CompilationSegment, error) {
	if opts.MinDurationMs > opts.MaxDurationMs && opts.MaxDurationMs > 0 {
		return nil, nil
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	opts.Filter.Limit = opts.Limit

	results, err := e.WithTimestamps(ctx, query, opts.Filter)
	if err != nil {
		return nil, err
	}

	var segments []CompilationSegment
	for _, r := range results {
		if r.Timestamps == nil || r.Memory == nil {
			continue
		}
		speaker := ""
		if r.Memory.Metadata != nil {
			if s, ok := r.Memory.Metadata["speaker"].(string); ok {
				speaker = s
			}
		}
		text := ""
		if r.Chunk != nil {
			text = r.Chunk.ChunkText
		}
		for _, wm := range r.Timestamps.WordMatches {
			duration := wm.EndMs - wm.StartMs
			if duration < opts.MinDurationMs {
				continue
			}
			if opts.MaxDurationMs > 0 && duration > opts.MaxDurationMs {
				continue
			}
			segments = append(segments, CompilationSegment{
				Source:     r.Memory.Source,
				Title:      r.Memory.Title,
				Text:       text,
				StartMs:    wm.StartMs,
				EndMs:      wm.EndMs,
				DurationMs: duration,
				Speaker:    speaker,
			})
			if len(segments) >= opts.Limit {
				return segments, nil
			}
		}
	}
	return segments, nil
}

// SegmentsCSV renders segments in the column order cut tools expect.
func SegmentsCSV(segments []CompilationSegment) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)

	if err := w.Write([]string{"source", "title", "text", "start_ms", "end_ms", "duration_ms", "speaker"}); err != nil {
		return "", err
	}
	for _, s := range segments {
		record := []string{
			s.Source,
			s.Title,
			s.Text,
			strconv.FormatInt(s.StartMs, 10),
			strconv.FormatInt(s.EndMs, 10),
			strconv.FormatInt(s.DurationMs, 10),
			s.Speaker,
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	return b.String(), w.Error()
}

// formatCutHint renders one ffmpeg-ready cut instruction.
func formatCutHint(s CompilationSegment) string {
	return fmt.Sprintf("ffmpeg -ss %.3f -to %.3f -i %q -c copy clip.mp4",
		float64(s.StartMs)/1000, float64(s.EndMs)/1000, s.Source)
}

// SegmentDownloadResult pairs one source URL with its per-range outcomes.
type SegmentDownloadResult struct {
	Source  string                   `json:"source"`
	Results []platform.SegmentResult `json:"results"`
	Error   string                   `json:"error,omitempty"`
}

// DownloadSegments groups segments by source URL and dispatches the
// platform downloader per group. Local-file sources are skipped; they are
// already on disk.
func DownloadSegments(ctx context.Context, d *platform.Downloader, segments []CompilationSegment, opts platform.DownloadOptions) []SegmentDownloadResult {
	grouped := map[string][]platform.SegmentRange{}
	order := []string{}
	for _, s := range segments {
		if !platform.IsVideoURL(s.Source) {
			continue
		}
		if _, seen := grouped[s.Source]; !seen {
			order = append(order, s.Source)
		}
		grouped[s.Source] = append(grouped[s.Source], platform.SegmentRange{
			StartMs: s.StartMs, EndMs: s.EndMs,
		})
	}

	out := make([]SegmentDownloadResult, 0, len(order))
	for _, src := range order {
		res := SegmentDownloadResult{Source: src}
		results, err := d.DownloadSegments(ctx, src, grouped[src], opts)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Results = results
		}
		out = append(out, res)
	}
	return out
}
