package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spiralmem/spiralmem/internal/search"
	"github.com/spiralmem/spiralmem/internal/store"
)

// Renderer formats domain objects for the terminal.
type Renderer struct {
	out    io.Writer
	styles Styles
}

// NewRenderer builds a renderer; colors follow the writer unless noColor
// is set.
func NewRenderer(out io.Writer, noColor bool) *Renderer {
	return &Renderer{out: out, styles: StylesFor(out, noColor)}
}

func (r *Renderer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// SearchResults renders a ranked result list with highlights and
// timestamps.
func (r *Renderer) SearchResults(results []*search.Result, elapsed time.Duration) {
	if len(results) == 0 {
		r.printf("%s\n", r.styles.Dim.Render("no results"))
		return
	}
	r.printf("%s\n\n", r.styles.Header.Render(
		fmt.Sprintf("%d results (%s)", len(results), elapsed.Round(time.Millisecond))))

	for i, res := range results {
		title := "(untitled)"
		if res.Memory != nil && res.Memory.Title != "" {
			title = res.Memory.Title
		}
		r.printf("%s %s %s\n",
			r.styles.Label.Render(fmt.Sprintf("%2d.", i+1)),
			r.styles.Title.Render(title),
			r.styles.Score.Render(fmt.Sprintf("(%.2f %s)", res.Similarity, res.MatchType)))

		if res.Timestamps != nil {
			r.printf("    %s\n", r.styles.Timestamp.Render(
				fmt.Sprintf("%s - %s", FormatMs(res.Timestamps.StartMs), FormatMs(res.Timestamps.EndMs))))
		}
		for _, h := range res.Highlights {
			r.printf("    %s\n", r.styles.Highlight.Render(h))
		}
		if res.Memory != nil && res.Memory.Source != "" {
			r.printf("    %s\n", r.styles.Dim.Render(res.Memory.Source))
		}
		r.printf("\n")
	}
}

// Segments renders compilation segments with their cut hints.
func (r *Renderer) Segments(segments []search.CompilationSegment) {
	if len(segments) == 0 {
		r.printf("%s\n", r.styles.Dim.Render("no segments matched"))
		return
	}
	r.printf("%s\n\n", r.styles.Header.Render(fmt.Sprintf("%d segments", len(segments))))
	for i, s := range segments {
		r.printf("%s %s %s\n",
			r.styles.Label.Render(fmt.Sprintf("%2d.", i+1)),
			r.styles.Title.Render(s.Title),
			r.styles.Timestamp.Render(
				fmt.Sprintf("%s - %s (%.1fs)", FormatMs(s.StartMs), FormatMs(s.EndMs),
					float64(s.DurationMs)/1000)))
		if s.Text != "" {
			r.printf("    %s\n", truncate(s.Text, 120))
		}
		r.printf("    %s\n\n", r.styles.Dim.Render(s.CutHint()))
	}
}

// Stats renders the memory/embedding stat block.
func (r *Renderer) Stats(memoriesByType map[string]int, chunks, tags int, emb *store.EmbeddingStats) {
	r.printf("%s\n", r.styles.Header.Render("spiralmem stats"))

	total := 0
	types := make([]string, 0, len(memoriesByType))
	for t, n := range memoriesByType {
		total += n
		types = append(types, t)
	}
	sort.Strings(types)

	r.printf("  %s %d\n", r.styles.Label.Render("memories:"), total)
	for _, t := range types {
		r.printf("    %s %d\n", r.styles.Dim.Render(t+":"), memoriesByType[t])
	}
	r.printf("  %s %d\n", r.styles.Label.Render("chunks:"), chunks)
	r.printf("  %s %d\n", r.styles.Label.Render("tags:"), tags)
	if emb != nil {
		r.printf("  %s %d\n", r.styles.Label.Render("embeddings:"), emb.TotalEmbeddings)
		models := make([]string, 0, len(emb.ByModel))
		for m := range emb.ByModel {
			models = append(models, m)
		}
		sort.Strings(models)
		for _, m := range models {
			r.printf("    %s %d\n", r.styles.Dim.Render(m+":"), emb.ByModel[m])
		}
	}
}

// FormatMs renders a millisecond offset as h:mm:ss or m:ss.
func FormatMs(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatBytes renders a byte count in human units.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := strings.TrimSpace(s[:max])
	return cut + "..."
}
