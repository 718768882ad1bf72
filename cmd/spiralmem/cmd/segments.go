package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spiralmem/spiralmem/internal/search"
	"github.com/spiralmem/spiralmem/internal/ui"
)

// segmentOptions holds CLI flags shared by the segment commands.
type segmentOptions struct {
	space       string
	limit       int
	minDuration float64
	maxDuration float64
	csvOut      bool
	quality     int
	outputDir   string
	jsonOut     bool
}

func newExtractSegmentsCmd() *cobra.Command {
	var opts segmentOptions

	cmd := &cobra.Command{
		Use:   "extract-segments <query>",
		Short: "Extract compilation segments matching a query",
		Long: `Finds word-level matches across timestamped transcripts and emits cut
candidates with source, text, and millisecond ranges. --csv prints the
column order cut tools expect.

Examples:
  spiralmem extract-segments "let's go" --min-duration 1 --max-duration 10
  spiralmem extract-segments "goal" --csv > cuts.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtractSegments(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.space, "space", "s", "", "Restrict to one memory space")
	cmd.Flags().IntVarP(&opts.limit, "limit", "l", 50, "Maximum number of segments")
	cmd.Flags().Float64Var(&opts.minDuration, "min-duration", 0, "Minimum segment duration in seconds")
	cmd.Flags().Float64Var(&opts.maxDuration, "max-duration", 0, "Maximum segment duration in seconds")
	cmd.Flags().BoolVar(&opts.csvOut, "csv", false, "Emit CSV (source,title,text,start_ms,end_ms,duration_ms,speaker)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Emit JSON output")

	return cmd
}

func newDownloadSegmentsCmd() *cobra.Command {
	var opts segmentOptions

	cmd := &cobra.Command{
		Use:   "download-segments <query>",
		Short: "Download only the matching time ranges of platform videos",
		Long: `Extracts compilation segments like extract-segments, then fetches just
those time ranges from their source URLs.

Example:
  spiralmem download-segments "highlight" -o ./clips --min-duration 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownloadSegments(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.space, "space", "s", "", "Restrict to one memory space")
	cmd.Flags().IntVarP(&opts.limit, "limit", "l", 50, "Maximum number of segments")
	cmd.Flags().Float64Var(&opts.minDuration, "min-duration", 0, "Minimum segment duration in seconds")
	cmd.Flags().Float64Var(&opts.maxDuration, "max-duration", 0, "Maximum segment duration in seconds")
	cmd.Flags().IntVar(&opts.quality, "quality", 0, "Max video height (0 uses the configured default)")
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "Output directory (default: temp dir)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Emit JSON output")

	return cmd
}

func (o segmentOptions) searchOptions(spaceID string) search.SegmentOptions {
	return search.SegmentOptions{
		MinDurationMs: int64(o.minDuration * 1000),
		MaxDurationMs: int64(o.maxDuration * 1000),
		Limit:         o.limit,
		Filter:        search.Filter{SpaceID: spaceID},
	}
}

func runExtractSegments(cmd *cobra.Command, query string, opts segmentOptions) error {
	a, err := openApp()
	if err != nil {
		if opts.jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}
	defer a.close()

	ctx := cmd.Context()
	spaceID, err := a.resolveSpace(ctx, opts.space)
	if err != nil {
		if opts.jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}

	segments, err := a.engine(ctx).ExtractSegments(ctx, query, opts.searchOptions(spaceID))
	if opts.jsonOut {
		return finishJSON(cmd, map[string]any{"query": query, "segments": segments}, err)
	}
	if err != nil {
		return reportError(cmd, err)
	}

	if opts.csvOut {
		csv, err := search.SegmentsCSV(segments)
		if err != nil {
			return reportError(cmd, err)
		}
		fmt.Fprint(cmd.OutOrStdout(), csv)
		return nil
	}

	ui.NewRenderer(cmd.OutOrStdout(), false).Segments(segments)
	return nil
}

func runDownloadSegments(cmd *cobra.Command, query string, opts segmentOptions) error {
	a, err := openApp()
	if err != nil {
		if opts.jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}
	defer a.close()

	ctx := cmd.Context()
	spaceID, err := a.resolveSpace(ctx, opts.space)
	if err != nil {
		if opts.jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}

	segments, err := a.engine(ctx).ExtractSegments(ctx, query, opts.searchOptions(spaceID))
	if err != nil {
		if opts.jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}

	dlOpts := a.downloadOptions(opts.outputDir)
	if opts.quality > 0 {
		dlOpts.Quality = opts.quality
	}

	out := console(cmd)
	out.Statusf("✂️", "downloading %d segments", len(segments))
	results := search.DownloadSegments(ctx, a.downloader(), segments, dlOpts)

	if opts.jsonOut {
		return finishJSON(cmd, map[string]any{"query": query, "downloads": results}, nil)
	}

	for _, r := range results {
		for _, seg := range r.Results {
			if !seg.Success {
				out.Warningf("%s [%s - %s]: %s", r.Source,
					ui.FormatMs(seg.Range.StartMs), ui.FormatMs(seg.Range.EndMs), seg.Error)
				continue
			}
			out.Successf("%s [%s - %s] -> %s", r.Source,
				ui.FormatMs(seg.Range.StartMs), ui.FormatMs(seg.Range.EndMs), seg.FilePath)
		}
	}
	return nil
}
