package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spiralmem/spiralmem/internal/channel"
	"github.com/spiralmem/spiralmem/internal/chunk"
	"github.com/spiralmem/spiralmem/internal/pipeline"
	"github.com/spiralmem/spiralmem/internal/platform"
)

// addChannelOptions holds CLI flags for add-channel.
type addChannelOptions struct {
	maxVideos       int
	space           string
	minDuration     float64
	maxDuration     float64
	includeShorts   bool
	includeLive     bool
	includeKeywords []string
	excludeKeywords []string
	priority        string
	dryRun          bool
	batchSize       int
	concurrency     int
	jsonOut         bool
}

func newAddChannelCmd() *cobra.Command {
	var opts addChannelOptions

	cmd := &cobra.Command{
		Use:   "add-channel <url>",
		Short: "Ingest an entire channel's videos",
		Long: `Discovers a channel's videos, filters and prioritizes them, then runs
each through the ingestion pipeline in bounded batches. A quota error
from the platform stops dispatch and reports how far processing got.

Examples:
  spiralmem add-channel https://www.youtube.com/@golang -m 20
  spiralmem add-channel https://www.youtube.com/@talks --priority most-popular --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddChannel(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.maxVideos, "max-videos", "m", 10, "Maximum videos to process")
	cmd.Flags().StringVarP(&opts.space, "space", "s", "", "Target memory space")
	cmd.Flags().Float64Var(&opts.minDuration, "min-duration", 0, "Minimum video duration in seconds")
	cmd.Flags().Float64Var(&opts.maxDuration, "max-duration", 0, "Maximum video duration in seconds")
	cmd.Flags().BoolVar(&opts.includeShorts, "include-shorts", false, "Include videos under 60 seconds")
	cmd.Flags().BoolVar(&opts.includeLive, "include-live", false, "Include live streams")
	cmd.Flags().StringSliceVar(&opts.includeKeywords, "include-keywords", nil, "Only titles containing any of these keywords")
	cmd.Flags().StringSliceVar(&opts.excludeKeywords, "exclude-keywords", nil, "Drop titles containing any of these keywords")
	cmd.Flags().StringVar(&opts.priority, "priority", string(channel.PriorityNewestFirst),
		"Processing order: newest-first, oldest-first, most-popular, longest-first")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "List what would be processed without downloading")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Videos per batch (default 5)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Concurrent downloads per batch (default 2)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Emit JSON output")

	return cmd
}

func runAddChannel(cmd *cobra.Command, channelURL string, opts addChannelOptions) error {
	a, err := openApp()
	if err != nil {
		if opts.jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}
	defer a.close()

	ctx := cmd.Context()
	out := console(cmd)

	spaceID, err := a.resolveSpace(ctx, opts.space)
	if err != nil {
		if opts.jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}

	downloader := a.downloader()
	lister := platform.NewChannelLister(a.cfg.Platform.YouTubeAPIKey, downloader, a.log)
	orch := channel.New(lister, &configuredDownloader{a: a}, a.pipeline(ctx), a.log)

	chOpts := channel.Options{
		MaxVideos: opts.maxVideos,
		Filter: channel.FilterOptions{
			MinDurationSec:     opts.minDuration,
			MaxDurationSec:     opts.maxDuration,
			IncludeShorts:      opts.includeShorts,
			IncludeLiveStreams: opts.includeLive,
			KeywordFilter:      opts.includeKeywords,
			ExcludeKeywords:    opts.excludeKeywords,
		},
		Processing: channel.ProcessingOptions{
			BatchSize:            opts.batchSize,
			ConcurrentProcessing: opts.concurrency,
			PipelineOptions: pipeline.Options{
				SpaceID:                     spaceID,
				OutputDirectory:             a.cfg.AudioDir(),
				EnableTranscription:         true,
				EnableEmbeddings:            a.cfg.Embeddings.Enabled,
				CleanupVideoAfterProcessing: true,
				KeepAudioFiles:              true,
				TranscriptionModel:          a.cfg.Video.WhisperModel,
				Chunking: chunk.Options{
					ChunkSize:   a.cfg.Video.ChunkSize,
					OverlapSize: a.cfg.Video.ChunkOverlap,
				},
			},
		},
		Priority: channel.PriorityMode(opts.priority),
		DryRun:   opts.dryRun,
	}
	if !opts.jsonOut {
		chOpts.OnProgress = func(p channel.Progress) {
			if p.TotalToProcess > 0 {
				out.Progress(p.SuccessfullyProcessed+p.FailedProcessing, p.TotalToProcess,
					fmt.Sprintf("%s %s", p.Stage, p.VideoTitle))
			}
		}
	}

	report, err := orch.Process(ctx, channelURL, chOpts)
	if opts.jsonOut {
		return finishJSON(cmd, report, err)
	}
	if err != nil {
		return reportError(cmd, err)
	}

	if report.ChannelInfo != nil {
		out.Statusf("📺", "channel: %s", report.ChannelInfo.Name)
	}
	out.Successf("discovered %d, accepted %d, succeeded %d, failed %d",
		report.Discovered, report.Accepted, report.Succeeded, report.Failed)
	if report.QuotaExhausted {
		out.Warning("platform quota exhausted before all videos were processed")
	}
	for _, rec := range report.Recommendations {
		out.Detail("hint: " + rec)
	}
	for _, e := range report.Errors {
		out.Warning(e)
	}
	return nil
}
