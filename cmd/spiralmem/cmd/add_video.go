package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spiralmem/spiralmem/internal/chunk"
	"github.com/spiralmem/spiralmem/internal/pipeline"
	"github.com/spiralmem/spiralmem/internal/platform"
	"github.com/spiralmem/spiralmem/internal/ui"
)

// addVideoOptions holds CLI flags for add-video.
type addVideoOptions struct {
	space           string
	title           string
	model           string
	noTranscription bool
	keepVideo       bool
	noKeepAudio     bool
	jsonOut         bool
}

func newAddVideoCmd() *cobra.Command {
	var opts addVideoOptions

	cmd := &cobra.Command{
		Use:   "add-video <path|url>",
		Short: "Ingest a video file or URL into memory",
		Long: `Runs the full ingestion pipeline: validation, metadata probe, audio
extraction, transcription, chunking, and indexing.

Examples:
  spiralmem add-video lecture.mp4
  spiralmem add-video https://www.youtube.com/watch?v=dQw4w9WgXcQ -t "classic"
  spiralmem add-video talk.mov -s research --model small`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddVideo(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.space, "space", "s", "", "Target memory space")
	cmd.Flags().StringVarP(&opts.title, "title", "t", "", "Custom title (defaults to file name)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Whisper model override (tiny, base, small, ...)")
	cmd.Flags().BoolVar(&opts.noTranscription, "no-transcription", false, "Skip transcription")
	cmd.Flags().BoolVar(&opts.keepVideo, "keep-video", false, "Keep downloaded video files after processing")
	cmd.Flags().BoolVar(&opts.noKeepAudio, "no-keep-audio", false, "Delete extracted audio after processing")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Emit JSON output")

	return cmd
}

func runAddVideo(cmd *cobra.Command, target string, opts addVideoOptions) error {
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

	model := opts.model
	if model == "" {
		model = a.cfg.Video.WhisperModel
	}

	pipeOpts := pipeline.Options{
		SpaceID:             spaceID,
		CustomTitle:         opts.title,
		OutputDirectory:     a.cfg.AudioDir(),
		EnableTranscription: !opts.noTranscription,
		EnableEmbeddings:    a.cfg.Embeddings.Enabled,
		KeepAudioFiles:      !opts.noKeepAudio,
		TranscriptionModel:  model,
		Chunking: chunk.Options{
			ChunkSize:   a.cfg.Video.ChunkSize,
			OverlapSize: a.cfg.Video.ChunkOverlap,
		},
	}

	pipe := a.pipeline(ctx)
	out := console(cmd)

	var result *pipeline.Result
	if platform.IsVideoURL(target) {
		out.Statusf("⬇️", "downloading %s", target)
		pipeOpts.CleanupVideoAfterProcessing = !opts.keepVideo
		result, err = pipe.ProcessURL(ctx, &configuredDownloader{a: a}, target, pipeOpts)
	} else {
		// Local files are never deleted; cleanup only applies to downloads.
		pipeOpts.CleanupVideoAfterProcessing = false
		result, err = pipe.Process(ctx, target, pipeOpts)
	}

	if opts.jsonOut {
		return finishJSON(cmd, result, err)
	}
	if err != nil {
		return reportError(cmd, err)
	}

	out.Successf("memory %s created (%q)", result.MemoryID, result.Title)
	out.Detail(fmt.Sprintf("chunks: %d, embeddings: %d", result.ChunkCount, result.EmbeddingCount))
	if result.BytesFreed > 0 {
		out.Detail("storage reclaimed: " + ui.FormatBytes(result.BytesFreed))
	}
	for _, w := range result.Warnings {
		out.Warning(w)
	}
	out.Detail(fmt.Sprintf("done in %dms", result.ElapsedMs))
	return nil
}

// configuredDownloader adapts the platform downloader to the pipeline's
// interface while injecting config-derived limits.
type configuredDownloader struct {
	a *app
}

func (c *configuredDownloader) Download(ctx context.Context, url string, opts platform.DownloadOptions) (*platform.DownloadResult, error) {
	merged := c.a.downloadOptions(opts.OutputDir)
	return c.a.downloader().Download(ctx, url, merged)
}
