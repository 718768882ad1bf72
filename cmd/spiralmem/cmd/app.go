package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/spiralmem/spiralmem/internal/config"
	"github.com/spiralmem/spiralmem/internal/embed"
	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
	"github.com/spiralmem/spiralmem/internal/media"
	"github.com/spiralmem/spiralmem/internal/output"
	"github.com/spiralmem/spiralmem/internal/pipeline"
	"github.com/spiralmem/spiralmem/internal/platform"
	"github.com/spiralmem/spiralmem/internal/search"
	"github.com/spiralmem/spiralmem/internal/store"
	"github.com/spiralmem/spiralmem/internal/transcribe"
)

// app bundles the wired collaborators one command invocation needs.
// Commands open it lazily so admin commands never touch the database.
type app struct {
	cfg      *config.Config
	store    *store.Store
	embedder embed.Embedder
	log      *slog.Logger
}

// openApp loads config and opens the store. The embedder is attached
// separately because most commands never need one.
func openApp() (*app, error) {
	cfg, err := config.Load(global.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database.Path, store.Options{CacheMB: cfg.Database.CacheMB})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, store: st, log: slog.Default()}, nil
}

func (a *app) close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// withEmbedder attaches the configured embedding stack. Unreachable
// backends degrade to an unavailable stub, never an error.
func (a *app) withEmbedder(ctx context.Context) *app {
	if a.embedder != nil {
		return a
	}
	if !a.cfg.Embeddings.Enabled {
		a.embedder = embed.Unavailable{Model: a.cfg.Embeddings.Model}
		return a
	}
	a.embedder = embed.New(ctx, embed.Config{
		Host:       a.cfg.Embeddings.OllamaHost,
		Model:      a.cfg.Embeddings.Model,
		Dimensions: a.cfg.Embeddings.Dimensions,
		BatchSize:  a.cfg.Embeddings.BatchSize,
		Timeout:    a.cfg.Embeddings.Timeout,
		CacheSize:  256,
	}, a.log)
	return a
}

// engine builds the search engine over the open store.
func (a *app) engine(ctx context.Context) *search.Engine {
	a.withEmbedder(ctx)
	return search.NewEngine(a.store, a.embedder, search.Config{
		VectorWeight:        a.cfg.Search.VectorWeight,
		KeywordWeight:       a.cfg.Search.KeywordWeight,
		SimilarityThreshold: a.cfg.Search.SimilarityThreshold,
		HybridThreshold:     a.cfg.Search.HybridThreshold,
	}, a.log)
}

// pipeline builds the full ingestion pipeline with real media adapters.
func (a *app) pipeline(ctx context.Context) *pipeline.Pipeline {
	a.withEmbedder(ctx)
	media.SetMaxConcurrent(a.cfg.Video.MaxConcurrentFFmpeg)
	prober := media.NewProber(a.cfg.Video.FFprobePath, a.log)
	return pipeline.New(pipeline.Deps{
		Store:       a.store,
		Prober:      prober,
		Audio:       media.NewAudioExtractor(a.cfg.Video.FFmpegPath, prober, a.log),
		Frames:      media.NewFrameExtractor(a.cfg.Video.FFmpegPath, a.cfg.Video.FFprobePath, prober, a.log),
		Transcriber: transcribe.NewWhisperCLI(a.cfg.Video.WhisperPath, a.log),
		Embedder:    a.embedder,
		Log:         a.log,
	})
}

// resolveSpace maps a --space flag value, name or id, onto the space id.
// An empty value leaves the search or ingest unscoped.
func (a *app) resolveSpace(ctx context.Context, nameOrID string) (string, error) {
	if nameOrID == "" {
		return "", nil
	}
	sp, err := a.store.Spaces.GetByName(ctx, nameOrID)
	if err == nil {
		return sp.ID, nil
	}
	if !spiralerr.HasCode(err, spiralerr.ErrCodeNotFound) {
		return "", err
	}
	sp, err = a.store.Spaces.Get(ctx, nameOrID)
	if err == nil {
		return sp.ID, nil
	}
	if spiralerr.HasCode(err, spiralerr.ErrCodeNotFound) {
		return "", spiralerr.NotFound("space", nameOrID).
			WithSuggestion("list spaces with 'spiralmem spaces'")
	}
	return "", err
}

// downloader builds the platform download adapter.
func (a *app) downloader() *platform.Downloader {
	return platform.NewDownloader(a.cfg.Platform.YtDlpPath, a.log)
}

// downloadOptions maps platform config onto one download call.
func (a *app) downloadOptions(outputDir string) platform.DownloadOptions {
	if outputDir == "" {
		outputDir = a.cfg.TempDir()
	}
	return platform.DownloadOptions{
		Quality:     a.cfg.Platform.DownloadQuality,
		MaxSizeMB:   a.cfg.Platform.MaxDownloadSizeMB,
		MaxDuration: a.cfg.Platform.MaxDownloadDuration,
		OutputDir:   outputDir,
	}
}

// console returns the human-output writer for a command.
func console(cmd *cobra.Command) *output.Writer {
	return output.New(cmd.OutOrStdout(), global.quiet)
}

// finishJSON emits the envelope for JSON-mode commands. JSON mode always
// exits 0; failures travel inside the envelope.
func finishJSON(cmd *cobra.Command, data any, err error) error {
	w := output.NewJSON(cmd.OutOrStdout())
	if err != nil {
		return w.Fail(err)
	}
	return w.OK(data)
}

// reportError prints a one-line reason plus suggestion and returns the
// error so the process exits nonzero.
func reportError(cmd *cobra.Command, err error) error {
	out := console(cmd)
	out.Error(userMessage(err))
	var se *spiralerr.Error
	if errors.As(err, &se) && se.Suggestion != "" {
		out.Detail("hint: " + se.Suggestion)
	}
	cmd.SilenceErrors = true
	return err
}

func userMessage(err error) string {
	var se *spiralerr.Error
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}

// elapsedMs rounds a duration for display.
func elapsedMs(d time.Duration) int64 {
	return d.Milliseconds()
}
