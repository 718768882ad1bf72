package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// ThumbnailPosition names a derived capture point.
type ThumbnailPosition string

const (
	ThumbStart       ThumbnailPosition = "start"
	ThumbMiddle      ThumbnailPosition = "middle"
	ThumbEnd         ThumbnailPosition = "end"
	ThumbBestQuality ThumbnailPosition = "best-quality"
)

// ThumbnailOptions controls thumbnail generation. TimestampSec, when set,
// wins over Position.
type ThumbnailOptions struct {
	TimestampSec *float64
	Position     ThumbnailPosition
	MaxWidth     int
	MaxHeight    int
	JPEGQuality  int
	OutputDir    string
}

// ThumbnailResult is one generated thumbnail.
type ThumbnailResult struct {
	Filepath     string  `json:"filepath"`
	TimestampSec float64 `json:"timestampSec"`
	FileSize     int64   `json:"fileSize"`
}

// ThumbnailGenerator produces a single representative frame per video.
type ThumbnailGenerator struct {
	frames *FrameExtractor
	prober *Prober
	run    *runner
	log    *slog.Logger
}

func NewThumbnailGenerator(ffmpegPath string, frames *FrameExtractor, prober *Prober, log *slog.Logger) *ThumbnailGenerator {
	if log == nil {
		log = slog.Default()
	}
	return &ThumbnailGenerator{
		frames: frames,
		prober: prober,
		run:    newRunner(ffmpegPath, "ffmpeg", log),
		log:    log,
	}
}

// Generate captures a thumbnail at the requested moment.
func (g *ThumbnailGenerator) Generate(ctx context.Context, input string, opts ThumbnailOptions) (*ThumbnailResult, error) {
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 2
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.Position == "" {
		opts.Position = ThumbMiddle
	}

	probe, err := g.prober.Probe(ctx, input)
	if err != nil {
		return nil, err
	}

	if opts.Position == ThumbBestQuality && opts.TimestampSec == nil {
		return g.generateBestQuality(ctx, input, opts)
	}

	ts := thumbnailTimestamp(opts, probe.DurationSec)

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, spiralerr.Wrap(err, spiralerr.ErrCodeMediaTool, "cannot create thumbnail output directory")
	}

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	outPath := filepath.Join(opts.OutputDir, base+"_thumb.jpg")

	args := []string{"-y", "-ss", fmt.Sprintf("%.3f", ts), "-i", input, "-frames:v", "1"}
	if vf := scaleFilter(opts.MaxWidth, opts.MaxHeight); vf != "" {
		args = append(args, "-vf", vf)
	}
	args = append(args, "-q:v", fmt.Sprintf("%d", opts.JPEGQuality), outPath)

	if _, err := g.run.run(ctx, FrameTimeout, args...); err != nil {
		return nil, err
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return nil, spiralerr.Wrap(err, spiralerr.ErrCodeMediaTool, "thumbnail output missing")
	}

	return &ThumbnailResult{Filepath: outPath, TimestampSec: ts, FileSize: info.Size()}, nil
}

// generateBestQuality reuses quality-based frame sampling with N=1.
func (g *ThumbnailGenerator) generateBestQuality(ctx context.Context, input string, opts ThumbnailOptions) (*ThumbnailResult, error) {
	frames, err := g.frames.Extract(ctx, input, FrameOptions{
		Method:      SampleQualityBased,
		FrameCount:  1,
		MaxWidth:    opts.MaxWidth,
		MaxHeight:   opts.MaxHeight,
		JPEGQuality: opts.JPEGQuality,
		OutputDir:   opts.OutputDir,
	})
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, spiralerr.New(spiralerr.ErrCodeMediaTool, "no frames could be sampled for thumbnail")
	}
	f := frames[0]
	return &ThumbnailResult{Filepath: f.Filepath, TimestampSec: f.TimestampSec, FileSize: f.FileSize}, nil
}

// thumbnailTimestamp resolves the capture point. Start means 10s or 10% of
// the duration, whichever is smaller; end backs off 10s from the tail.
func thumbnailTimestamp(opts ThumbnailOptions, durationSec float64) float64 {
	if opts.TimestampSec != nil {
		ts := *opts.TimestampSec
		if ts < 0 {
			ts = 0
		}
		if durationSec > 0 && ts > durationSec {
			ts = durationSec
		}
		return ts
	}

	switch opts.Position {
	case ThumbStart:
		ts := 10.0
		if tenth := durationSec * 0.1; tenth < ts {
			ts = tenth
		}
		return ts
	case ThumbEnd:
		ts := durationSec - 10
		if ts < 0 {
			ts = 0
		}
		return ts
	default: // middle
		return durationSec / 2
	}
}
