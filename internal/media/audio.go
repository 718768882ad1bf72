package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// AudioFormat is a supported extraction container.
type AudioFormat string

const (
	AudioFormatWAV  AudioFormat = "wav"
	AudioFormatMP3  AudioFormat = "mp3"
	AudioFormatFLAC AudioFormat = "flac"
	AudioFormatM4A  AudioFormat = "m4a"
)

// AudioOptions controls audio extraction.
type AudioOptions struct {
	Format               AudioFormat
	SampleRate           int
	Channels             int
	Bitrate              string // e.g. "128k", empty for lossless formats
	Normalize            bool
	Denoise              bool
	OutputDir            string
	MaxDurationSec       float64
	KeepOriginalDuration bool
}

// TranscriptionOptimalOptions returns the preset tuned for speech
// recognition: 16 kHz mono WAV with loudness normalization and denoising.
func TranscriptionOptimalOptions(outputDir string) AudioOptions {
	return AudioOptions{
		Format:     AudioFormatWAV,
		SampleRate: 16000,
		Channels:   1,
		Normalize:  true,
		Denoise:    true,
		OutputDir:  outputDir,
	}
}

// FastOptions returns the preset that skips all filters for speed.
func FastOptions(outputDir string) AudioOptions {
	return AudioOptions{
		Format:     AudioFormatWAV,
		SampleRate: 16000,
		Channels:   1,
		OutputDir:  outputDir,
	}
}

// AudioResult describes one successful extraction.
type AudioResult struct {
	OutputPath   string  `json:"outputPath"`
	DurationSec  float64 `json:"durationSec"`
	FileSize     int64   `json:"fileSize"`
	SampleRate   int     `json:"sampleRate"`
	Channels     int     `json:"channels"`
	ExtractionMs int64   `json:"extractionMs"`
}

// AudioExtractor wraps ffmpeg for audio extraction.
type AudioExtractor struct {
	run    *runner
	prober *Prober
	log    *slog.Logger
}

// NewAudioExtractor builds the extractor around explicit ffmpeg/ffprobe
// paths (empty falls back to PATH lookup).
func NewAudioExtractor(ffmpegPath string, prober *Prober, log *slog.Logger) *AudioExtractor {
	if log == nil {
		log = slog.Default()
	}
	return &AudioExtractor{
		run:    newRunner(ffmpegPath, "ffmpeg", log),
		prober: prober,
		log:    log,
	}
}

// Extract pulls the audio track out of input into opts.OutputDir.
func (a *AudioExtractor) Extract(ctx context.Context, input string, opts AudioOptions) (*AudioResult, error) {
	opts = withAudioDefaults(opts)

	probe, err := a.prober.Probe(ctx, input)
	if err != nil {
		return nil, err
	}
	if !probe.HasAudio() {
		return nil, spiralerr.New(spiralerr.ErrCodeNoAudioStream,
			fmt.Sprintf("no audio stream in %s", input))
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, spiralerr.Wrap(err, spiralerr.ErrCodeMediaTool, "cannot create audio output directory")
	}

	outputPath := audioOutputPath(input, opts, time.Now())
	args := buildAudioArgs(input, outputPath, opts)

	targetDuration := probe.DurationSec
	if opts.MaxDurationSec > 0 && opts.MaxDurationSec < targetDuration {
		targetDuration = opts.MaxDurationSec
	}

	start := time.Now()
	if _, err := a.run.run(ctx, AudioTimeout(targetDuration), args...); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, spiralerr.Wrap(err, spiralerr.ErrCodeMediaTool, "ffmpeg reported success but output is missing")
	}

	a.log.Info("audio extracted",
		"input", input,
		"output", outputPath,
		"duration_sec", targetDuration,
		"size_bytes", info.Size(),
		"elapsed_ms", elapsed.Milliseconds())

	return &AudioResult{
		OutputPath:   outputPath,
		DurationSec:  targetDuration,
		FileSize:     info.Size(),
		SampleRate:   opts.SampleRate,
		Channels:     opts.Channels,
		ExtractionMs: elapsed.Milliseconds(),
	}, nil
}

func withAudioDefaults(opts AudioOptions) AudioOptions {
	if opts.Format == "" {
		opts.Format = AudioFormatWAV
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 16000
	}
	if opts.Channels == 0 {
		opts.Channels = 1
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	return opts
}

// audioOutputPath derives the output filename from the input basename,
// appending a timestamp suffix when the target already exists.
func audioOutputPath(input string, opts AudioOptions, now time.Time) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	path := filepath.Join(opts.OutputDir, base+"."+string(opts.Format))
	if _, err := os.Stat(path); err == nil {
		path = filepath.Join(opts.OutputDir,
			fmt.Sprintf("%s_%s.%s", base, now.Format("20060102T150405"), opts.Format))
	}
	return path
}

// buildAudioArgs assembles the ffmpeg argument vector for an extraction.
func buildAudioArgs(input, output string, opts AudioOptions) []string {
	args := []string{"-y", "-i", input, "-vn"}

	if opts.MaxDurationSec > 0 && !opts.KeepOriginalDuration {
		args = append(args, "-t", fmt.Sprintf("%.3f", opts.MaxDurationSec))
	}

	args = append(args,
		"-ar", fmt.Sprintf("%d", opts.SampleRate),
		"-ac", fmt.Sprintf("%d", opts.Channels))

	var filters []string
	if opts.Denoise {
		filters = append(filters, "afftdn=nf=-25")
	}
	if opts.Normalize {
		filters = append(filters, "loudnorm=I=-16:TP=-1.5:LRA=11")
	}
	if len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}

	switch opts.Format {
	case AudioFormatWAV:
		args = append(args, "-c:a", "pcm_s16le")
	case AudioFormatMP3:
		args = append(args, "-c:a", "libmp3lame")
		if opts.Bitrate != "" {
			args = append(args, "-b:a", opts.Bitrate)
		}
	case AudioFormatFLAC:
		args = append(args, "-c:a", "flac")
	case AudioFormatM4A:
		args = append(args, "-c:a", "aac")
		if opts.Bitrate != "" {
			args = append(args, "-b:a", opts.Bitrate)
		}
	}

	return append(args, output)
}
