package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// SamplingMethod selects how frame timestamps are chosen.
type SamplingMethod string

const (
	SampleUniform      SamplingMethod = "uniform"
	SampleKeyframes    SamplingMethod = "keyframes"
	SampleSceneChange  SamplingMethod = "scene-change"
	SampleQualityBased SamplingMethod = "quality-based"
)

// FrameOptions controls frame sampling.
type FrameOptions struct {
	Method         SamplingMethod
	FrameCount     int
	StartTimeSec   float64
	EndTimeSec     float64 // 0 means full duration
	IntervalSec    float64 // uniform only; derived from count when 0
	SceneThreshold float64 // scene-change only, default 0.4
	MaxWidth       int
	MaxHeight      int
	JPEGQuality    int // 1 (best) to 31, default 2
	OutputDir      string
}

// FrameInfo describes one extracted frame on disk.
type FrameInfo struct {
	Filename     string  `json:"filename"`
	Filepath     string  `json:"filepath"`
	TimestampSec float64 `json:"timestampSec"`
	FrameNumber  int     `json:"frameNumber"`
	IsKeyframe   bool    `json:"isKeyframe,omitempty"`
	SceneScore   float64 `json:"sceneScore,omitempty"`
	QualityScore float64 `json:"qualityScore,omitempty"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	FileSize     int64   `json:"fileSize"`
}

// FrameExtractor wraps ffmpeg/ffprobe for frame sampling.
type FrameExtractor struct {
	ffmpeg  *runner
	ffprobe *runner
	prober  *Prober
	log     *slog.Logger
}

func NewFrameExtractor(ffmpegPath, ffprobePath string, prober *Prober, log *slog.Logger) *FrameExtractor {
	if log == nil {
		log = slog.Default()
	}
	return &FrameExtractor{
		ffmpeg:  newRunner(ffmpegPath, "ffmpeg", log),
		ffprobe: newRunner(ffprobePath, "ffprobe", log),
		prober:  prober,
		log:     log,
	}
}

// Extract samples frames from the input according to the chosen method.
func (f *FrameExtractor) Extract(ctx context.Context, input string, opts FrameOptions) ([]FrameInfo, error) {
	opts = withFrameDefaults(opts)

	probe, err := f.prober.Probe(ctx, input)
	if err != nil {
		return nil, err
	}
	if probe.VideoStream == nil {
		return nil, spiralerr.New(spiralerr.ErrCodeMediaTool,
			fmt.Sprintf("no video stream in %s", input))
	}
	if opts.EndTimeSec <= 0 || opts.EndTimeSec > probe.DurationSec {
		opts.EndTimeSec = probe.DurationSec
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, spiralerr.Wrap(err, spiralerr.ErrCodeMediaTool, "cannot create frame output directory")
	}

	switch opts.Method {
	case SampleUniform:
		ts := uniformTimestamps(opts.StartTimeSec, opts.EndTimeSec, opts.IntervalSec, opts.FrameCount)
		return f.extractAt(ctx, input, ts, nil, opts)
	case SampleKeyframes:
		ts, err := f.keyframeTimestamps(ctx, input, opts)
		if err != nil {
			return nil, err
		}
		frames, err := f.extractAt(ctx, input, ts, nil, opts)
		for i := range frames {
			frames[i].IsKeyframe = true
		}
		return frames, err
	case SampleSceneChange:
		ts, scores, err := f.sceneChangeTimestamps(ctx, input, opts)
		if err != nil {
			return nil, err
		}
		return f.extractAt(ctx, input, ts, scores, opts)
	case SampleQualityBased:
		return f.extractBestQuality(ctx, input, opts)
	default:
		return nil, spiralerr.ValidationError(
			fmt.Sprintf("unknown sampling method %q", opts.Method), nil)
	}
}

func withFrameDefaults(opts FrameOptions) FrameOptions {
	if opts.Method == "" {
		opts.Method = SampleUniform
	}
	if opts.FrameCount <= 0 {
		opts.FrameCount = 10
	}
	if opts.SceneThreshold <= 0 {
		opts.SceneThreshold = 0.4
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 2
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	return opts
}

// uniformTimestamps spaces frameCount timestamps evenly across the window.
// An explicit interval overrides the derived spacing.
func uniformTimestamps(startSec, endSec, intervalSec float64, frameCount int) []float64 {
	if frameCount <= 0 || endSec <= startSec {
		return nil
	}
	interval := intervalSec
	if interval <= 0 {
		interval = (endSec - startSec) / float64(frameCount)
	}
	ts := make([]float64, 0, frameCount)
	for i := 0; i < frameCount; i++ {
		t := startSec + float64(i)*interval
		if t >= endSec {
			break
		}
		ts = append(ts, t)
	}
	return ts
}

// keyframeTimestamps lists keyframe positions within the window, first N.
func (f *FrameExtractor) keyframeTimestamps(ctx context.Context, input string, opts FrameOptions) ([]float64, error) {
	res, err := f.ffprobe.run(ctx, FrameTimeout,
		"-v", "quiet",
		"-select_streams", "v:0",
		"-show_entries", "packet=pts_time,flags",
		"-of", "csv=p=0",
		input)
	if err != nil {
		return nil, err
	}

	var ts []float64
	for _, line := range strings.Split(string(res.stdout), "\n") {
		fields := strings.Split(strings.TrimSpace(line), ",")
		if len(fields) < 2 || !strings.Contains(fields[1], "K") {
			continue
		}
		t := parseFloat(fields[0])
		if t < opts.StartTimeSec || t > opts.EndTimeSec {
			continue
		}
		ts = append(ts, t)
		if len(ts) >= opts.FrameCount {
			break
		}
	}
	return ts, nil
}

var showinfoPtsRe = regexp.MustCompile(`pts_time:([0-9.]+)`)

// sceneChangeTimestamps runs the scene-detect filter and parses showinfo
// log lines for frame timestamps above the threshold.
func (f *FrameExtractor) sceneChangeTimestamps(ctx context.Context, input string, opts FrameOptions) ([]float64, []float64, error) {
	res, err := f.ffmpeg.run(ctx, FrameTimeout,
		"-i", input,
		"-vf", fmt.Sprintf("select='gt(scene,%.3f)',showinfo", opts.SceneThreshold),
		"-f", "null", "-")
	if err != nil {
		return nil, nil, err
	}

	var ts, scores []float64
	for _, m := range showinfoPtsRe.FindAllStringSubmatch(string(res.stderr), -1) {
		t := parseFloat(m[1])
		if t < opts.StartTimeSec || t > opts.EndTimeSec {
			continue
		}
		ts = append(ts, t)
		// showinfo does not echo the scene score; record the threshold as
		// the floor the frame cleared.
		scores = append(scores, opts.SceneThreshold)
		if len(ts) >= opts.FrameCount {
			break
		}
	}
	return ts, scores, nil
}

// extractBestQuality samples 3N uniform frames and keeps the N largest
// files, using encoded size as a sharpness proxy.
func (f *FrameExtractor) extractBestQuality(ctx context.Context, input string, opts FrameOptions) ([]FrameInfo, error) {
	wide := opts
	wide.FrameCount = opts.FrameCount * 3
	wide.IntervalSec = 0
	ts := uniformTimestamps(wide.StartTimeSec, wide.EndTimeSec, 0, wide.FrameCount)

	frames, err := f.extractAt(ctx, input, ts, nil, wide)
	if err != nil {
		return nil, err
	}

	sort.Slice(frames, func(i, j int) bool { return frames[i].FileSize > frames[j].FileSize })
	if len(frames) > opts.FrameCount {
		for _, drop := range frames[opts.FrameCount:] {
			_ = os.Remove(drop.Filepath)
		}
		frames = frames[:opts.FrameCount]
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].TimestampSec < frames[j].TimestampSec })

	var maxSize int64
	for _, fr := range frames {
		if fr.FileSize > maxSize {
			maxSize = fr.FileSize
		}
	}
	for i := range frames {
		frames[i].FrameNumber = i
		if maxSize > 0 {
			frames[i].QualityScore = float64(frames[i].FileSize) / float64(maxSize)
		}
	}
	return frames, nil
}

// extractAt grabs one JPEG per timestamp.
func (f *FrameExtractor) extractAt(ctx context.Context, input string, timestamps, sceneScores []float64, opts FrameOptions) ([]FrameInfo, error) {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	frames := make([]FrameInfo, 0, len(timestamps))

	for i, ts := range timestamps {
		filename := fmt.Sprintf("%s_frame_%04d.jpg", base, i)
		outPath := filepath.Join(opts.OutputDir, filename)

		args := []string{"-y", "-ss", fmt.Sprintf("%.3f", ts), "-i", input, "-frames:v", "1"}
		if vf := scaleFilter(opts.MaxWidth, opts.MaxHeight); vf != "" {
			args = append(args, "-vf", vf)
		}
		args = append(args, "-q:v", fmt.Sprintf("%d", opts.JPEGQuality), outPath)

		if _, err := f.ffmpeg.run(ctx, FrameTimeout, args...); err != nil {
			return nil, err
		}

		info, err := os.Stat(outPath)
		if err != nil {
			return nil, spiralerr.Wrap(err, spiralerr.ErrCodeMediaTool, "frame output missing")
		}

		fr := FrameInfo{
			Filename:     filename,
			Filepath:     outPath,
			TimestampSec: ts,
			FrameNumber:  i,
			Width:        opts.MaxWidth,
			Height:       opts.MaxHeight,
			FileSize:     info.Size(),
		}
		if sceneScores != nil && i < len(sceneScores) {
			fr.SceneScore = sceneScores[i]
		}
		frames = append(frames, fr)
	}

	f.log.Debug("frames extracted", "input", input, "count", len(frames), "method", string(opts.Method))
	return frames, nil
}

// scaleFilter returns a scale expression that fits within the bounds while
// preserving aspect ratio, or "" when no bound is set.
func scaleFilter(maxWidth, maxHeight int) string {
	switch {
	case maxWidth > 0 && maxHeight > 0:
		return fmt.Sprintf("scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease", maxWidth, maxHeight)
	case maxWidth > 0:
		return fmt.Sprintf("scale='min(%d,iw)':-2", maxWidth)
	case maxHeight > 0:
		return fmt.Sprintf("scale=-2:'min(%d,ih)'", maxHeight)
	default:
		return ""
	}
}
