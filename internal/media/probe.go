package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// Quality tiers assigned by resolution and bits-per-pixel.
const (
	QualityLow      = "low"
	QualityMedium   = "medium"
	QualityHigh     = "high"
	QualityVeryHigh = "very_high"
)

// VideoStreamInfo describes the primary video stream.
type VideoStreamInfo struct {
	Codec  string  `json:"codec"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
}

// AudioStreamInfo describes the primary audio stream, if any.
type AudioStreamInfo struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
	Bitrate    int64  `json:"bitrate"`
}

// Chapter is a named span within the container.
type Chapter struct {
	Title    string  `json:"title"`
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
}

// ContainerTags are the common metadata tags lifted from the format block.
type ContainerTags struct {
	CreationTime string `json:"creationTime,omitempty"`
	Title        string `json:"title,omitempty"`
	Artist       string `json:"artist,omitempty"`
	Album        string `json:"album,omitempty"`
	Comment      string `json:"comment,omitempty"`
}

// ProbeResult is the typed outcome of probing a media file.
type ProbeResult struct {
	DurationSec      float64          `json:"durationSec"`
	Format           string           `json:"format"`
	Size             int64            `json:"size"`
	Bitrate          int64            `json:"bitrate"`
	VideoStream      *VideoStreamInfo `json:"videoStream,omitempty"`
	AudioStream      *AudioStreamInfo `json:"audioStream,omitempty"`
	Chapters         []Chapter        `json:"chapters,omitempty"`
	Tags             ContainerTags    `json:"tags"`
	EstimatedQuality string           `json:"estimatedQuality"`
}

// HasAudio reports whether the file carries at least one audio stream.
func (p *ProbeResult) HasAudio() bool { return p.AudioStream != nil }

// ffprobe JSON shapes. Numeric fields arrive as strings.
type ffprobeOutput struct {
	Streams  []ffprobeStream  `json:"streams"`
	Format   ffprobeFormat    `json:"format"`
	Chapters []ffprobeChapter `json:"chapters"`
}

type ffprobeStream struct {
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	RFrameRate string `json:"r_frame_rate,omitempty"`
	SampleRate string `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	BitRate    string `json:"bit_rate,omitempty"`
}

type ffprobeFormat struct {
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags,omitempty"`
}

type ffprobeChapter struct {
	StartTime string            `json:"start_time"`
	EndTime   string            `json:"end_time"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Prober wraps ffprobe.
type Prober struct {
	run *runner
}

// NewProber builds a prober around the given ffprobe path (or "ffprobe" on
// PATH when empty).
func NewProber(ffprobePath string, log *slog.Logger) *Prober {
	return &Prober{run: newRunner(ffprobePath, "ffprobe", log)}
}

// Probe inspects a media file and returns its typed metadata.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, spiralerr.New(spiralerr.ErrCodeFileNotFound,
			fmt.Sprintf("media file not found: %s", path))
	}

	res, err := p.run.run(ctx, ProbeTimeout,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-show_chapters",
		path)
	if err != nil {
		return nil, err
	}

	var out ffprobeOutput
	if err := json.Unmarshal(res.stdout, &out); err != nil {
		return nil, spiralerr.Wrap(err, spiralerr.ErrCodeProbeFailed, "ffprobe produced unparseable output")
	}

	result := &ProbeResult{
		Format: out.Format.FormatName,
		Size:   info.Size(),
	}
	result.DurationSec = parseFloat(out.Format.Duration)
	result.Bitrate = parseInt(out.Format.BitRate)
	result.Tags = liftTags(out.Format.Tags)

	for _, ch := range out.Chapters {
		result.Chapters = append(result.Chapters, Chapter{
			Title:    ch.Tags["title"],
			StartSec: parseFloat(ch.StartTime),
			EndSec:   parseFloat(ch.EndTime),
		})
	}

	for i := range out.Streams {
		s := &out.Streams[i]
		switch s.CodecType {
		case "video":
			if result.VideoStream == nil {
				result.VideoStream = &VideoStreamInfo{
					Codec:  s.CodecName,
					Width:  s.Width,
					Height: s.Height,
					FPS:    parseFrameRate(s.RFrameRate),
				}
			}
		case "audio":
			if result.AudioStream == nil {
				result.AudioStream = &AudioStreamInfo{
					Codec:      s.CodecName,
					SampleRate: int(parseInt(s.SampleRate)),
					Channels:   s.Channels,
					Bitrate:    parseInt(s.BitRate),
				}
			}
		}
	}

	if result.VideoStream == nil && result.AudioStream == nil {
		return nil, spiralerr.New(spiralerr.ErrCodeProbeFailed,
			fmt.Sprintf("no decodable streams in %s", path))
	}

	result.EstimatedQuality = estimateQuality(result)
	return result, nil
}

// estimateQuality classifies the video by resolution and bits per pixel.
// Audio-only files rate as low.
func estimateQuality(p *ProbeResult) string {
	v := p.VideoStream
	if v == nil || v.Width == 0 || v.Height == 0 {
		return QualityLow
	}

	fps := v.FPS
	if fps <= 0 {
		fps = 30
	}
	pixelsPerSec := float64(v.Width) * float64(v.Height) * fps
	var bpp float64
	if pixelsPerSec > 0 {
		bpp = float64(p.Bitrate) / pixelsPerSec
	}

	switch {
	case v.Height >= 2160:
		if bpp > 0.1 {
			return QualityVeryHigh
		}
		return QualityHigh
	case v.Height >= 1080:
		if bpp > 0.05 {
			return QualityHigh
		}
		return QualityMedium
	case v.Height >= 720:
		if bpp > 0.03 {
			return QualityMedium
		}
		return QualityLow
	default:
		if bpp > 0.02 {
			return QualityMedium
		}
		return QualityLow
	}
}

func liftTags(tags map[string]string) ContainerTags {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := tags[k]; ok {
				return v
			}
		}
		return ""
	}
	return ContainerTags{
		CreationTime: get("creation_time"),
		Title:        get("title", "TITLE"),
		Artist:       get("artist", "ARTIST"),
		Album:        get("album", "ALBUM"),
		Comment:      get("comment", "COMMENT"),
	}
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

// parseFrameRate converts ffprobe's "30000/1001" style rational.
func parseFrameRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}
