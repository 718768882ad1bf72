package media

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateQuality(t *testing.T) {
	tests := []struct {
		name    string
		width   int
		height  int
		fps     float64
		bitrate int64
		want    string
	}{
		{"4k high bitrate", 3840, 2160, 30, 30_000_000, QualityVeryHigh},
		{"4k starved", 3840, 2160, 30, 10_000_000, QualityHigh},
		{"1080p high bitrate", 1920, 1080, 30, 6_000_000, QualityHigh},
		{"1080p starved", 1920, 1080, 30, 2_000_000, QualityMedium},
		{"720p decent", 1280, 720, 30, 1_500_000, QualityMedium},
		{"720p starved", 1280, 720, 30, 500_000, QualityLow},
		{"480p decent", 854, 480, 30, 400_000, QualityMedium},
		{"480p starved", 854, 480, 30, 100_000, QualityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &ProbeResult{
				Bitrate: tt.bitrate,
				VideoStream: &VideoStreamInfo{
					Width: tt.width, Height: tt.height, FPS: tt.fps,
				},
			}
			assert.Equal(t, tt.want, estimateQuality(p))
		})
	}
}

func TestEstimateQuality_AudioOnly(t *testing.T) {
	p := &ProbeResult{AudioStream: &AudioStreamInfo{Codec: "mp3"}}
	assert.Equal(t, QualityLow, estimateQuality(p))
}

func TestParseFfprobeOutput(t *testing.T) {
	raw := `{
		"streams": [
			{"codec_name":"h264","codec_type":"video","width":1920,"height":1080,"r_frame_rate":"30000/1001"},
			{"codec_name":"aac","codec_type":"audio","sample_rate":"44100","channels":2,"bit_rate":"128000"}
		],
		"format": {
			"format_name":"mov,mp4,m4a,3gp,3g2,mj2",
			"duration":"212.480000",
			"size":"104857600",
			"bit_rate":"3947580",
			"tags":{"title":"Talk","creation_time":"2024-01-01T00:00:00Z"}
		},
		"chapters":[{"start_time":"0.0","end_time":"60.0","tags":{"title":"Intro"}}]
	}`

	var out ffprobeOutput
	require.NoError(t, json.Unmarshal([]byte(raw), &out))

	assert.InDelta(t, 212.48, parseFloat(out.Format.Duration), 1e-9)
	assert.Equal(t, int64(3947580), parseInt(out.Format.BitRate))
	assert.InDelta(t, 29.97, parseFrameRate(out.Streams[0].RFrameRate), 0.01)
	assert.Equal(t, 2, out.Streams[1].Channels)

	tags := liftTags(out.Format.Tags)
	assert.Equal(t, "Talk", tags.Title)
	assert.Equal(t, "2024-01-01T00:00:00Z", tags.CreationTime)
}

func TestParseFrameRate(t *testing.T) {
	assert.Equal(t, 30.0, parseFrameRate("30/1"))
	assert.Equal(t, 0.0, parseFrameRate("0/0"))
	assert.Equal(t, 0.0, parseFrameRate(""))
	assert.Equal(t, 25.0, parseFrameRate("25"))
}

func TestAudioTimeout(t *testing.T) {
	assert.Equal(t, 5*time.Minute, AudioTimeout(10))
	assert.Equal(t, 5*time.Minute, AudioTimeout(149))
	assert.Equal(t, 20*time.Minute, AudioTimeout(600))
}

func TestUniformTimestamps(t *testing.T) {
	ts := uniformTimestamps(0, 100, 0, 5)
	require.Len(t, ts, 5)
	assert.Equal(t, []float64{0, 20, 40, 60, 80}, ts)

	// explicit interval
	ts = uniformTimestamps(10, 100, 5, 4)
	assert.Equal(t, []float64{10, 15, 20, 25}, ts)

	// interval runs past the window
	ts = uniformTimestamps(0, 12, 10, 5)
	assert.Equal(t, []float64{0, 10}, ts)

	assert.Nil(t, uniformTimestamps(50, 50, 0, 5))
	assert.Nil(t, uniformTimestamps(0, 100, 0, 0))
}

func TestBuildAudioArgs_TranscriptionOptimal(t *testing.T) {
	opts := TranscriptionOptimalOptions("/tmp/audio")
	args := buildAudioArgs("/videos/in.mp4", "/tmp/audio/in.wav", opts)

	joined := ""
	for _, a := range args {
		joined += a + " "
	}
	assert.Contains(t, args, "-vn")
	assert.Contains(t, joined, "-ar 16000")
	assert.Contains(t, joined, "-ac 1")
	assert.Contains(t, joined, "afftdn")
	assert.Contains(t, joined, "loudnorm")
	assert.Contains(t, joined, "pcm_s16le")
	assert.Equal(t, "/tmp/audio/in.wav", args[len(args)-1])
}

func TestBuildAudioArgs_FastSkipsFilters(t *testing.T) {
	args := buildAudioArgs("in.mp4", "out.wav", FastOptions("."))
	assert.NotContains(t, args, "-af")
}

func TestBuildAudioArgs_MaxDuration(t *testing.T) {
	opts := FastOptions(".")
	opts.MaxDurationSec = 90
	args := buildAudioArgs("in.mp4", "out.wav", opts)
	assert.Contains(t, args, "-t")

	opts.KeepOriginalDuration = true
	args = buildAudioArgs("in.mp4", "out.wav", opts)
	assert.NotContains(t, args, "-t")
}

func TestAudioOutputPath_CollisionSuffix(t *testing.T) {
	dir := t.TempDir()
	opts := AudioOptions{Format: AudioFormatWAV, OutputDir: dir}
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	first := audioOutputPath("/videos/talk.mp4", opts, now)
	assert.Equal(t, filepath.Join(dir, "talk.wav"), first)

	require.NoError(t, os.WriteFile(first, []byte("x"), 0o644))
	second := audioOutputPath("/videos/talk.mp4", opts, now)
	assert.Equal(t, filepath.Join(dir, "talk_20260314T150926.wav"), second)
}

func TestThumbnailTimestamp(t *testing.T) {
	// start: 10s or 10%, whichever is smaller
	assert.Equal(t, 10.0, thumbnailTimestamp(ThumbnailOptions{Position: ThumbStart}, 600))
	assert.Equal(t, 3.0, thumbnailTimestamp(ThumbnailOptions{Position: ThumbStart}, 30))

	assert.Equal(t, 150.0, thumbnailTimestamp(ThumbnailOptions{Position: ThumbMiddle}, 300))

	assert.Equal(t, 290.0, thumbnailTimestamp(ThumbnailOptions{Position: ThumbEnd}, 300))
	assert.Equal(t, 0.0, thumbnailTimestamp(ThumbnailOptions{Position: ThumbEnd}, 5))

	// explicit timestamp wins and is clamped
	ts := 500.0
	assert.Equal(t, 300.0, thumbnailTimestamp(ThumbnailOptions{TimestampSec: &ts, Position: ThumbStart}, 300))
}

func TestScaleFilter(t *testing.T) {
	assert.Empty(t, scaleFilter(0, 0))
	assert.Contains(t, scaleFilter(640, 480), "force_original_aspect_ratio")
	assert.Contains(t, scaleFilter(640, 0), "-2")
	assert.Contains(t, scaleFilter(0, 480), "-2")
}

func TestStderrTail(t *testing.T) {
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, stderrTail(long), stderrTailBytes)
	assert.Equal(t, "short", stderrTail([]byte("  short\n")))
}
