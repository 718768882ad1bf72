package channel

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
	"github.com/spiralmem/spiralmem/internal/media"
	"github.com/spiralmem/spiralmem/internal/pipeline"
	"github.com/spiralmem/spiralmem/internal/platform"
	"github.com/spiralmem/spiralmem/internal/store"
	"github.com/spiralmem/spiralmem/internal/transcribe"
)

func video(id, title string, durationSec float64, views int64, date string) platform.ChannelVideo {
	return platform.ChannelVideo{
		VideoID:     id,
		URL:         "https://www.youtube.com/watch?v=" + id,
		Title:       title,
		DurationSec: durationSec,
		ViewCount:   views,
		UploadDate:  date,
	}
}

func TestFilterVideos(t *testing.T) {
	videos := []platform.ChannelVideo{
		video("aaaaaaaaaa1", "Go concurrency patterns", 1800, 100, "20240101"),
		video("aaaaaaaaaa2", "Shorts clip", 30, 5000, "20240201"),
		video("aaaaaaaaaa3", "Rust tutorial", 2400, 50, "20240301"),
		{VideoID: "aaaaaaaaaa4", Title: "Live show", DurationSec: 3600, IsLive: true},
	}

	tests := []struct {
		name string
		f    FilterOptions
		want []string
	}{
		{"default drops shorts and live", FilterOptions{},
			[]string{"aaaaaaaaaa1", "aaaaaaaaaa3"}},
		{"include shorts", FilterOptions{IncludeShorts: true},
			[]string{"aaaaaaaaaa1", "aaaaaaaaaa2", "aaaaaaaaaa3"}},
		{"include live", FilterOptions{IncludeLiveStreams: true},
			[]string{"aaaaaaaaaa1", "aaaaaaaaaa3", "aaaaaaaaaa4"}},
		{"min duration", FilterOptions{MinDurationSec: 2000},
			[]string{"aaaaaaaaaa3"}},
		{"max duration", FilterOptions{MaxDurationSec: 2000},
			[]string{"aaaaaaaaaa1"}},
		{"keyword include", FilterOptions{KeywordFilter: []string{"go"}},
			[]string{"aaaaaaaaaa1"}},
		{"keyword exclude", FilterOptions{ExcludeKeywords: []string{"rust"}},
			[]string{"aaaaaaaaaa1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterVideos(videos, tt.f)
			ids := make([]string, 0, len(got))
			for _, v := range got {
				ids = append(ids, v.VideoID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSortVideos(t *testing.T) {
	base := []platform.ChannelVideo{
		video("a", "first", 100, 10, "20240101"),
		video("b", "second", 300, 30, "20240301"),
		video("c", "third", 200, 20, "20240201"),
	}

	order := func(mode PriorityMode) []string {
		vs := append([]platform.ChannelVideo(nil), base...)
		SortVideos(vs, mode)
		ids := make([]string, len(vs))
		for i, v := range vs {
			ids[i] = v.VideoID
		}
		return ids
	}

	assert.Equal(t, []string{"b", "c", "a"}, order(PriorityNewestFirst))
	assert.Equal(t, []string{"a", "c", "b"}, order(PriorityOldestFirst))
	assert.Equal(t, []string{"b", "c", "a"}, order(PriorityMostPopular))
	assert.Equal(t, []string{"b", "c", "a"}, order(PriorityLongest))
}

// ---- orchestrator fixtures ----

type fakeLister struct {
	info   *platform.ChannelInfo
	videos []platform.ChannelVideo
	err    error
}

func (f *fakeLister) ListVideos(_ context.Context, _ string, maxVideos int) (*platform.ChannelInfo, []platform.ChannelVideo, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	vs := f.videos
	if maxVideos > 0 && len(vs) > maxVideos {
		vs = vs[:maxVideos]
	}
	return f.info, vs, nil
}

type fakeDownloader struct {
	mu    sync.Mutex
	path  string
	err   error
	calls int
}

func (f *fakeDownloader) Download(_ context.Context, _ string, _ platform.DownloadOptions) (*platform.DownloadResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &platform.DownloadResult{FilePath: f.path, SuggestedTitle: "downloaded"}, nil
}

func (f *fakeDownloader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stubProber struct{}

func (stubProber) Probe(context.Context, string) (*media.ProbeResult, error) {
	return &media.ProbeResult{
		DurationSec: 120,
		AudioStream: &media.AudioStreamInfo{Codec: "aac"},
	}, nil
}

type stubAudio struct{ path string }

func (s stubAudio) Extract(context.Context, string, media.AudioOptions) (*media.AudioResult, error) {
	return &media.AudioResult{OutputPath: s.path}, nil
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(context.Context, string, transcribe.Options) (*transcribe.Result, error) {
	return &transcribe.Result{Success: true, Transcript: &store.Transcript{
		FullText:     "channel video transcript",
		SegmentCount: 1,
		Segments: []store.TranscriptSegment{
			{Text: "channel video transcript", StartSec: 0, EndSec: 5},
		},
	}}, nil
}

func (stubTranscriber) Available() bool { return true }

func newTestOrchestrator(t *testing.T, lister *fakeLister, dl *fakeDownloader) (*Orchestrator, *store.Store) {
	t.Helper()
	st, err := store.Open("", store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	audioPath := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("riff"), 0o644))

	pipe := pipeline.New(pipeline.Deps{
		Store:       st,
		Prober:      stubProber{},
		Audio:       stubAudio{path: audioPath},
		Transcriber: stubTranscriber{},
	})
	return New(lister, dl, pipe, nil), st
}

func channelFixture(t *testing.T) (*fakeLister, *fakeDownloader) {
	t.Helper()
	videoPath := filepath.Join(t.TempDir(), "dl.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("video"), 0o644))

	lister := &fakeLister{
		info: &platform.ChannelInfo{ChannelID: "UCx", Name: "demo channel"},
		videos: []platform.ChannelVideo{
			video("aaaaaaaaaa1", "episode one", 600, 10, "20240101"),
			video("aaaaaaaaaa2", "episode two", 700, 20, "20240201"),
		},
	}
	return lister, &fakeDownloader{path: videoPath}
}

func processingOptions() Options {
	return Options{
		Processing: ProcessingOptions{
			BatchSize:            2,
			ConcurrentProcessing: 1,
			PipelineOptions: pipeline.Options{
				EnableTranscription: true,
				SkipValidation:      true,
				KeepAudioFiles:      true,
			},
		},
	}
}

func TestProcess_ChannelEndToEnd(t *testing.T) {
	lister, dl := channelFixture(t)
	o, st := newTestOrchestrator(t, lister, dl)

	var stages []string
	opts := processingOptions()
	opts.OnProgress = func(p Progress) { stages = append(stages, p.Stage) }

	report, err := o.Process(context.Background(), "https://www.youtube.com/@demo", opts)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Discovered)
	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, 2, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.Equal(t, "demo channel", report.ChannelInfo.Name)
	assert.Equal(t, 2, dl.callCount())

	for _, out := range report.Outcomes {
		assert.NotEmpty(t, out.MemoryID)
		assert.Empty(t, out.Error)
	}
	assert.Contains(t, stages, "discovered")
	assert.Contains(t, stages, "completed")

	memories, err := st.Memories.Search(context.Background(), "", store.MemoryFilter{})
	require.NoError(t, err)
	assert.Len(t, memories, 2)
}

func TestProcess_VideoTitleFeedsMemoryTitle(t *testing.T) {
	lister, dl := channelFixture(t)
	o, st := newTestOrchestrator(t, lister, dl)

	report, err := o.Process(context.Background(), "https://www.youtube.com/@demo", processingOptions())
	require.NoError(t, err)
	require.Equal(t, 2, report.Succeeded)

	titles := map[string]bool{}
	memories, err := st.Memories.Search(context.Background(), "", store.MemoryFilter{})
	require.NoError(t, err)
	for _, m := range memories {
		titles[m.Title] = true
	}
	assert.True(t, titles["episode one"])
	assert.True(t, titles["episode two"])
}

func TestProcess_DryRunSkipsDownloads(t *testing.T) {
	lister, dl := channelFixture(t)
	o, _ := newTestOrchestrator(t, lister, dl)

	opts := processingOptions()
	opts.DryRun = true

	report, err := o.Process(context.Background(), "https://www.youtube.com/@demo", opts)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Accepted)
	assert.Zero(t, report.Succeeded)
	assert.Len(t, report.Outcomes, 2)
	assert.Zero(t, dl.callCount())
}

func TestProcess_QuotaStopsDispatch(t *testing.T) {
	lister, dl := channelFixture(t)
	dl.err = spiralerr.New(spiralerr.ErrCodeQuotaExceeded, "too many requests")
	o, _ := newTestOrchestrator(t, lister, dl)

	opts := processingOptions()
	opts.Processing.BatchSize = 1

	report, err := o.Process(context.Background(), "https://www.youtube.com/@demo", opts)
	require.NoError(t, err)
	assert.True(t, report.QuotaExhausted)
	// second batch never dispatched
	assert.Len(t, report.Outcomes, 1)
	assert.Equal(t, 1, report.Failed)
	require.NotEmpty(t, report.Recommendations)
	assert.Contains(t, report.Recommendations[0], "quota")
}

func TestProcess_FailuresAreIsolated(t *testing.T) {
	lister, dl := channelFixture(t)
	o, _ := newTestOrchestrator(t, lister, dl)

	// First video has a bad URL shape, so download is never attempted for it.
	lister.videos[0].URL = "https://example.com/not-a-platform"

	report, err := o.Process(context.Background(), "https://www.youtube.com/@demo", processingOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.NotEmpty(t, report.Errors)
	require.NotEmpty(t, report.Recommendations)
}

func TestProgressTracker_CountsOutcomes(t *testing.T) {
	tr := &progressTracker{total: 3, start: time.Now()}
	tr.markSucceeded("vid1", "mem1")
	tr.markFailed("vid2")
	tr.markSucceeded("vid3", "mem3")

	p := tr.progress("completed", "")
	assert.Equal(t, 2, p.SuccessfullyProcessed)
	assert.Equal(t, 1, p.FailedProcessing)
	assert.InDelta(t, 100, p.OverallProgressPct, 0.001)

	assert.Equal(t, "mem1", tr.memoryID("vid1"))
	assert.Equal(t, "mem3", tr.memoryID("vid3"))
	assert.Empty(t, tr.memoryID("vid2"))
}

func TestProcess_ListerErrorPropagates(t *testing.T) {
	lister := &fakeLister{err: spiralerr.New(spiralerr.ErrCodeDownloadFailed, "channel not found")}
	o, _ := newTestOrchestrator(t, lister, &fakeDownloader{})

	_, err := o.Process(context.Background(), "https://www.youtube.com/@ghost", Options{})
	require.Error(t, err)
}
