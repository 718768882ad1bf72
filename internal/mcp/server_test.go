package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
	"github.com/spiralmem/spiralmem/internal/media"
	"github.com/spiralmem/spiralmem/internal/pipeline"
	"github.com/spiralmem/spiralmem/internal/search"
	"github.com/spiralmem/spiralmem/internal/store"
	"github.com/spiralmem/spiralmem/internal/transcribe"
)

type stubEmbedder struct{ available bool }

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (s stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (s stubEmbedder) Dimensions() int                { return 3 }
func (s stubEmbedder) ModelName() string              { return "stub-model" }
func (s stubEmbedder) Available(context.Context) bool { return s.available }
func (s stubEmbedder) Close() error                   { return nil }

type stubProber struct{}

func (stubProber) Probe(context.Context, string) (*media.ProbeResult, error) {
	return &media.ProbeResult{
		DurationSec: 90,
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
		FullText:     "we talked about goroutine scheduling today",
		SegmentCount: 1,
		Segments: []store.TranscriptSegment{
			{Text: "we talked about goroutine scheduling today", StartSec: 0, EndSec: 6},
		},
	}}, nil
}

func (stubTranscriber) Available() bool { return true }

func newTestServer(t *testing.T) *Server {
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
	engine := search.NewEngine(st, stubEmbedder{}, search.DefaultConfig(), nil)

	s, err := NewServer(Deps{Store: st, Engine: engine, Pipeline: pipe})
	require.NoError(t, err)
	return s
}

func addTestVideo(t *testing.T, s *Server, title string) AddVideoOutput {
	t.Helper()
	videoPath := filepath.Join(t.TempDir(), "talk.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("video bytes"), 0o644))

	_, out, err := s.addVideoHandler(context.Background(), nil, AddVideoInput{
		Path:  videoPath,
		Title: title,
	})
	require.NoError(t, err)
	return out
}

func TestNewServer_RequiresDeps(t *testing.T) {
	_, err := NewServer(Deps{})
	assert.Error(t, err)

	st, err := store.Open("", store.Options{})
	require.NoError(t, err)
	defer st.Close()

	_, err = NewServer(Deps{Store: st})
	assert.Error(t, err)
}

func TestListTools(t *testing.T) {
	s := newTestServer(t)
	tools := s.ListTools()
	require.Len(t, tools, 3)
	assert.Equal(t, "search_memories", tools[0].Name)
	assert.Equal(t, "add_video", tools[1].Name)
	assert.Equal(t, "get_stats", tools[2].Name)
}

func TestAddVideoHandler_IngestsLocalFile(t *testing.T) {
	s := newTestServer(t)
	out := addTestVideo(t, s, "scheduling talk")

	assert.NotEmpty(t, out.MemoryID)
	assert.NotEmpty(t, out.JobID)
	assert.Equal(t, "scheduling talk", out.Title)
	assert.True(t, out.TranscriptAvailable)
	assert.Greater(t, out.ChunkCount, 0)
}

func TestAddVideoHandler_RequiresPath(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.addVideoHandler(context.Background(), nil, AddVideoInput{})
	require.Error(t, err)

	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeInvalidParams, pe.Code)
}

func TestAddVideoHandler_URLWithoutDownloader(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.addVideoHandler(context.Background(), nil, AddVideoInput{
		Path: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	})
	require.Error(t, err)

	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeInvalidParams, pe.Code)
}

func TestSearchMemoriesHandler_FindsTranscript(t *testing.T) {
	s := newTestServer(t)
	added := addTestVideo(t, s, "scheduling talk")

	_, out, err := s.searchMemoriesHandler(context.Background(), nil, SearchMemoriesInput{
		Query: "goroutine scheduling",
		Mode:  "keyword",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)

	top := out.Results[0]
	assert.Equal(t, added.MemoryID, top.MemoryID)
	assert.Equal(t, "scheduling talk", top.Title)
	assert.Contains(t, top.Snippet, "goroutine scheduling")
	assert.Greater(t, top.Score, 0.0)
}

func TestSearchMemoriesHandler_HybridDegradesWithoutEmbedder(t *testing.T) {
	s := newTestServer(t)
	addTestVideo(t, s, "scheduling talk")

	_, out, err := s.searchMemoriesHandler(context.Background(), nil, SearchMemoriesInput{
		Query: "goroutine",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Results)
}

func TestSearchMemoriesHandler_RejectsEmptyQuery(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.searchMemoriesHandler(context.Background(), nil, SearchMemoriesInput{Query: "   "})
	require.Error(t, err)

	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeInvalidParams, pe.Code)
}

func TestSearchMemoriesHandler_RejectsUnknownMode(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.searchMemoriesHandler(context.Background(), nil, SearchMemoriesInput{
		Query: "anything",
		Mode:  "fuzzy",
	})
	require.Error(t, err)
}

func TestSearchMemoriesHandler_SemanticNeedsEmbedder(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.searchMemoriesHandler(context.Background(), nil, SearchMemoriesInput{
		Query: "anything",
		Mode:  "semantic",
	})
	require.Error(t, err)

	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeEmbedderUnavailable, pe.Code)
}

func TestGetStatsHandler(t *testing.T) {
	s := newTestServer(t)
	addTestVideo(t, s, "scheduling talk")

	_, out, err := s.getStatsHandler(context.Background(), nil, GetStatsInput{})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Memories)
	assert.Equal(t, 1, out.MemoriesByType[string(store.ContentTypeVideo)])
	assert.Greater(t, out.Chunks, 0)
	assert.GreaterOrEqual(t, out.Spaces, 1)
	require.NotNil(t, out.Embeddings)
	assert.Equal(t, "unavailable", out.Embeddings.Status)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", spiralerr.NotFound("memory", "m1"), ErrCodeNotFound},
		{"invalid input", spiralerr.New(spiralerr.ErrCodeInvalidInput, "bad"), ErrCodeInvalidParams},
		{"embedding failed", spiralerr.New(spiralerr.ErrCodeEmbeddingFailed, "down"), ErrCodeEmbedderUnavailable},
		{"transcription", spiralerr.New(spiralerr.ErrCodeTranscription, "whisper"), ErrCodePipelineFailed},
		{"plain", os.ErrPermission, ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := MapError(tt.err)
			require.NotNil(t, pe)
			assert.Equal(t, tt.want, pe.Code)
		})
	}

	assert.Nil(t, MapError(nil))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0, 10, 1, 50))
	assert.Equal(t, 25, clampLimit(25, 10, 1, 50))
	assert.Equal(t, 50, clampLimit(90, 10, 1, 50))
}
