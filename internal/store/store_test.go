package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsureDefault_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Spaces.EnsureDefault(ctx)
	require.NoError(t, err)
	second, err := s.Spaces.EnsureDefault(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	spaces, err := s.Spaces.List(ctx)
	require.NoError(t, err)
	assert.Len(t, spaces, 1)
	assert.Equal(t, DefaultSpaceName, spaces[0].Name)
}

func TestCreateSpace_CaseInsensitiveDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Spaces.Create(ctx, "Work", "")
	require.NoError(t, err)

	_, err = s.Spaces.Create(ctx, "work", "")
	require.Error(t, err)
	assert.Equal(t, spiralerr.ErrCodeAlreadyExists, spiralerr.GetCode(err))
}

func TestDeleteSpace_CascadesToMemories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	space, err := s.Spaces.Create(ctx, "temp", "")
	require.NoError(t, err)

	mem, err := s.Memories.Create(ctx, CreateMemoryInput{
		SpaceID: space.ID, ContentType: ContentTypeText, Content: "hello",
	})
	require.NoError(t, err)

	require.NoError(t, s.Spaces.Delete(ctx, space.ID))

	_, err = s.Memories.Get(ctx, mem.ID)
	assert.Equal(t, spiralerr.ErrCodeNotFound, spiralerr.GetCode(err))
}

func TestCreateMemory_DefaultsSpace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mem, err := s.Memories.Create(ctx, CreateMemoryInput{
		ContentType: ContentTypeVideo,
		Title:       "talk.mp4",
		Source:      "/videos/talk.mp4",
	})
	require.NoError(t, err)

	def, err := s.Spaces.GetByName(ctx, DefaultSpaceName)
	require.NoError(t, err)
	assert.Equal(t, def.ID, mem.SpaceID)
	assert.False(t, mem.CreatedAt.IsZero())
}

func TestSearchMemories_EmptyQueryReturnsAllNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		_, err := s.Memories.Create(ctx, CreateMemoryInput{
			ContentType: ContentTypeText, Title: title, Content: title + " content",
		})
		require.NoError(t, err)
	}

	all, err := s.Memories.Search(ctx, "", MemoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// created_at desc; ties broken consistently is fine, just confirm count
	// and that substring filtering works.
	hits, err := s.Memories.Search(ctx, "SECOND", MemoryFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "second", hits[0].Title)
}

func TestSearchMemories_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	space, err := s.Spaces.Create(ctx, "videos", "")
	require.NoError(t, err)

	_, err = s.Memories.Create(ctx, CreateMemoryInput{
		SpaceID: space.ID, ContentType: ContentTypeVideo, Content: "video about go",
	})
	require.NoError(t, err)
	_, err = s.Memories.Create(ctx, CreateMemoryInput{
		ContentType: ContentTypeText, Content: "text about go",
	})
	require.NoError(t, err)

	hits, err := s.Memories.Search(ctx, "go", MemoryFilter{SpaceID: space.ID})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, ContentTypeVideo, hits[0].ContentType)

	hits, err = s.Memories.Search(ctx, "go", MemoryFilter{ContentTypes: []ContentType{ContentTypeText}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, ContentTypeText, hits[0].ContentType)
}

func TestCreateChunk_RejectsDuplicateOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mem, err := s.Memories.Create(ctx, CreateMemoryInput{ContentType: ContentTypeVideo})
	require.NoError(t, err)

	_, err = s.Chunks.Create(ctx, CreateChunkInput{MemoryID: mem.ID, ChunkText: "a", ChunkOrder: 0})
	require.NoError(t, err)

	_, err = s.Chunks.Create(ctx, CreateChunkInput{MemoryID: mem.ID, ChunkText: "b", ChunkOrder: 0})
	require.Error(t, err)
	assert.Equal(t, spiralerr.ErrCodeAlreadyExists, spiralerr.GetCode(err))
}

func TestFindChunksByMemoryIDs_Ordered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mem, err := s.Memories.Create(ctx, CreateMemoryInput{ContentType: ContentTypeVideo})
	require.NoError(t, err)

	starts := []int64{0, 4000, 8000}
	for i, start := range starts {
		startMs, endMs := start, start+4000
		_, err := s.Chunks.Create(ctx, CreateChunkInput{
			MemoryID: mem.ID, ChunkText: "chunk", ChunkOrder: i,
			StartOffsetMs: &startMs, EndOffsetMs: &endMs,
		})
		require.NoError(t, err)
	}

	chunks, err := s.Chunks.FindByMemoryIDs(ctx, []string{mem.ID})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkOrder)
		require.NotNil(t, c.StartOffsetMs)
		assert.Equal(t, starts[i], *c.StartOffsetMs)
	}
}

func TestUpsertEmbedding_LatestVectorWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Vectors.Upsert(ctx, "chunk-1", EmbeddingContentChunk, "test-model", []float32{1, 0, 0})
	require.NoError(t, err)
	_, err = s.Vectors.Upsert(ctx, "chunk-1", EmbeddingContentChunk, "test-model", []float32{0, 1, 0})
	require.NoError(t, err)

	all, err := s.Vectors.ListByModel(ctx, "test-model")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []float32{0, 1, 0}, all[0].Vector)
	assert.Equal(t, 3, all[0].Dimensions)
}

func TestUpsertEmbedding_RejectsNonFinite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	nan := float32(0)
	nan = nan / nan
	_, err := s.Vectors.Upsert(ctx, "chunk-1", EmbeddingContentChunk, "m", []float32{nan})
	assert.Error(t, err)
}

func TestEmbeddingStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Vectors.Upsert(ctx, "c1", EmbeddingContentChunk, "m1", []float32{1, 2, 3, 4})
	require.NoError(t, err)
	_, err = s.Vectors.Upsert(ctx, "c2", EmbeddingContentChunk, "m1", []float32{1, 2, 3, 4})
	require.NoError(t, err)
	_, err = s.Vectors.Upsert(ctx, "mem1", EmbeddingContentMemory, "m2", []float32{1, 2})
	require.NoError(t, err)

	stats, err := s.Vectors.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEmbeddings)
	assert.Equal(t, 2, stats.ByContentType["chunk"])
	assert.Equal(t, 1, stats.ByContentType["memory"])
	assert.Equal(t, 2, stats.ByModel["m1"])
	assert.InDelta(t, (4.0*2+2.0)/3.0, stats.AvgDimensions, 1e-9)
}

func TestEmbeddingStats_EmptyStore(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.Vectors.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalEmbeddings)
	assert.Zero(t, stats.AvgDimensions)
}

func TestJobStatus_ProgressMonotonicAndTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, err := s.Jobs.Create(ctx, "/v/a.mp4", SourceTypeLocal, "/v/a.mp4")
	require.NoError(t, err)

	require.NoError(t, s.Jobs.UpdateStatus(ctx, job.ID, JobStatusProcessing, 40, ""))
	// A lower progress value must not move the job backwards.
	require.NoError(t, s.Jobs.UpdateStatus(ctx, job.ID, JobStatusProcessing, 20, ""))

	got, err := s.Jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, s.Jobs.UpdateStatus(ctx, job.ID, JobStatusCompleted, 100, ""))
	got, err = s.Jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	// Terminal statuses are permanent.
	err = s.Jobs.UpdateStatus(ctx, job.ID, JobStatusFailed, 100, "late")
	assert.Error(t, err)
}

func TestJobSteps_UpsertAndTiming(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, err := s.Jobs.Create(ctx, "src", SourceTypeLocal, "/v/a.mp4")
	require.NoError(t, err)

	require.NoError(t, s.Jobs.UpdateStep(ctx, job.ID, "validation", StepStatusRunning, nil, ""))
	require.NoError(t, s.Jobs.UpdateStep(ctx, job.ID, "validation", StepStatusCompleted, map[string]any{"size": 123.0}, ""))
	require.NoError(t, s.Jobs.UpdateStep(ctx, job.ID, "transcription", StepStatusFailed, nil, "whisper missing"))

	got, err := s.Jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, got.Steps, 2)

	validation := got.Steps[0]
	assert.Equal(t, "validation", validation.Name)
	assert.Equal(t, StepStatusCompleted, validation.Status)
	require.NotNil(t, validation.StartedAt)
	require.NotNil(t, validation.EndedAt)

	transcription := got.Steps[1]
	assert.Equal(t, StepStatusFailed, transcription.Status)
	assert.Equal(t, "whisper missing", transcription.Error)
}

func TestListJobsByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.Jobs.Create(ctx, "a", SourceTypeLocal, "a")
	require.NoError(t, err)
	_, err = s.Jobs.Create(ctx, "b", SourceTypeLocal, "b")
	require.NoError(t, err)
	require.NoError(t, s.Jobs.UpdateStatus(ctx, a.ID, JobStatusProcessing, 10, ""))

	pending, err := s.Jobs.ListByStatus(ctx, JobStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestProcessedContent_OnePerJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mem, err := s.Memories.Create(ctx, CreateMemoryInput{ContentType: ContentTypeVideo})
	require.NoError(t, err)
	job, err := s.Jobs.Create(ctx, "src", SourceTypeLocal, "v.mp4")
	require.NoError(t, err)

	transcript := &Transcript{
		Language: "en", DurationSec: 5, SegmentCount: 1, FullText: "hello world",
		Segments: []TranscriptSegment{{Text: "hello world", StartSec: 0, EndSec: 5}},
	}
	_, err = s.Content.Create(ctx, &ProcessedContent{
		JobID: job.ID, MemoryID: mem.ID, Transcript: transcript, ChunkCount: 1,
	})
	require.NoError(t, err)

	_, err = s.Content.Create(ctx, &ProcessedContent{JobID: job.ID, MemoryID: mem.ID})
	require.Error(t, err)
	assert.Equal(t, spiralerr.ErrCodeAlreadyExists, spiralerr.GetCode(err))

	got, err := s.Content.GetByJobID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Transcript)
	assert.Equal(t, "hello world", got.Transcript.FullText)

	hits, err := s.Content.SearchTranscripts(ctx, "HELLO", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestPlatformVideo_UniqueUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Platform.UpsertVideo(ctx, &PlatformVideo{
		Platform: PlatformYouTube, PlatformVideoID: "dQw4w9WgXcQ",
		VideoURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	})
	require.NoError(t, err)

	_, err = s.Platform.UpsertVideo(ctx, &PlatformVideo{
		Platform: PlatformYouTube, PlatformVideoID: "dQw4w9WgXcQ",
		VideoURL:    "https://youtu.be/dQw4w9WgXcQ",
		DurationSec: 212,
	})
	require.NoError(t, err)

	got, err := s.Platform.GetVideo(ctx, PlatformYouTube, "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", got.VideoURL)
	assert.InDelta(t, 212, got.DurationSec, 1e-9)
}

func TestTags_CaseInsensitiveEnsure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.Tags.Ensure(ctx, "Golang")
	require.NoError(t, err)
	b, err := s.Tags.Ensure(ctx, "golang")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	mem, err := s.Memories.Create(ctx, CreateMemoryInput{ContentType: ContentTypeText})
	require.NoError(t, err)
	require.NoError(t, s.Tags.Attach(ctx, mem.ID, a.ID))
	require.NoError(t, s.Tags.Attach(ctx, mem.ID, a.ID)) // idempotent

	tags, err := s.Tags.ListForMemory(ctx, mem.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "Golang", tags[0].Name)

	require.NoError(t, s.Tags.Delete(ctx, a.ID))
	tags, err = s.Tags.ListForMemory(ctx, mem.ID)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestVectorCodecRoundTrip(t *testing.T) {
	in := []float32{0.5, -1.25, 3.75, 0}
	out := decodeVector(encodeVector(in))
	assert.Equal(t, in, out)
}
