package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spiralmem/spiralmem/internal/chunk"
	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
	"github.com/spiralmem/spiralmem/internal/media"
	"github.com/spiralmem/spiralmem/internal/store"
	"github.com/spiralmem/spiralmem/internal/transcribe"
)

// videoExtensions are the containers accepted by validation.
var videoExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true,
	".webm": true, ".m4v": true, ".flv": true, ".wmv": true,
}

// Process runs the full state machine for one local video file.
// Validation, metadata, audio extraction, and storage failures fail the
// job; transcription, frame sampling, and content processing failures are
// recorded as warnings and the job completes with partial output.
func (p *Pipeline) Process(ctx context.Context, videoPath string, opts Options) (*Result, error) {
	start := time.Now()
	sourceType := opts.SourceType
	if sourceType == "" {
		sourceType = store.SourceTypeLocal
	}

	job, err := p.store.Jobs.Create(ctx, videoPath, sourceType, videoPath)
	if err != nil {
		return nil, err
	}
	result := &Result{JobID: job.ID}
	if err := p.store.Jobs.UpdateStatus(ctx, job.ID, store.JobStatusProcessing, 0, ""); err != nil {
		return nil, err
	}

	// validation
	if opts.SkipValidation {
		p.recordStep(ctx, job.ID, StepValidation, store.StepStatusCompleted,
			map[string]any{"skipped": true}, "")
	} else if err := p.validate(videoPath); err != nil {
		return result, p.failJob(ctx, job.ID, StepValidation, progressValidation, err)
	} else {
		p.recordStep(ctx, job.ID, StepValidation, store.StepStatusCompleted, nil, "")
	}
	p.advance(ctx, job.ID, progressValidation)

	// metadata
	probe, err := p.prober.Probe(ctx, videoPath)
	if err != nil {
		return result, p.failJob(ctx, job.ID, StepMetadata, progressMetadata, err)
	}
	p.recordStep(ctx, job.ID, StepMetadata, store.StepStatusCompleted, map[string]any{
		"duration_sec": probe.DurationSec,
		"format":       probe.Format,
		"quality":      probe.EstimatedQuality,
	}, "")
	_ = p.store.Jobs.SetMetadata(ctx, job.ID, map[string]any{
		"duration_sec": probe.DurationSec,
		"quality":      probe.EstimatedQuality,
	})
	p.advance(ctx, job.ID, progressMetadata)

	// audio-extraction
	audio, err := p.extractAudio(ctx, videoPath, probe, opts)
	if err != nil {
		return result, p.failJob(ctx, job.ID, StepAudio, progressAudioFail, err)
	}
	result.AudioPath = audio.OutputPath
	p.recordStep(ctx, job.ID, StepAudio, store.StepStatusCompleted, map[string]any{
		"audio_path": audio.OutputPath,
		"file_size":  audio.FileSize,
	}, "")
	_ = p.store.Jobs.SetPaths(ctx, job.ID, audio.OutputPath, "")
	p.advance(ctx, job.ID, progressAudio)

	// transcription
	var transcript *store.Transcript
	if opts.EnableTranscription {
		transcript = p.transcribeStep(ctx, job.ID, audio.OutputPath, opts, result)
	} else {
		p.recordStep(ctx, job.ID, StepTranscribe, store.StepStatusCompleted,
			map[string]any{"skipped": true}, "")
	}
	result.TranscriptAvailable = transcript != nil
	p.advance(ctx, job.ID, progressTranscribe)

	// frame-sampling
	if opts.EnableFrameSampling {
		p.frameStep(ctx, job.ID, videoPath, opts, result)
	}
	p.advance(ctx, job.ID, progressFrames)

	// content-processing
	var chunks []chunk.Chunk
	var vectors [][]float32
	if transcript != nil {
		chunks, vectors = p.contentStep(ctx, job.ID, transcript, opts, result)
	}
	p.advance(ctx, job.ID, progressContent)

	// database-storage
	memoryID, err := p.storeStep(ctx, job.ID, videoPath, probe, transcript, chunks, vectors, opts, result)
	if err != nil {
		return result, p.failJob(ctx, job.ID, StepStorage, progressStorage, err)
	}
	result.MemoryID = memoryID
	p.advance(ctx, job.ID, progressStorage)

	// cleanup
	p.cleanupStep(ctx, job.ID, videoPath, audio.OutputPath, opts, result)

	if err := p.store.Jobs.UpdateStatus(ctx, job.ID, store.JobStatusCompleted, progressDone, ""); err != nil {
		return result, err
	}
	result.Elapsed = time.Since(start)
	result.ElapsedMs = result.Elapsed.Milliseconds()
	return result, nil
}

// validate checks existence, non-zero size, and a known video extension.
func (p *Pipeline) validate(videoPath string) error {
	info, err := os.Stat(videoPath)
	if err != nil {
		return spiralerr.New(spiralerr.ErrCodeFileNotFound,
			fmt.Sprintf("video file not found: %s", videoPath))
	}
	if info.Size() == 0 {
		return spiralerr.ValidationError("video file is empty: "+videoPath, nil)
	}
	ext := strings.ToLower(filepath.Ext(videoPath))
	if !videoExtensions[ext] {
		return spiralerr.ValidationError("unsupported video extension: "+ext, nil).
			WithSuggestion("supported containers: mp4, avi, mov, mkv, webm, m4v, flv, wmv")
	}
	return nil
}

func (p *Pipeline) extractAudio(ctx context.Context, videoPath string, probe *media.ProbeResult, opts Options) (*media.AudioResult, error) {
	if !probe.HasAudio() {
		return nil, spiralerr.New(spiralerr.ErrCodeNoAudioStream,
			"video has no audio stream: "+videoPath)
	}
	audioOpts := media.TranscriptionOptimalOptions(opts.OutputDirectory)
	if opts.FastAudioExtraction {
		audioOpts = media.FastOptions(opts.OutputDirectory)
	}
	return p.audio.Extract(ctx, videoPath, audioOpts)
}

// transcribeStep runs the recognizer; failure degrades the job, never
// fails it.
func (p *Pipeline) transcribeStep(ctx context.Context, jobID, audioPath string, opts Options, result *Result) *store.Transcript {
	p.recordStep(ctx, jobID, StepTranscribe, store.StepStatusRunning, nil, "")
	tr, err := p.transcriber.Transcribe(ctx, audioPath, transcribe.Options{
		Model:          opts.TranscriptionModel,
		Language:       opts.Language,
		WordTimestamps: true,
		OutputDir:      opts.OutputDirectory,
	})
	if err != nil || tr.Transcript == nil {
		msg := "transcription produced no output"
		if err != nil {
			msg = err.Error()
		}
		p.log.Warn("transcription failed, continuing without transcript",
			"job_id", jobID, "error", msg)
		result.Warnings = append(result.Warnings, "transcription: "+msg)
		p.recordStep(ctx, jobID, StepTranscribe, store.StepStatusFailed, nil, msg)
		return nil
	}
	p.recordStep(ctx, jobID, StepTranscribe, store.StepStatusCompleted, map[string]any{
		"segments":   tr.Transcript.SegmentCount,
		"confidence": tr.AverageConfidence,
	}, "")
	if tr.OutputFilePath != "" {
		_ = p.store.Jobs.SetPaths(ctx, jobID, "", tr.OutputFilePath)
	}
	return tr.Transcript
}

// frameStep either defers sampling (audio-first mode) or extracts frames.
// Failure is a warning.
func (p *Pipeline) frameStep(ctx context.Context, jobID, videoPath string, opts Options, result *Result) {
	if opts.AudioFirstMode || p.frames == nil {
		p.recordStep(ctx, jobID, StepFrames, store.StepStatusCompleted,
			map[string]any{"deferred": true, "prepared": true}, "")
		return
	}
	frames, err := p.frames.Extract(ctx, videoPath, media.FrameOptions{
		Method:    media.SampleUniform,
		OutputDir: opts.OutputDirectory,
	})
	if err != nil {
		p.log.Warn("frame sampling failed", "job_id", jobID, "error", err.Error())
		result.Warnings = append(result.Warnings, "frame-sampling: "+err.Error())
		p.recordStep(ctx, jobID, StepFrames, store.StepStatusFailed, nil, err.Error())
		return
	}
	p.recordStep(ctx, jobID, StepFrames, store.StepStatusCompleted,
		map[string]any{"frame_count": len(frames)}, "")
}

// contentStep chunks the transcript and, when enabled, embeds the chunks.
// Failures are warnings; chunks survive an embedding failure.
func (p *Pipeline) contentStep(ctx context.Context, jobID string, transcript *store.Transcript, opts Options, result *Result) ([]chunk.Chunk, [][]float32) {
	p.recordStep(ctx, jobID, StepContent, store.StepStatusRunning, nil, "")

	chunked := chunk.Split(transcript, opts.Chunking)
	if len(chunked.Chunks) == 0 {
		p.recordStep(ctx, jobID, StepContent, store.StepStatusCompleted,
			map[string]any{"chunks": 0}, "")
		return nil, nil
	}

	var vectors [][]float32
	if opts.EnableEmbeddings && p.embedder != nil && p.embedder.Available(ctx) {
		texts := make([]string, len(chunked.Chunks))
		for i, c := range chunked.Chunks {
			texts[i] = c.Content
		}
		vs, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			p.log.Warn("embedding failed, chunks will be keyword-only",
				"job_id", jobID, "error", err.Error())
			result.Warnings = append(result.Warnings, "embedding: "+err.Error())
		} else {
			vectors = vs
		}
	}

	p.recordStep(ctx, jobID, StepContent, store.StepStatusCompleted, map[string]any{
		"chunks":             len(chunked.Chunks),
		"timestamp_coverage": chunked.TimestampCoverage,
		"embedded":           len(vectors),
	}, "")
	return chunked.Chunks, vectors
}

// storeStep persists the memory, the processed-content snapshot, and each
// chunk. The memory row comes first; a chunk failure is logged and skipped,
// never fatal.
func (p *Pipeline) storeStep(ctx context.Context, jobID, videoPath string, probe *media.ProbeResult, transcript *store.Transcript, chunks []chunk.Chunk, vectors [][]float32, opts Options, result *Result) (string, error) {
	title := opts.CustomTitle
	if title == "" {
		title = filepath.Base(videoPath)
	}
	result.Title = title

	content := "Video content pending transcription"
	if transcript != nil && transcript.FullText != "" {
		content = transcript.FullText
	}

	memory, err := p.store.Memories.Create(ctx, store.CreateMemoryInput{
		SpaceID:     opts.SpaceID,
		ContentType: store.ContentTypeVideo,
		Title:       title,
		Content:     content,
		Source:      videoPath,
		FilePath:    videoPath,
		Metadata: map[string]any{
			"duration_sec": probe.DurationSec,
			"quality":      probe.EstimatedQuality,
		},
	})
	if err != nil {
		return "", err
	}

	stored := 0
	embedded := 0
	for i, c := range chunks {
		row, err := p.store.Chunks.Create(ctx, store.CreateChunkInput{
			MemoryID:      memory.ID,
			ChunkText:     c.Content,
			ChunkOrder:    c.ChunkIndex,
			StartOffsetMs: c.StartTimeMs,
			EndOffsetMs:   c.EndTimeMs,
		})
		if err != nil {
			p.log.Warn("chunk insert failed, continuing",
				"job_id", jobID, "chunk_index", c.ChunkIndex, "error", err.Error())
			continue
		}
		stored++
		if i < len(vectors) && len(vectors[i]) > 0 {
			_, err := p.store.Vectors.Upsert(ctx, row.ID, store.EmbeddingContentChunk,
				p.embedder.ModelName(), vectors[i])
			if err != nil {
				p.log.Warn("embedding upsert failed",
					"job_id", jobID, "chunk_id", row.ID, "error", err.Error())
				continue
			}
			embedded++
		}
	}
	result.ChunkCount = stored
	result.EmbeddingCount = embedded

	if _, err := p.store.Content.Create(ctx, &store.ProcessedContent{
		JobID:          jobID,
		MemoryID:       memory.ID,
		Transcript:     transcript,
		ChunkCount:     stored,
		EmbeddingCount: embedded,
	}); err != nil {
		p.log.Warn("processed content snapshot failed", "job_id", jobID, "error", err.Error())
	}

	p.recordStep(ctx, jobID, StepStorage, store.StepStatusCompleted, map[string]any{
		"memory_id": memory.ID,
		"chunks":    stored,
	}, "")
	return memory.ID, nil
}

// cleanupStep deletes the source video only when the audio artifact is
// kept and present, so content stays re-derivable.
func (p *Pipeline) cleanupStep(ctx context.Context, jobID, videoPath, audioPath string, opts Options, result *Result) {
	if !opts.CleanupVideoAfterProcessing {
		return
	}
	if !opts.KeepAudioFiles || audioPath == "" {
		p.log.Info("skipping video cleanup, audio artifact not retained", "job_id", jobID)
		p.recordStep(ctx, jobID, StepCleanup, store.StepStatusCompleted,
			map[string]any{"skipped": true}, "")
		return
	}
	if _, err := os.Stat(audioPath); err != nil {
		p.log.Warn("skipping video cleanup, audio file missing", "job_id", jobID)
		p.recordStep(ctx, jobID, StepCleanup, store.StepStatusCompleted,
			map[string]any{"skipped": true}, "")
		return
	}

	info, err := os.Stat(videoPath)
	if err != nil {
		return
	}
	if err := os.Remove(videoPath); err != nil {
		p.log.Warn("video cleanup failed", "job_id", jobID, "error", err.Error())
		p.recordStep(ctx, jobID, StepCleanup, store.StepStatusFailed, nil, err.Error())
		return
	}
	result.BytesFreed = info.Size()
	p.recordStep(ctx, jobID, StepCleanup, store.StepStatusCompleted,
		map[string]any{"bytes_freed": info.Size()}, "")
}

// failJob marks the failing step and pins the job at the step's progress.
func (p *Pipeline) failJob(ctx context.Context, jobID, step string, progress int, cause error) error {
	p.recordStep(ctx, jobID, step, store.StepStatusFailed, nil, cause.Error())
	if err := p.store.Jobs.UpdateStatus(ctx, jobID, store.JobStatusFailed, progress, cause.Error()); err != nil {
		p.log.Error("failed to record job failure", "job_id", jobID, "error", err.Error())
	}
	return cause
}

func (p *Pipeline) advance(ctx context.Context, jobID string, progress int) {
	if err := p.store.Jobs.UpdateStatus(ctx, jobID, store.JobStatusProcessing, progress, ""); err != nil {
		p.log.Warn("progress update failed", "job_id", jobID, "error", err.Error())
	}
}

func (p *Pipeline) recordStep(ctx context.Context, jobID, name string, status store.StepStatus, metadata map[string]any, stepErr string) {
	if err := p.store.Jobs.UpdateStep(ctx, jobID, name, status, metadata, stepErr); err != nil {
		p.log.Warn("step update failed", "job_id", jobID, "step", name, "error", err.Error())
	}
}
