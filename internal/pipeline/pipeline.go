// Package pipeline drives a video from raw input to indexed content: probe,
// audio extraction, transcription, chunking, embedding, and persistence, with
// per-step progress recorded on the job row.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/spiralmem/spiralmem/internal/chunk"
	"github.com/spiralmem/spiralmem/internal/embed"
	"github.com/spiralmem/spiralmem/internal/media"
	"github.com/spiralmem/spiralmem/internal/store"
	"github.com/spiralmem/spiralmem/internal/transcribe"
)

// Step names as recorded in the job's step ledger.
const (
	StepValidation = "validation"
	StepMetadata   = "metadata"
	StepAudio      = "audio-extraction"
	StepTranscribe = "transcription"
	StepFrames     = "frame-sampling"
	StepContent    = "content-processing"
	StepStorage    = "database-storage"
	StepCleanup    = "cleanup"
)

// Progress checkpoints per step. Failure of a fatal step pins the job at
// the step's failure mark.
const (
	progressValidation = 10
	progressMetadata   = 20
	progressAudioFail  = 30
	progressAudio      = 40
	progressTranscribe = 60
	progressFrames     = 70
	progressContent    = 80
	progressStorage    = 90
	progressDone       = 100
)

// Prober inspects a media file's streams and container.
type Prober interface {
	Probe(ctx context.Context, path string) (*media.ProbeResult, error)
}

// AudioExtractor produces a transcription-ready audio file.
type AudioExtractor interface {
	Extract(ctx context.Context, input string, opts media.AudioOptions) (*media.AudioResult, error)
}

// FrameSampler extracts still frames; optional.
type FrameSampler interface {
	Extract(ctx context.Context, input string, opts media.FrameOptions) ([]media.FrameInfo, error)
}

// Options controls one pipeline run.
type Options struct {
	SpaceID                     string
	CustomTitle                 string
	OutputDirectory             string
	EnableTranscription         bool
	EnableFrameSampling         bool
	EnableEmbeddings            bool
	Chunking                    chunk.Options
	SkipValidation              bool
	AudioFirstMode              bool
	FastAudioExtraction         bool
	CleanupVideoAfterProcessing bool
	KeepAudioFiles              bool
	SourceType                  store.SourceType
	TranscriptionModel          string
	Language                    string
}

// Result summarizes a completed run.
type Result struct {
	JobID               string        `json:"jobId"`
	MemoryID            string        `json:"memoryId"`
	Title               string        `json:"title"`
	ChunkCount          int           `json:"chunkCount"`
	EmbeddingCount      int           `json:"embeddingCount"`
	TranscriptAvailable bool          `json:"transcriptAvailable"`
	AudioPath           string        `json:"audioPath,omitempty"`
	BytesFreed          int64         `json:"bytesFreed,omitempty"`
	Warnings            []string      `json:"warnings,omitempty"`
	Elapsed             time.Duration `json:"-"`
	ElapsedMs           int64         `json:"elapsedMs"`
}

// Pipeline wires the adapters behind the ingestion state machine.
type Pipeline struct {
	store       *store.Store
	prober      Prober
	audio       AudioExtractor
	frames      FrameSampler
	transcriber transcribe.Transcriber
	embedder    embed.Embedder
	log         *slog.Logger
}

// Deps carries the pipeline's collaborators. Frames may be nil; frame
// sampling is then always deferred.
type Deps struct {
	Store       *store.Store
	Prober      Prober
	Audio       AudioExtractor
	Frames      FrameSampler
	Transcriber transcribe.Transcriber
	Embedder    embed.Embedder
	Log         *slog.Logger
}

// New builds a pipeline from its dependencies.
func New(d Deps) *Pipeline {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &Pipeline{
		store:       d.Store,
		prober:      d.Prober,
		audio:       d.Audio,
		frames:      d.Frames,
		transcriber: d.Transcriber,
		embedder:    d.Embedder,
		log:         d.Log,
	}
}
