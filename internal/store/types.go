// Package store provides the SQLite persistence layer: spaces, memories,
// chunks, vector embeddings, processing jobs, and platform metadata.
package store

import (
	"time"
)

// ContentType classifies a memory's content.
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeDocument ContentType = "document"
	ContentTypeVideo    ContentType = "video"
	ContentTypeURL      ContentType = "url"
)

// DefaultSpaceName is the name of the space that always exists after init.
const DefaultSpaceName = "default"

// Space is a logical partition grouping memories.
type Space struct {
	ID          string
	Name        string
	Description string
	Settings    map[string]any
	CreatedAt   time.Time
}

// Memory is a logical, searchable unit of ingested content.
// For a video it is created exactly once per successful ingestion and its
// Content holds the full transcript (or a placeholder when absent).
type Memory struct {
	ID          string
	SpaceID     string
	ContentType ContentType
	Title       string
	Content     string
	Source      string
	FilePath    string
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk is a retrieval-sized sub-piece of a memory. For video memories the
// offsets are wall-clock milliseconds into the source timeline.
type Chunk struct {
	ID            string
	MemoryID      string
	ChunkText     string
	ChunkOrder    int
	StartOffsetMs *int64
	EndOffsetMs   *int64
	Metadata      map[string]any
	CreatedAt     time.Time
}

// EmbeddingContentType classifies what a vector embedding points at.
type EmbeddingContentType string

const (
	EmbeddingContentChunk  EmbeddingContentType = "chunk"
	EmbeddingContentMemory EmbeddingContentType = "memory"
	EmbeddingContentFrame  EmbeddingContentType = "frame"
)

// VectorEmbedding is a fixed-length dense vector for a chunk, memory, or
// frame. At most one row exists per (ContentID, ContentType, Model).
type VectorEmbedding struct {
	ID          string
	ContentID   string
	ContentType EmbeddingContentType
	Model       string
	Dimensions  int
	Vector      []float32
	CreatedAt   time.Time
}

// JobStatus is the lifecycle state of a video processing job.
// completed, failed, and cancelled are terminal.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status is permanent.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// StepStatus is the state of one pipeline step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// SourceType classifies where a job's video came from.
type SourceType string

const (
	SourceTypeLocal    SourceType = "local"
	SourceTypeYouTube  SourceType = "youtube"
	SourceTypePlatform SourceType = "platform"
)

// ProcessingStep records one stage of a job with timing and outcome.
type ProcessingStep struct {
	Name       string         `json:"name"`
	Status     StepStatus     `json:"status"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// VideoJob is one execution of the ingestion pipeline with persistent status.
type VideoJob struct {
	ID             string
	SourceID       string
	SourceType     SourceType
	Status         JobStatus
	Progress       int
	VideoPath      string
	AudioPath      string
	TranscriptPath string
	Steps          []ProcessingStep
	Metadata       map[string]any
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// TranscriptWord is a single recognized word with millisecond timing.
type TranscriptWord struct {
	Word       string  `json:"word"`
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence,omitempty"`
}

// TranscriptSegment is a contiguous recognized phrase with second timing.
// Word-level timestamps may be absent depending on the recognizer.
type TranscriptSegment struct {
	Text       string           `json:"text"`
	StartSec   float64          `json:"start_sec"`
	EndSec     float64          `json:"end_sec"`
	Confidence float64          `json:"confidence,omitempty"`
	Words      []TranscriptWord `json:"words,omitempty"`
}

// Transcript is a full speech-recognition result for one source.
type Transcript struct {
	Language     string              `json:"language"`
	DurationSec  float64             `json:"duration_sec"`
	SegmentCount int                 `json:"segment_count"`
	FullText     string              `json:"full_text"`
	Segments     []TranscriptSegment `json:"segments"`
}

// ProcessedContent is the 1:1 snapshot of a completed job's output.
type ProcessedContent struct {
	ID             string
	JobID          string
	MemoryID       string
	Transcript     *Transcript
	ChunkCount     int
	EmbeddingCount int
	Metadata       map[string]any
	CreatedAt      time.Time
}

// Platform identifies a supported video platform.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformSpotify Platform = "spotify"
	PlatformZoom    Platform = "zoom"
	PlatformTeams   Platform = "teams"
	PlatformVimeo   Platform = "vimeo"
	PlatformRumble  Platform = "rumble"
)

// PlatformVideo indexes a platform URL without a full download.
// (Platform, PlatformVideoID) is unique.
type PlatformVideo struct {
	ID               string
	MemoryID         string
	Platform         Platform
	PlatformVideoID  string
	VideoURL         string
	ThumbnailURL     string
	DurationSec      float64
	UploadDate       string
	ChannelInfo      map[string]any
	PlaylistInfo     map[string]any
	PlatformMetadata map[string]any
	LastIndexed      time.Time
}

// PlatformTranscript is a transcript keyed by platform video id.
type PlatformTranscript struct {
	ID              string
	PlatformVideoID string
	Transcript      *Transcript
	CreatedAt       time.Time
}

// VideoType classifies what a deep link points at.
type VideoType string

const (
	VideoTypeLocal    VideoType = "local"
	VideoTypePlatform VideoType = "platform"
)

// DeepLink is a timestamped navigation URL into a video moment.
type DeepLink struct {
	ID                string
	VideoID           string
	VideoType         VideoType
	TimestampStartSec float64
	TimestampEndSec   *float64
	DeeplinkURL       string
	ContextSummary    string
	SearchKeywords    string
	ConfidenceScore   float64
	CreatedAt         time.Time
}

// Tag labels memories; names are unique case-insensitively.
type Tag struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// MemoryFilter restricts memory searches.
type MemoryFilter struct {
	SpaceID      string
	ContentTypes []ContentType
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// EmbeddingStats summarizes the vector_embeddings table for vector-stats.
type EmbeddingStats struct {
	TotalEmbeddings int            `json:"totalEmbeddings"`
	ByContentType   map[string]int `json:"byContentType"`
	ByModel         map[string]int `json:"byModel"`
	AvgDimensions   float64        `json:"avgDimensions"`
}
