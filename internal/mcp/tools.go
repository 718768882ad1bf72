package mcp

// SearchMemoriesInput defines the input schema for the search_memories tool.
type SearchMemoriesInput struct {
	Query   string `json:"query" jsonschema:"the search query to run against stored video memories"`
	Mode    string `json:"mode,omitempty" jsonschema:"search mode: keyword, semantic, or hybrid (default hybrid)"`
	SpaceID string `json:"space_id,omitempty" jsonschema:"restrict to one memory space"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchMemoriesOutput defines the output schema for the search_memories tool.
type SearchMemoriesOutput struct {
	Results []MemoryResult `json:"results" jsonschema:"ranked search results"`
}

// MemoryResult is a single search hit with enough context for an AI
// client to cite the source video and the moment in it.
type MemoryResult struct {
	MemoryID   string   `json:"memory_id" jsonschema:"identifier of the matched memory"`
	Title      string   `json:"title" jsonschema:"memory title, usually the video title"`
	Source     string   `json:"source,omitempty" jsonschema:"original file path or URL"`
	Snippet    string   `json:"snippet,omitempty" jsonschema:"matched transcript text"`
	Score      float64  `json:"score" jsonschema:"relevance score between 0 and 1"`
	MatchType  string   `json:"match_type" jsonschema:"which search leg matched: keyword, vector, or hybrid"`
	StartMs    int64    `json:"start_ms,omitempty" jsonschema:"start of the matched segment in milliseconds"`
	EndMs      int64    `json:"end_ms,omitempty" jsonschema:"end of the matched segment in milliseconds"`
	Highlights []string `json:"highlights,omitempty" jsonschema:"query terms in context"`
}

// AddVideoInput defines the input schema for the add_video tool.
type AddVideoInput struct {
	Path            string `json:"path" jsonschema:"local video file path or a supported video URL"`
	SpaceID         string `json:"space_id,omitempty" jsonschema:"target memory space, default space when empty"`
	Title           string `json:"title,omitempty" jsonschema:"custom title, defaults to the file name"`
	NoTranscription bool   `json:"no_transcription,omitempty" jsonschema:"skip transcription and store a placeholder"`
}

// AddVideoOutput defines the output schema for the add_video tool.
type AddVideoOutput struct {
	MemoryID            string   `json:"memory_id"`
	JobID               string   `json:"job_id"`
	Title               string   `json:"title"`
	ChunkCount          int      `json:"chunk_count"`
	TranscriptAvailable bool     `json:"transcript_available"`
	Warnings            []string `json:"warnings,omitempty"`
	ElapsedMs           int64    `json:"elapsed_ms"`
}

// GetStatsInput defines the input schema for the get_stats tool (no parameters).
type GetStatsInput struct{}

// GetStatsOutput defines the output schema for the get_stats tool.
type GetStatsOutput struct {
	Memories       int            `json:"memories"`
	MemoriesByType map[string]int `json:"memories_by_type,omitempty"`
	Chunks         int            `json:"chunks"`
	Embeddings     *EmbeddingInfo `json:"embeddings,omitempty"`
	Spaces         int            `json:"spaces"`
}

// EmbeddingInfo reports vector store contents plus runtime embedder
// state, so clients can decide whether semantic search is worth calling.
type EmbeddingInfo struct {
	Total      int            `json:"total"`
	ByModel    map[string]int `json:"by_model,omitempty"`
	Model      string         `json:"model,omitempty"`
	Dimensions int            `json:"dimensions,omitempty"`
	Status     string         `json:"status"`
}
