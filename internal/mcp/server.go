package mcp

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/spiralmem/spiralmem/internal/embed"
	"github.com/spiralmem/spiralmem/internal/pipeline"
	"github.com/spiralmem/spiralmem/internal/platform"
	"github.com/spiralmem/spiralmem/internal/search"
	"github.com/spiralmem/spiralmem/internal/store"
	"github.com/spiralmem/spiralmem/pkg/version"
)

const serverName = "spiralmem"

// Server bridges AI clients with the memory store, search engine, and
// ingestion pipeline over MCP.
type Server struct {
	mcp        *mcp.Server
	store      *store.Store
	engine     *search.Engine
	pipe       *pipeline.Pipeline
	downloader pipeline.VideoDownloader
	embedder   embed.Embedder
	logger     *slog.Logger
}

// Deps are the collaborators the server exposes as tools. Downloader and
// embedder may be nil; the matching capabilities degrade.
type Deps struct {
	Store      *store.Store
	Engine     *search.Engine
	Pipeline   *pipeline.Pipeline
	Downloader pipeline.VideoDownloader
	Embedder   embed.Embedder
	Log        *slog.Logger
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates the spiralmem MCP server and registers its tools.
func NewServer(d Deps) (*Server, error) {
	if d.Store == nil {
		return nil, errors.New("store is required")
	}
	if d.Engine == nil {
		return nil, errors.New("search engine is required")
	}
	if d.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}

	s := &Server{
		store:      d.Store,
		engine:     d.Engine,
		pipe:       d.Pipeline,
		downloader: d.Downloader,
		embedder:   d.Embedder,
		logger:     d.Log,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return serverName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "search_memories",
			Description: "Search stored video memories by transcript content. Supports keyword, semantic, and hybrid modes and returns timestamped matches you can cite.",
		},
		{
			Name:        "add_video",
			Description: "Ingest a local video file or a supported video URL into memory: extract audio, transcribe, chunk, and index for search.",
		},
		{
			Name:        "get_stats",
			Description: "Report memory, chunk, and embedding counts plus embedder availability. Use to decide whether semantic search will return useful results.",
		},
	}
}

func (s *Server) registerTools() {
	for _, t := range s.ListTools() {
		s.logger.Debug("registering MCP tool", slog.String("name", t.Name))
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_memories",
		Description: s.ListTools()[0].Description,
	}, s.searchMemoriesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "add_video",
		Description: s.ListTools()[1].Description,
	}, s.addVideoHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_stats",
		Description: s.ListTools()[2].Description,
	}, s.getStatsHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 3))
}

// searchMemoriesHandler runs one search and converts results to the
// tool's output shape.
func (s *Server) searchMemoriesHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchMemoriesInput) (
	*mcp.CallToolResult,
	SearchMemoriesOutput,
	error,
) {
	start := time.Now()

	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchMemoriesOutput{}, NewInvalidParamsError("query is required")
	}

	filter := search.Filter{
		SpaceID: input.SpaceID,
		Limit:   clampLimit(input.Limit, 10, 1, 50),
	}

	var (
		results []*search.Result
		err     error
	)
	switch input.Mode {
	case "", "hybrid":
		results, err = s.engine.Hybrid(ctx, input.Query, filter)
	case "keyword":
		results, err = s.engine.WithTimestamps(ctx, input.Query, filter)
	case "semantic":
		results, err = s.engine.Vector(ctx, input.Query, filter, search.DefaultVectorThreshold)
	default:
		return nil, SearchMemoriesOutput{}, NewInvalidParamsError("mode must be keyword, semantic, or hybrid")
	}
	if err != nil {
		s.logger.Error("search_memories failed",
			slog.String("query", input.Query),
			slog.String("error", err.Error()))
		return nil, SearchMemoriesOutput{}, MapError(err)
	}

	out := SearchMemoriesOutput{Results: make([]MemoryResult, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, toMemoryResult(r))
	}

	s.logger.Info("search_memories completed",
		slog.String("query", input.Query),
		slog.Int("results", len(out.Results)),
		slog.Duration("duration", time.Since(start)))
	return nil, out, nil
}

// addVideoHandler ingests one local file or URL through the pipeline.
func (s *Server) addVideoHandler(ctx context.Context, _ *mcp.CallToolRequest, input AddVideoInput) (
	*mcp.CallToolResult,
	AddVideoOutput,
	error,
) {
	if strings.TrimSpace(input.Path) == "" {
		return nil, AddVideoOutput{}, NewInvalidParamsError("path is required")
	}

	opts := pipeline.Options{
		SpaceID:             input.SpaceID,
		CustomTitle:         input.Title,
		EnableTranscription: !input.NoTranscription,
		EnableEmbeddings:    s.embedder != nil,
		KeepAudioFiles:      true,
	}

	var (
		result *pipeline.Result
		err    error
	)
	if platform.IsVideoURL(input.Path) {
		if s.downloader == nil {
			return nil, AddVideoOutput{}, NewInvalidParamsError("URL ingestion is not available: no downloader configured")
		}
		result, err = s.pipe.ProcessURL(ctx, s.downloader, input.Path, opts)
	} else {
		result, err = s.pipe.Process(ctx, input.Path, opts)
	}
	if err != nil {
		s.logger.Error("add_video failed",
			slog.String("path", input.Path),
			slog.String("error", err.Error()))
		return nil, AddVideoOutput{}, MapError(err)
	}

	s.logger.Info("add_video completed",
		slog.String("memory_id", result.MemoryID),
		slog.Int("chunks", result.ChunkCount))
	return nil, AddVideoOutput{
		MemoryID:            result.MemoryID,
		JobID:               result.JobID,
		Title:               result.Title,
		ChunkCount:          result.ChunkCount,
		TranscriptAvailable: result.TranscriptAvailable,
		Warnings:            result.Warnings,
		ElapsedMs:           result.ElapsedMs,
	}, nil
}

// getStatsHandler reports store contents and embedder state.
func (s *Server) getStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ GetStatsInput) (
	*mcp.CallToolResult,
	*GetStatsOutput,
	error,
) {
	byType, err := s.store.Memories.CountByType(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	chunks, err := s.store.Chunks.Count(ctx, "")
	if err != nil {
		return nil, nil, MapError(err)
	}
	spaces, err := s.store.Spaces.List(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}

	out := &GetStatsOutput{
		MemoriesByType: byType,
		Chunks:         chunks,
		Spaces:         len(spaces),
	}
	for _, n := range byType {
		out.Memories += n
	}

	embStats, err := s.store.Vectors.Stats(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	info := &EmbeddingInfo{
		Total:   embStats.TotalEmbeddings,
		ByModel: embStats.ByModel,
		Status:  "unavailable",
	}
	if s.embedder != nil {
		info.Model = s.embedder.ModelName()
		info.Dimensions = s.embedder.Dimensions()
		if s.embedder.Available(ctx) {
			info.Status = "ready"
		}
	}
	out.Embeddings = info

	return nil, out, nil
}

// Serve runs the server over the given transport until ctx is cancelled.
// Only stdio is supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	default:
		return NewInvalidParamsError("unknown transport: " + transport + " (supported: stdio)")
	}
}

func toMemoryResult(r *search.Result) MemoryResult {
	out := MemoryResult{
		Score:      r.Similarity,
		MatchType:  string(r.MatchType),
		Highlights: r.Highlights,
	}
	if r.Memory != nil {
		out.MemoryID = r.Memory.ID
		out.Title = r.Memory.Title
		out.Source = r.Memory.Source
	}
	if r.Chunk != nil {
		out.Snippet = r.Chunk.ChunkText
	}
	if r.Timestamps != nil {
		out.StartMs = r.Timestamps.StartMs
		out.EndMs = r.Timestamps.EndMs
	}
	return out
}

func clampLimit(v, def, lo, hi int) int {
	if v <= 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
