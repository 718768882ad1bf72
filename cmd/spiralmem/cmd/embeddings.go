package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/spiralmem/spiralmem/internal/batch"
	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
	"github.com/spiralmem/spiralmem/internal/store"
)

// embedGenOptions holds CLI flags for generate-embeddings.
type embedGenOptions struct {
	memoryIDs []string
	force     bool
	batchSize int
	jsonOut   bool
}

func newGenerateEmbeddingsCmd() *cobra.Command {
	var opts embedGenOptions

	cmd := &cobra.Command{
		Use:   "generate-embeddings",
		Short: "Backfill vector embeddings for stored chunks",
		Long: `Embeds chunks that have no vector for the configured model. Use
--force to re-embed everything, e.g. after switching models.

Examples:
  spiralmem generate-embeddings
  spiralmem generate-embeddings --memory-ids mem1,mem2 --batch-size 16`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerateEmbeddings(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.memoryIDs, "memory-ids", nil, "Restrict to specific memories")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Re-embed chunks that already have vectors")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Texts per embedding request (0 uses the configured default)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Emit JSON output")

	return cmd
}

func runGenerateEmbeddings(cmd *cobra.Command, opts embedGenOptions) error {
	a, err := openApp()
	if err != nil {
		if opts.jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}
	defer a.close()

	ctx := cmd.Context()
	a.withEmbedder(ctx)
	if !a.embedder.Available(ctx) {
		err := spiralerr.New(spiralerr.ErrCodeEmbeddingFailed, "embedding backend unavailable").
			WithSuggestion("start Ollama and pull the configured model")
		if opts.jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}

	chunks, err := pendingChunks(ctx, a, opts)
	if err != nil {
		if opts.jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}

	out := console(cmd)
	if len(chunks) == 0 {
		if opts.jsonOut {
			return finishJSON(cmd, map[string]any{"embedded": 0, "failed": 0}, nil)
		}
		out.Success("all chunks already embedded")
		return nil
	}

	batchSize := opts.batchSize
	if batchSize <= 0 {
		batchSize = a.cfg.Embeddings.BatchSize
	}
	groups := groupChunks(chunks, batchSize)

	out.Statusf("🧮", "embedding %d chunks in %d batches", len(chunks), len(groups))

	model := a.embedder.ModelName()
	proc := batch.New[[]*store.Chunk](batch.Options{Concurrency: 2, ContinueOnError: true}, a.log)
	report, runErr := proc.Run(ctx, groups, func(ctx context.Context, group []*store.Chunk) error {
		texts := make([]string, len(group))
		for i, c := range group {
			texts[i] = c.ChunkText
		}
		vectors, err := a.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		for i, c := range group {
			if _, err := a.store.Vectors.Upsert(ctx, c.ID, store.EmbeddingContentChunk, model, vectors[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if runErr != nil {
		if opts.jsonOut {
			return finishJSON(cmd, nil, runErr)
		}
		return reportError(cmd, runErr)
	}

	embedded := 0
	for _, r := range report.Results {
		if r.Err == nil {
			embedded += len(r.Item)
		}
	}
	if opts.jsonOut {
		return finishJSON(cmd, map[string]any{
			"embedded":  embedded,
			"failed":    len(chunks) - embedded,
			"model":     model,
			"elapsedMs": elapsedMs(report.Elapsed),
		}, nil)
	}

	out.Successf("embedded %d/%d chunks with %s", embedded, len(chunks), model)
	for _, r := range report.Results {
		if r.Err != nil {
			out.Warningf("batch %d failed: %s", r.Index, userMessage(r.Err))
		}
	}
	return nil
}

// pendingChunks returns the chunks that still need a vector for the
// active model, unless force re-embeds everything.
func pendingChunks(ctx context.Context, a *app, opts embedGenOptions) ([]*store.Chunk, error) {
	var chunks []*store.Chunk
	var err error
	if len(opts.memoryIDs) > 0 {
		chunks, err = a.store.Chunks.FindByMemoryIDs(ctx, opts.memoryIDs)
	} else {
		var ids []string
		ids, err = a.store.Chunks.AllIDs(ctx)
		if err == nil {
			byID, gerr := a.store.Chunks.GetMany(ctx, ids)
			if gerr != nil {
				return nil, gerr
			}
			chunks = make([]*store.Chunk, 0, len(byID))
			for _, id := range ids {
				if c, ok := byID[id]; ok {
					chunks = append(chunks, c)
				}
			}
		}
	}
	if err != nil {
		return nil, err
	}
	if opts.force {
		return chunks, nil
	}

	model := a.embedder.ModelName()
	pending := chunks[:0]
	for _, c := range chunks {
		has, err := a.store.Vectors.HasContent(ctx, c.ID, store.EmbeddingContentChunk, model)
		if err != nil {
			return nil, err
		}
		if !has {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

func groupChunks(chunks []*store.Chunk, size int) [][]*store.Chunk {
	var groups [][]*store.Chunk
	for start := 0; start < len(chunks); start += size {
		end := min(start+size, len(chunks))
		groups = append(groups, chunks[start:end])
	}
	return groups
}

func newVectorStatsCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "vector-stats",
		Short: "Show vector embedding statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVectorStats(cmd, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")

	return cmd
}

func runVectorStats(cmd *cobra.Command, jsonOut bool) error {
	a, err := openApp()
	if err != nil {
		if jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}
	defer a.close()

	stats, err := a.store.Vectors.Stats(cmd.Context())
	if jsonOut {
		return finishJSON(cmd, stats, err)
	}
	if err != nil {
		return reportError(cmd, err)
	}

	out := console(cmd)
	out.Statusf("📊", "embeddings: %d (avg dimensions %.0f)", stats.TotalEmbeddings, stats.AvgDimensions)
	for _, ct := range sortedKeys(stats.ByContentType) {
		out.Detail(fmt.Sprintf("%s: %d", ct, stats.ByContentType[ct]))
	}
	for _, model := range sortedKeys(stats.ByModel) {
		out.Detail(fmt.Sprintf("%s: %d", model, stats.ByModel[model]))
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
