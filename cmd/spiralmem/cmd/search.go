package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spiralmem/spiralmem/internal/search"
	"github.com/spiralmem/spiralmem/internal/ui"
)

// searchOptions holds CLI flags shared by search and semantic-search.
type searchOptions struct {
	space      string
	limit      int
	threshold  float64
	timestamps bool
	jsonOut    bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Keyword search over stored memories",
		Long: `Searches memory and chunk text by keyword. With --timestamps each
chunk hit carries its millisecond range and per-word positions.

Examples:
  spiralmem search "gradient descent"
  spiralmem search "container networking" -s research -l 5 --timestamps`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts, false)
		},
	}

	cmd.Flags().StringVarP(&opts.space, "space", "s", "", "Restrict to one memory space")
	cmd.Flags().IntVarP(&opts.limit, "limit", "l", 20, "Maximum number of results")
	cmd.Flags().BoolVar(&opts.timestamps, "timestamps", false, "Include millisecond ranges and word matches")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Emit JSON output")

	return cmd
}

func newSemanticSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "semantic-search <query>",
		Short: "Vector search over stored memories",
		Long: `Embeds the query and ranks stored chunks by cosine similarity.
Falls back to keyword search when the embedding backend is down.

Examples:
  spiralmem semantic-search "how transformers attend to context"
  spiralmem semantic-search "kubernetes upgrade risks" --threshold 0.6`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts, true)
		},
	}

	cmd.Flags().StringVarP(&opts.space, "space", "s", "", "Restrict to one memory space")
	cmd.Flags().IntVarP(&opts.limit, "limit", "l", 20, "Maximum number of results")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "Minimum cosine similarity (0 uses the configured default)")
	cmd.Flags().BoolVar(&opts.timestamps, "timestamps", false, "Include millisecond ranges and word matches")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Emit JSON output")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions, semantic bool) error {
	a, err := openApp()
	if err != nil {
		if opts.jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}
	defer a.close()

	ctx := cmd.Context()
	spaceID, err := a.resolveSpace(ctx, opts.space)
	if err != nil {
		if opts.jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}

	engine := a.engine(ctx)
	filter := search.Filter{SpaceID: spaceID, Limit: opts.limit}

	start := time.Now()
	var results []*search.Result
	if semantic {
		results, err = engine.Vector(ctx, query, filter, opts.threshold)
		if err != nil {
			// Keyword fallback keeps the command useful without Ollama.
			a.log.Warn("vector search failed, falling back to keyword", "error", err.Error())
			if !opts.jsonOut {
				console(cmd).Warning("semantic search unavailable, using keyword search")
			}
			if opts.timestamps {
				results, err = engine.WithTimestamps(ctx, query, filter)
			} else {
				results, err = engine.Keyword(ctx, query, filter)
			}
		}
	} else if opts.timestamps {
		results, err = engine.WithTimestamps(ctx, query, filter)
	} else {
		results, err = engine.Keyword(ctx, query, filter)
	}
	elapsed := time.Since(start)

	if opts.jsonOut {
		return finishJSON(cmd, map[string]any{
			"query":     query,
			"results":   results,
			"elapsedMs": elapsedMs(elapsed),
		}, err)
	}
	if err != nil {
		return reportError(cmd, err)
	}

	ui.NewRenderer(cmd.OutOrStdout(), false).SearchResults(results, elapsed)
	return nil
}
