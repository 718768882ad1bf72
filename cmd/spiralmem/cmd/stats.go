package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spiralmem/spiralmem/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memory, chunk, and embedding counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")

	return cmd
}

func runStats(cmd *cobra.Command, jsonOut bool) error {
	a, err := openApp()
	if err != nil {
		if jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}
	defer a.close()

	ctx := cmd.Context()
	byType, err := a.store.Memories.CountByType(ctx)
	if err != nil {
		if jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}
	chunks, err := a.store.Chunks.Count(ctx, "")
	if err != nil {
		if jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}
	tags, err := a.store.Tags.Count(ctx)
	if err != nil {
		if jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}
	embStats, err := a.store.Vectors.Stats(ctx)
	if err != nil {
		if jsonOut {
			return finishJSON(cmd, nil, err)
		}
		return reportError(cmd, err)
	}

	if jsonOut {
		total := 0
		for _, n := range byType {
			total += n
		}
		return finishJSON(cmd, map[string]any{
			"memories":       total,
			"memoriesByType": byType,
			"chunks":         chunks,
			"tags":           tags,
			"embeddings":     embStats,
		}, nil)
	}

	ui.NewRenderer(cmd.OutOrStdout(), false).Stats(byType, chunks, tags, embStats)
	return nil
}
