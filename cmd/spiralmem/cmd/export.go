package cmd

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/spiralmem/spiralmem/internal/store"
	"github.com/spiralmem/spiralmem/pkg/version"
)

// exportDocument is the on-disk export shape: every memory with its
// chunks inlined, plus enough header to identify the producing build.
type exportDocument struct {
	ExportedAt time.Time       `json:"exportedAt"`
	Version    string          `json:"version"`
	SpaceID    string          `json:"spaceId,omitempty"`
	Memories   []exportedEntry `json:"memories"`
}

type exportedEntry struct {
	Memory *store.Memory  `json:"memory"`
	Chunks []*store.Chunk `json:"chunks,omitempty"`
}

func newExportCmd() *cobra.Command {
	var space string
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories and chunks as JSON",
		Long: `Writes all memories (optionally one space) with their chunks to a JSON
file, or stdout when no output path is given.

Examples:
  spiralmem export -o backup.json
  spiralmem export -s research`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, space, outPath)
		},
	}

	cmd.Flags().StringVarP(&space, "space", "s", "", "Restrict to one memory space")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runExport(cmd *cobra.Command, space, outPath string) error {
	a, err := openApp()
	if err != nil {
		return reportError(cmd, err)
	}
	defer a.close()

	ctx := cmd.Context()
	spaceID, err := a.resolveSpace(ctx, space)
	if err != nil {
		return reportError(cmd, err)
	}

	memories, err := a.store.Memories.Search(ctx, "", store.MemoryFilter{
		SpaceID: spaceID,
		Limit:   1 << 20,
	})
	if err != nil {
		return reportError(cmd, err)
	}

	doc := exportDocument{
		ExportedAt: time.Now().UTC(),
		Version:    version.Version,
		SpaceID:    spaceID,
		Memories:   make([]exportedEntry, 0, len(memories)),
	}
	for _, m := range memories {
		chunks, err := a.store.Chunks.FindByMemoryIDs(ctx, []string{m.ID})
		if err != nil {
			return reportError(cmd, err)
		}
		doc.Memories = append(doc.Memories, exportedEntry{Memory: m, Chunks: chunks})
	}

	dest := cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return reportError(cmd, err)
		}
		defer f.Close()
		dest = f
	}

	enc := json.NewEncoder(dest)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return reportError(cmd, err)
	}
	if outPath != "" {
		console(cmd).Successf("exported %d memories to %s", len(doc.Memories), outPath)
	}
	return nil
}
