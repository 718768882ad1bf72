package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spiralmem/spiralmem/internal/mcp"
)

func newServeMCPCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Run the MCP server over stdio",
		Long: `Starts the Model Context Protocol server so AI clients can search
memories, ingest videos, and read store statistics. The process serves
requests on stdin/stdout until the client disconnects.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeMCP(cmd, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport (stdio)")

	return cmd
}

func runServeMCP(cmd *cobra.Command, transport string) error {
	a, err := openApp()
	if err != nil {
		return reportError(cmd, err)
	}
	defer a.close()

	ctx := cmd.Context()
	server, err := mcp.NewServer(mcp.Deps{
		Store:      a.store,
		Engine:     a.engine(ctx),
		Pipeline:   a.pipeline(ctx),
		Downloader: &configuredDownloader{a: a},
		Embedder:   a.embedder,
		Log:        a.log,
	})
	if err != nil {
		return reportError(cmd, err)
	}

	if err := server.Serve(ctx, transport); err != nil {
		return reportError(cmd, err)
	}
	return nil
}
