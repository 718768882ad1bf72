package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spiralmem/spiralmem/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version and build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if jsonOut {
				return finishJSON(cmd, version.GetInfo(), nil)
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")

	return cmd
}
