package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spiralmem/spiralmem/internal/config"
)

func newConfigCmd() *cobra.Command {
	var showPath bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		Long: `Prints the effective configuration after merging the config file,
environment overrides, and built-in defaults.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfig(cmd, showPath, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&showPath, "path", false, "Print only the config file path")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")

	return cmd
}

func runConfig(cmd *cobra.Command, showPath, jsonOut bool) error {
	if showPath {
		path := global.configPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	}

	cfg, err := config.Load(global.configPath)
	if jsonOut {
		return finishJSON(cmd, cfg, err)
	}
	if err != nil {
		return reportError(cmd, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return reportError(cmd, err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}
