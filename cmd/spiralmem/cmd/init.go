package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/spiralmem/spiralmem/internal/config"
	"github.com/spiralmem/spiralmem/internal/store"
)

func newInitCmd() *cobra.Command {
	var force bool
	var testMode bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the spiralmem store and default space",
		Long: `Creates the data directories, applies database migrations, ensures
the default memory space exists, and writes a starter config file if
none is present.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force, testMode)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	cmd.Flags().BoolVar(&testMode, "test-mode", false, "Use a temporary database for trial runs")

	return cmd
}

func runInit(cmd *cobra.Command, force, testMode bool) error {
	out := console(cmd)

	cfg, err := config.Load(global.configPath)
	if err != nil {
		return reportError(cmd, err)
	}
	if testMode {
		tmp, err := os.MkdirTemp("", "spiralmem-test-*")
		if err != nil {
			return reportError(cmd, err)
		}
		cfg.Database.Path = tmp + "/spiralmem.db"
		cfg.Video.OutputDirectory = tmp
		out.Warning("test mode: using temporary database at " + cfg.Database.Path)
	}

	if err := cfg.EnsureDirs(); err != nil {
		return reportError(cmd, err)
	}

	st, err := store.Open(cfg.Database.Path, store.Options{CacheMB: cfg.Database.CacheMB})
	if err != nil {
		return reportError(cmd, err)
	}
	defer st.Close()

	space, err := st.Spaces.EnsureDefault(cmd.Context())
	if err != nil {
		return reportError(cmd, err)
	}

	configPath := global.configPath
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) || force {
		if !testMode {
			if err := cfg.Save(configPath); err != nil {
				return reportError(cmd, err)
			}
			out.Success("wrote config to " + configPath)
		}
	}

	out.Success("database ready at " + cfg.Database.Path)
	out.Successf("default space %q ready", space.Name)
	return nil
}
