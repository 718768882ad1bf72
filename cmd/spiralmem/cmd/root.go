// Package cmd provides the CLI commands for spiralmem.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/spiralmem/spiralmem/internal/config"
	"github.com/spiralmem/spiralmem/internal/logging"
	"github.com/spiralmem/spiralmem/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	verbose    bool
	quiet      bool
}

var (
	global         globalOptions
	loggingCleanup func()
)

// NewRootCmd creates the root command for the spiralmem CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spiralmem",
		Short: "Turn videos into searchable memory",
		Long: `Spiralmem ingests local video files and platform URLs, transcribes
them, and indexes the transcripts for keyword, semantic, and hybrid
search with millisecond-level timestamps.

Run 'spiralmem init' once, then 'spiralmem add-video <path>' to start
building your memory.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("spiralmem version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&global.configPath, "config", "c", "", "Path to config file")
	cmd.PersistentFlags().BoolVarP(&global.verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().BoolVarP(&global.quiet, "quiet", "q", false, "Suppress non-error output")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newAddVideoCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSemanticSearchCmd())
	cmd.AddCommand(newExtractSegmentsCmd())
	cmd.AddCommand(newDownloadSegmentsCmd())
	cmd.AddCommand(newGenerateEmbeddingsCmd())
	cmd.AddCommand(newVectorStatsCmd())
	cmd.AddCommand(newAddChannelCmd())
	cmd.AddCommand(newSpacesCmd())
	cmd.AddCommand(newCreateSpaceCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newServeMCPCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging routes slog to the configured log file. Console output
// stays clean; --verbose lowers the level to debug.
func setupLogging(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(global.configPath)
	if err != nil {
		// Config problems surface in the command itself with a better
		// message; logging falls back to defaults here.
		cfg = config.Default()
	}

	logCfg := logging.Config{
		Level:     cfg.Logging.Level,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	}
	if logCfg.FilePath == "" {
		logCfg.FilePath = logging.DefaultLogPath()
	}
	if global.verbose {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Never fail a command because the log file is unwritable.
		return nil
	}
	slog.SetDefault(logger)
	loggingCleanup = cleanup
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
