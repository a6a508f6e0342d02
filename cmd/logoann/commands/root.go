package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/logoann"
)

var (
	configPath string
	verbose    bool
	jsonLogs   bool
)

var rootCmd = &cobra.Command{
	Use:   "logoann",
	Short: "Nearest-neighbor search over logo embeddings",
	Long: `logoann - Nearest-neighbor search over logo embeddings.

Serves neighbor lookups against frozen vector indexes, with an
append-only embedding store catching up on logos added after an index
was built.

Examples:
  # Run the server
  logoann serve --config config.yaml

  # Export the embedding store
  logoann export --config config.yaml --out embeddings.zst`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit JSON logs")
}

func newLogger() *logoann.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	if jsonLogs {
		return logoann.NewJSONLogger(level)
	}
	return logoann.NewTextLogger(level)
}
