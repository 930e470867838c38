package main

import (
	"log/slog"

	"github.com/praetorian-inc/ctrie/internal/config"
	"github.com/praetorian-inc/ctrie/internal/logging"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	quiet      bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "ctrie",
	Short: "ctrie - byte signature scanner built on a compact trie",
	Long: `ctrie finds exact byte signatures (file magic numbers, key headers, token
prefixes) in files, git history, archives, and object storage.

Signatures are compiled into two deterministic tries, one matched only at
offset 0 and one matched at every offset.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML configuration file")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(githubCmd)
	rootCmd.AddCommand(gitlabCmd)
	rootCmd.AddCommand(signaturesCmd)
	rootCmd.AddCommand(trieCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exploreCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger() *slog.Logger {
	return logging.New(logging.Level(verbose, quiet))
}

func loadConfig() (*config.File, error) {
	return config.Load(configPath)
}
