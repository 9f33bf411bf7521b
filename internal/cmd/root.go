// Package cmd wires the goconflux CLI: server lifecycle, direct ingestion,
// and job inspection.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/3leaps/goconflux/internal/config"
	"github.com/3leaps/goconflux/internal/observability"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{Version: "dev", Commit: "HEAD", BuildDate: "unknown"}

// SetVersionInfo records build metadata injected via ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "goconflux",
	Short: "Asynchronous ticket ingestion and enrichment service",
	Long: `goconflux ingests bulk ticket data (CSV uploads, JSON batches, parquet
files), enriches each record through an ML sentiment and entity service, and
synchronizes the results across a relational store, an analytical store, and
a search index.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if flagConfig != "" {
			if err := os.Setenv("GOCONFLUX_CONFIG", flagConfig); err != nil {
				return err
			}
		}

		var overrides []map[string]any
		if flagLogLevel != "" {
			overrides = append(overrides, map[string]any{
				"logging": map[string]any{"level": flagLogLevel},
			})
		}

		cfg, err := config.Load(cmd.Context(), overrides...)
		if err != nil {
			return err
		}
		return observability.Init(cfg.Logging.Level, cfg.Logging.Profile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// Execute runs the CLI.
func Execute() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
