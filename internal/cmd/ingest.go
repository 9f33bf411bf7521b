package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/goconflux/internal/config"
	"github.com/3leaps/goconflux/internal/observability"
	"github.com/3leaps/goconflux/pkg/ingest"
	"github.com/3leaps/goconflux/pkg/jobtracker"
	"github.com/3leaps/goconflux/pkg/manifest"
	"github.com/3leaps/goconflux/pkg/reader"
	"github.com/3leaps/goconflux/pkg/source"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run ingestion jobs directly, without the API server",
	Long: `Ingest submits one job per source and processes them in-process,
printing a summary when all jobs reach a terminal state.

Sources come from --file, --glob, or a manifest passed with --job.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().String("file", "", "Path or s3:// URI of a single source")
	ingestCmd.Flags().String("kind", "", "Source kind: csv, json, or parquet (default: from extension)")
	ingestCmd.Flags().String("label", "", "Display label for the job")
	ingestCmd.Flags().String("glob", "", "Glob pattern; one job per matching file")
	ingestCmd.Flags().String("job", "", "Path to an ingestion manifest (YAML or JSON)")
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfg := config.GetConfig()
	logger := observability.CLILogger

	entries, err := collectEntries(cmd, cfg)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("nothing to ingest: pass --file, --glob, or --job")
	}

	ctx := cmd.Context()
	stack, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintln(w, "JOB ID\tLABEL\tSTATUS\tPROCESSED\tFAILED\tERROR")

	var failures int
	for _, entry := range entries {
		job, err := runOneEntry(cmd, stack, cfg, entry)
		if err != nil {
			return err
		}
		if job.Status != jobtracker.StatusCompleted {
			failures++
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			job.JobID, job.OriginLabel, job.Status,
			job.RecordsProcessed, job.RecordsFailed, job.Error)
	}

	if failures > 0 {
		_ = w.Flush()
		return fmt.Errorf("%d of %d jobs failed", failures, len(entries))
	}
	return nil
}

func collectEntries(cmd *cobra.Command, cfg *config.Config) ([]manifest.SourceEntry, error) {
	var entries []manifest.SourceEntry

	if path, _ := cmd.Flags().GetString("job"); path != "" {
		m, err := manifest.Load(path)
		if err != nil {
			return nil, err
		}
		if m.Options != nil && m.Options.ChunkSize > 0 {
			cfg.Ingest.ChunkSize = m.Options.ChunkSize
		}
		entries = append(entries, m.Sources...)
	}

	kind, _ := cmd.Flags().GetString("kind")
	label, _ := cmd.Flags().GetString("label")

	if file, _ := cmd.Flags().GetString("file"); file != "" {
		k, err := resolveKind(kind, file)
		if err != nil {
			return nil, err
		}
		entries = append(entries, manifest.SourceEntry{Kind: k, URI: file, Label: label})
	}

	if pattern, _ := cmd.Flags().GetString("glob"); pattern != "" {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("expand glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("glob %q matched no files", pattern)
		}
		for _, match := range matches {
			k, err := resolveKind(kind, match)
			if err != nil {
				return nil, err
			}
			entries = append(entries, manifest.SourceEntry{Kind: k, URI: match})
		}
	}

	return entries, nil
}

func runOneEntry(cmd *cobra.Command, stack *appStack, cfg *config.Config, entry manifest.SourceEntry) (*jobtracker.Job, error) {
	ctx := cmd.Context()

	readerKind, err := readerKindFor(entry.Kind)
	if err != nil {
		return nil, err
	}

	s3opts := s3OptionsFromConfig(cfg)
	if entry.S3 != nil {
		if entry.S3.Region != "" {
			s3opts.Region = entry.S3.Region
		}
		if entry.S3.Endpoint != "" {
			s3opts.Endpoint = entry.S3.Endpoint
		}
		if entry.S3.Profile != "" {
			s3opts.Profile = entry.S3.Profile
		}
		if entry.S3.ForcePathStyle {
			s3opts.ForcePathStyle = true
		}
	}

	src, err := source.Resolve(ctx, entry.URI, source.Options{S3: s3opts})
	if err != nil {
		return nil, fmt.Errorf("resolve source %s: %w", entry.URI, err)
	}
	defer func() { _ = src.Close() }()

	label := entry.Label
	if label == "" {
		label = src.Label()
	}

	jobID := uuid.NewString()
	if err := stack.tracker.Create(ctx, &jobtracker.Job{
		JobID:       jobID,
		SourceKind:  string(readerKind),
		OriginLabel: label,
	}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	observability.CLILogger.Info("ingesting",
		zap.String("job_id", jobID),
		zap.String("source", entry.URI),
		zap.String("kind", entry.Kind))

	if err := stack.runner.Run(ctx, ingest.Request{
		JobID:  jobID,
		Kind:   readerKind,
		Source: src,
		Label:  label,
	}); err != nil {
		return nil, err
	}

	return stack.tracker.Get(ctx, jobID)
}

func resolveKind(flag, uri string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	switch strings.ToLower(filepath.Ext(uri)) {
	case ".csv":
		return "csv", nil
	case ".json":
		return "json", nil
	case ".parquet":
		return "parquet", nil
	}
	return "", fmt.Errorf("cannot infer source kind for %s: pass --kind", uri)
}

func readerKindFor(kind string) (reader.Kind, error) {
	switch kind {
	case "csv":
		return reader.KindCSV, nil
	case "json":
		return reader.KindJSONBatch, nil
	case "parquet":
		return reader.KindColumnar, nil
	}
	return "", fmt.Errorf("unknown source kind: %s", kind)
}
