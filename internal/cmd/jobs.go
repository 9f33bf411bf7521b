package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/goconflux/internal/config"
	"github.com/3leaps/goconflux/pkg/jobtracker"
	"github.com/3leaps/goconflux/pkg/ticketstore"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect ingestion jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingestion jobs, newest first",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show status for one job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)

	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsListCmd.Flags().String("status", "", "Filter by status: queued, running, completed, failed")
	jobsListCmd.Flags().Int("limit", 50, "Maximum jobs to show")
	jobsListCmd.Flags().Int("offset", 0, "Pagination offset")
	jobsStatusCmd.Flags().Bool("json", false, "Output as JSON")
}

func openTracker(cmd *cobra.Command) (*jobtracker.Tracker, func(), error) {
	cfg := config.GetConfig()
	db, err := ticketstore.Open(cmd.Context(), ticketstore.Config{Path: cfg.Stores.Relational.Path})
	if err != nil {
		return nil, nil, fmt.Errorf("open relational store: %w", err)
	}
	if err := ticketstore.Migrate(cmd.Context(), db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate relational store: %w", err)
	}
	return jobtracker.New(db, zap.NewNop()), func() { _ = db.Close() }, nil
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	statusFilter, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	tracker, closeDB, err := openTracker(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	jobs, err := tracker.List(cmd.Context(), jobtracker.Status(statusFilter), limit, offset)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No jobs found")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tLABEL\tSTATUS\tSUBMITTED\tPROCESSED\tFAILED\tLAG")
	for _, j := range jobs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			j.JobID, j.OriginLabel, j.Status,
			j.SubmittedAt.Local().Format(time.RFC3339),
			j.RecordsProcessed, j.RecordsFailed, j.LagWarnings)
	}
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	tracker, closeDB, err := openTracker(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	job, err := tracker.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintf(w, "Job ID:\t%s\n", job.JobID)
	_, _ = fmt.Fprintf(w, "Label:\t%s\n", job.OriginLabel)
	_, _ = fmt.Fprintf(w, "Kind:\t%s\n", job.SourceKind)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", job.Status)
	_, _ = fmt.Fprintf(w, "Submitted:\t%s\n", job.SubmittedAt.Local().Format(time.RFC3339))
	if job.StartedAt != nil {
		_, _ = fmt.Fprintf(w, "Started:\t%s\n", job.StartedAt.Local().Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		_, _ = fmt.Fprintf(w, "Completed:\t%s\n", job.CompletedAt.Local().Format(time.RFC3339))
	}
	if job.RecordsTotal != nil {
		_, _ = fmt.Fprintf(w, "Total records:\t%d\n", *job.RecordsTotal)
	}
	_, _ = fmt.Fprintf(w, "Processed:\t%d\n", job.RecordsProcessed)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", job.RecordsFailed)
	_, _ = fmt.Fprintf(w, "Sentiment rows:\t%d\n", job.SentimentRecords)
	_, _ = fmt.Fprintf(w, "Entity rows:\t%d\n", job.EntityRecords)
	_, _ = fmt.Fprintf(w, "Lag warnings:\t%d\n", job.LagWarnings)
	if job.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", job.Error)
	}
	return nil
}
