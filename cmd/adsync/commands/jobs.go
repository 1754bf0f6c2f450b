package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arcline/adsync/errors"
	"github.com/arcline/adsync/pulse/async"
)

// JobsCmd represents the jobs command
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect async sync jobs",
	Long: `jobs - Inspect the async sync job queue

Examples:
  adsync jobs ls                     # List recent jobs
  adsync jobs ls --status queued     # List queued jobs only
  adsync jobs show job-abc123        # Show one job in detail`,
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs from the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobsLs(cmd, jobsStatusFlag, jobsLimitFlag)
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show detailed status for a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobsShow(cmd, args[0])
	},
}

var (
	jobsStatusFlag string
	jobsLimitFlag  int
)

func init() {
	jobsLsCmd.Flags().StringVar(&jobsStatusFlag, "status", "", "Filter by status (queued, running, completed, failed, cancelled)")
	jobsLsCmd.Flags().IntVar(&jobsLimitFlag, "limit", 20, "Maximum jobs to show")

	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsShowCmd)
}

func runJobsLs(cmd *cobra.Command, statusFilter string, limit int) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	queue := async.NewQueue(database)

	var status *async.JobStatus
	if statusFilter != "" {
		s := async.JobStatus(statusFilter)
		if !async.IsValidStatus(s) {
			return errors.Newf("invalid status filter: %s", statusFilter)
		}
		status = &s
	}

	jobs, err := queue.ListJobs(status, limit)
	if err != nil {
		return errors.Wrap(err, "failed to list jobs")
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-45s %-12s %-12s %-30s %-12s %s\n", "JOB ID", "STATUS", "HANDLER", "SOURCE", "PROGRESS", "CREATED")
	for _, job := range jobs {
		progress := fmt.Sprintf("%d/%d", job.Progress.Current, job.Progress.Total)
		fmt.Printf("%-45s %-12s %-12s %-30s %-12s %s\n",
			job.ID,
			job.Status,
			truncate(job.HandlerName, 12),
			truncate(job.Source, 30),
			progress,
			job.CreatedAt.Format("2006-01-02 15:04"))
	}

	fmt.Printf("\nTotal: %d job(s)\n", len(jobs))
	return nil
}

func runJobsShow(cmd *cobra.Command, jobID string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	queue := async.NewQueue(database)

	job, err := queue.GetJob(jobID)
	if err != nil {
		return errors.Wrapf(err, "failed to get job %s", jobID)
	}

	fmt.Printf("Job:      %s\n", job.ID)
	fmt.Printf("Handler:  %s\n", job.HandlerName)
	fmt.Printf("Source:   %s\n", job.Source)
	fmt.Printf("Status:   %s\n", job.Status)
	fmt.Printf("Progress: %d/%d (%.0f%%)\n", job.Progress.Current, job.Progress.Total, job.Progress.Percentage())
	fmt.Printf("Retries:  %d\n", job.RetryCount)
	fmt.Printf("Created:  %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
	if job.StartedAt != nil {
		fmt.Printf("Started:  %s\n", job.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if job.CompletedAt != nil {
		fmt.Printf("Finished: %s\n", job.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if job.Error != "" {
		fmt.Printf("Error:    %s\n", job.Error)
	}
	if len(job.Payload) > 0 {
		fmt.Printf("Payload:  %s\n", string(job.Payload))
	}

	children, err := queue.ListTasksByParent(job.ID)
	if err == nil && len(children) > 0 {
		fmt.Printf("\nChild jobs (%d):\n", len(children))
		for _, child := range children {
			fmt.Printf("  %-45s %s\n", child.ID, child.Status)
		}
	}

	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
