package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ftos-forks/await-remote-run/internal/config"
	"github.com/ftos-forks/await-remote-run/internal/resolver"
	"github.com/ftos-forks/await-remote-run/pkg/types"
)

const jobsTimeout = 30 * time.Second

// NewJobsCmd creates the jobs command.
func NewJobsCmd() *cobra.Command {
	var (
		flags commonFlags
		runID int64
	)

	cmd := &cobra.Command{
		Use:   "jobs [run-id]",
		Short: "List the jobs of a workflow run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := runIDFromArgs(args, runID)
			if err != nil {
				return err
			}

			cfg, err := resolveConfig(&flags)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runJobs(cfg, flags.verbose, id)
		},
	}

	flags.register(cmd)
	cmd.Flags().Int64Var(&runID, "run-id", 0, "Workflow run to inspect")
	return cmd
}

func runJobs(cfg *config.Config, verbose bool, runID int64) error {
	logger := newLogger(verbose)
	client := newClient(cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), jobsTimeout)
	defer cancel()

	jobs, err := client.ListWorkflowRunJobs(ctx, runID)
	if err != nil {
		return fmt.Errorf("listing jobs: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs reported for this run yet.")
		return nil
	}

	bold := color.New(color.Bold)
	_, _ = bold.Printf("Jobs for run %d:\n", runID)
	for _, job := range jobs {
		fmt.Printf("  %-40s %s\n", job.Name, jobStateString(job))
		for _, step := range job.Steps {
			printStep(step)
		}
	}

	res := resolver.New(client, resolver.WithLogger(logger))
	url, err := res.FindActiveJobURL(ctx, runID)
	if err != nil {
		return fmt.Errorf("locating active job: %w", err)
	}
	if url != "" {
		fmt.Println()
		fmt.Printf("Active job: %s\n", url)
	}
	return nil
}

func jobStateString(job types.Job) string {
	if !job.Status.Terminal() {
		return color.CyanString(string(job.Status))
	}
	switch job.Conclusion {
	case types.ConclusionSuccess:
		return color.GreenString(string(job.Conclusion))
	case types.ConclusionFailure:
		return color.RedString(string(job.Conclusion))
	case types.ConclusionCancelled, types.ConclusionTimedOut:
		return color.YellowString(string(job.Conclusion))
	default:
		return string(job.Conclusion)
	}
}
