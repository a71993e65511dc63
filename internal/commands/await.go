package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ftos-forks/await-remote-run/internal/await"
	"github.com/ftos-forks/await-remote-run/internal/config"
	"github.com/ftos-forks/await-remote-run/internal/resolver"
	"github.com/ftos-forks/await-remote-run/pkg/types"
)

// NewAwaitCmd creates the await command.
func NewAwaitCmd() *cobra.Command {
	var (
		flags          commonFlags
		runID          int64
		runTimeout     time.Duration
		pollInterval   time.Duration
		jobURLTimeout  time.Duration
		jobURLInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "await [run-id]",
		Short: "Wait for a workflow run to conclude",
		Long: `Await polls a GitHub Actions workflow run until it concludes or the run
timeout expires. While waiting it resolves and prints the URL of the run's
active job so the live log can be followed in a browser. A conclusion other
than success, and a timeout, exit non-zero.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := runIDFromArgs(args, runID)
			if err != nil {
				return err
			}

			cfg, err := resolveConfig(&flags)
			if err != nil {
				return err
			}
			fl := cmd.Flags()
			if fl.Changed("run-timeout") {
				cfg.Await.RunTimeout = runTimeout.String()
			}
			if fl.Changed("poll-interval") {
				cfg.Await.PollInterval = pollInterval.String()
			}
			if fl.Changed("job-url-timeout") {
				cfg.Await.JobURLTimeout = jobURLTimeout.String()
			}
			if fl.Changed("job-url-interval") {
				cfg.Await.JobURLInterval = jobURLInterval.String()
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runAwait(cfg, flags.verbose, id)
		},
	}

	flags.register(cmd)
	cmd.Flags().Int64Var(&runID, "run-id", 0, "Workflow run to wait for")
	cmd.Flags().DurationVar(&runTimeout, "run-timeout", config.DefaultRunTimeout, "How long to wait for the run to conclude")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", await.DefaultPollInterval, "Pause between run state polls")
	cmd.Flags().DurationVar(&jobURLTimeout, "job-url-timeout", config.DefaultJobURLTimeout, "How long to look for the active job URL")
	cmd.Flags().DurationVar(&jobURLInterval, "job-url-interval", resolver.DefaultInterval, "Pause between job URL probes")
	return cmd
}

func runAwait(cfg *config.Config, verbose bool, runID int64) error {
	logger := newLogger(verbose)
	client := newClient(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.VerifyAccess(ctx); err != nil {
		return fmt.Errorf("checking repository access: %w", err)
	}

	res := resolver.New(client,
		resolver.WithInterval(cfg.JobURLInterval()),
		resolver.WithLogger(logger))
	url, err := res.FindActiveJobURLWithRetry(ctx, runID, cfg.JobURLTimeout())
	if err != nil {
		return fmt.Errorf("locating active job: %w", err)
	}
	color.Cyan("You can watch the progress of run %d here:", runID)
	fmt.Printf("  %s\n", url)

	aw := await.New(client,
		await.WithPollInterval(cfg.PollInterval()),
		await.WithLogger(logger))
	outcome, err := aw.Await(ctx, runID, cfg.RunTimeout())
	if err != nil {
		if ctx.Err() != nil {
			color.Yellow("\nInterrupted, giving up on run %d", runID)
		}
		return err
	}

	printOutcome(runID, outcome)
	if !outcome.Conclusion.OK() {
		return fmt.Errorf("run %d concluded with %s", runID, outcome.Conclusion)
	}
	return nil
}

func printOutcome(runID int64, outcome await.Outcome) {
	fmt.Println()
	if outcome.Conclusion.OK() {
		color.Green("Run %d concluded: %s ✓", runID, outcome.Conclusion)
		return
	}
	color.Red("Run %d concluded: %s ✗", runID, outcome.Conclusion)
	printFailedJobs(outcome.FailedJobs)
}

func printFailedJobs(jobs []types.Job) {
	if len(jobs) == 0 {
		return
	}
	bold := color.New(color.Bold)
	fmt.Println()
	_, _ = bold.Println("Failed jobs:")
	for _, job := range jobs {
		color.Red("  ✗ %s", job.Name)
		if job.URL != "" {
			fmt.Printf("    %s\n", job.URL)
		}
		for _, step := range job.Steps {
			printStep(step)
		}
	}
}

func printStep(step types.Step) {
	switch step.Conclusion {
	case types.ConclusionSuccess:
		color.Green("    ✓ %d. %s", step.Number, step.Name)
	case types.ConclusionFailure:
		color.Red("    ✗ %d. %s", step.Number, step.Name)
	case types.ConclusionSkipped:
		color.Yellow("    ○ %d. %s", step.Number, step.Name)
	case "":
		fmt.Printf("    · %d. %s (%s)\n", step.Number, step.Name, step.Status)
	default:
		fmt.Printf("    · %d. %s (%s)\n", step.Number, step.Name, step.Conclusion)
	}
}
