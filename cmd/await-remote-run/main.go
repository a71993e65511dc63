package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ftos-forks/await-remote-run/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "await-remote-run",
		Short: "Wait for a GitHub Actions workflow run to conclude",
		Long: `await-remote-run watches a GitHub Actions workflow run from the outside:
it resolves the run's live job URL so the log can be followed in a browser,
polls until the run concludes or a budget expires, and exits non-zero on
anything but success. It is built for pipelines that dispatch a workflow in
another repository and need to gate on its result.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewAwaitCmd(),
		commands.NewJobsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
