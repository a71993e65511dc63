// Package commands implements the CLI subcommands for the await-remote-run binary.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/ftos-forks/await-remote-run/internal/config"
	"github.com/ftos-forks/await-remote-run/internal/github"
)

// commonFlags are the connection flags shared by every subcommand.
type commonFlags struct {
	configFile string
	owner      string
	repo       string
	token      string
	apiURL     string
	verbose    bool
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configFile, "config", "", "Path to config file (default "+config.DefaultFile+")")
	cmd.Flags().StringVar(&f.owner, "owner", "", "Repository owner")
	cmd.Flags().StringVar(&f.repo, "repo", "", "Repository name")
	cmd.Flags().StringVar(&f.token, "token", "", "GitHub API token (defaults to GITHUB_TOKEN)")
	cmd.Flags().StringVar(&f.apiURL, "api-url", "", "GitHub API base URL, for GitHub Enterprise")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Enable debug logging")
}

// resolveConfig loads the config file and overlays flag and environment
// values onto it. Explicit flags win over the file, the file wins over the
// environment. Validation is left to the caller so commands can apply their
// own flags first.
func resolveConfig(f *commonFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configFile != "" {
		cfg, err = config.Load(f.configFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if f.owner != "" {
		cfg.GitHub.Owner = f.owner
	}
	if f.repo != "" {
		cfg.GitHub.Repo = f.repo
	}
	if f.token != "" {
		cfg.GitHub.Token = f.token
	}
	if f.apiURL != "" {
		cfg.GitHub.APIURL = f.apiURL
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// newLogger builds the session logger. Records go to stderr as JSON so CI log
// collectors can pick them up without disturbing the stdout report, and every
// record carries a session ULID for correlating concurrent invocations.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("session", ulid.Make().String())
}

// newClient creates the GitHub API client for the resolved configuration.
func newClient(cfg *config.Config, logger *slog.Logger) *github.Client {
	opts := []github.ClientOption{
		github.WithLogger(logger),
		github.WithCircuitBreaker(),
	}
	if cfg.GitHub.APIURL != "" {
		opts = append(opts, github.WithBaseURL(cfg.GitHub.APIURL))
	}
	return github.NewClient(cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.GitHub.Token, opts...)
}

func parseRunID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run id %q", s)
	}
	return id, nil
}

// runIDFromArgs resolves the run id from the positional argument or the
// --run-id flag, preferring the argument.
func runIDFromArgs(args []string, flagValue int64) (int64, error) {
	if len(args) > 0 {
		return parseRunID(args[0])
	}
	if flagValue <= 0 {
		return 0, fmt.Errorf("a run id is required (pass it as an argument or with --run-id)")
	}
	return flagValue, nil
}
