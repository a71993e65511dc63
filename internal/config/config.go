// Package config handles loading and validation of await.yaml configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ftos-forks/await-remote-run/internal/await"
	"github.com/ftos-forks/await-remote-run/internal/resolver"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "await.yaml"

// Defaults applied when neither the file nor a flag specifies a value.
const (
	DefaultRunTimeout    = 5 * time.Minute
	DefaultJobURLTimeout = time.Minute
)

// Config carries everything the awaiter CLI needs.
type Config struct {
	GitHub GitHubConfig `yaml:"github"`
	Await  AwaitConfig  `yaml:"await"`
}

// GitHubConfig identifies the repository and API endpoint. The token is never
// read from the file; it comes from the environment or a flag.
type GitHubConfig struct {
	Owner  string `yaml:"owner,omitempty"`
	Repo   string `yaml:"repo,omitempty"`
	APIURL string `yaml:"apiUrl,omitempty"`
	Token  string `yaml:"-"`
}

// AwaitConfig tunes the polling budgets and cadences. Durations use Go
// syntax, for example "90s" or "10m".
type AwaitConfig struct {
	RunTimeout     string `yaml:"runTimeout,omitempty"`
	PollInterval   string `yaml:"pollInterval,omitempty"`
	JobURLTimeout  string `yaml:"jobUrlTimeout,omitempty"`
	JobURLInterval string `yaml:"jobUrlInterval,omitempty"`
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// LoadDefault loads DefaultFile from the working directory. A missing file is
// not an error; the zero config is returned instead.
func LoadDefault() (*Config, error) {
	cfg, err := Load(DefaultFile)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	return cfg, err
}

// ApplyEnv fills gaps from the standard GitHub environment variables:
// GITHUB_TOKEN, GITHUB_REPOSITORY ("owner/repo") and GITHUB_API_URL.
func (c *Config) ApplyEnv() {
	if c.GitHub.Token == "" {
		c.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
	if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
		if owner, repo, ok := strings.Cut(os.Getenv("GITHUB_REPOSITORY"), "/"); ok {
			if c.GitHub.Owner == "" {
				c.GitHub.Owner = owner
			}
			if c.GitHub.Repo == "" {
				c.GitHub.Repo = repo
			}
		}
	}
	if c.GitHub.APIURL == "" {
		c.GitHub.APIURL = os.Getenv("GITHUB_API_URL")
	}
}

// Validate checks required fields and duration syntax.
func (c *Config) Validate() error {
	if c.GitHub.Token == "" {
		return fmt.Errorf("github token is required (set GITHUB_TOKEN or --token)")
	}
	if c.GitHub.Owner == "" {
		return fmt.Errorf("github.owner is required")
	}
	if c.GitHub.Repo == "" {
		return fmt.Errorf("github.repo is required")
	}
	durations := []struct {
		name string
		raw  string
	}{
		{"await.runTimeout", c.Await.RunTimeout},
		{"await.pollInterval", c.Await.PollInterval},
		{"await.jobUrlTimeout", c.Await.JobURLTimeout},
		{"await.jobUrlInterval", c.Await.JobURLInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil || parsed <= 0 {
			return fmt.Errorf("%s: invalid duration %q", d.name, d.raw)
		}
	}
	return nil
}

// RunTimeout returns the overall await budget.
func (c *Config) RunTimeout() time.Duration {
	return duration(c.Await.RunTimeout, DefaultRunTimeout)
}

// PollInterval returns the pause between run state polls.
func (c *Config) PollInterval() time.Duration {
	return duration(c.Await.PollInterval, await.DefaultPollInterval)
}

// JobURLTimeout returns the budget for resolving the run's job URL.
func (c *Config) JobURLTimeout() time.Duration {
	return duration(c.Await.JobURLTimeout, DefaultJobURLTimeout)
}

// JobURLInterval returns the pause between job URL probes.
func (c *Config) JobURLInterval() time.Duration {
	return duration(c.Await.JobURLInterval, resolver.DefaultInterval)
}

func duration(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
