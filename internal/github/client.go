// Package github implements the slice of the GitHub Actions REST API the
// awaiter needs: reading a workflow run's state and listing its jobs.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/ftos-forks/await-remote-run/internal/metrics"
	"github.com/ftos-forks/await-remote-run/pkg/types"
)

const (
	defaultBaseURL   = "https://api.github.com"
	defaultUserAgent = "await-remote-run"
	defaultTimeout   = 30 * time.Second

	// jobsPerPage is the maximum page size the jobs endpoint allows.
	jobsPerPage = 100

	breakerFailThreshold = 5
	breakerCooldown      = 30 * time.Second

	preflightInitialInterval = 500 * time.Millisecond
	preflightMaxInterval     = 5 * time.Second
	preflightMaxElapsed      = 30 * time.Second
)

// Operation names used in errors and logs.
const (
	opGetRun     = "get workflow run state"
	opListJobs   = "list workflow run jobs"
	opVerifyRepo = "verify repository access"
)

// StatusError reports a response whose HTTP status did not match the expected
// one. Its message names the operation and both codes.
type StatusError struct {
	Operation string
	Expected  int
	Actual    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: expected status %d, received %d", e.Operation, e.Expected, e.Actual)
}

// Client reads workflow run state for a single repository.
type Client struct {
	baseURL    string
	owner      string
	repo       string
	token      string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger

	useBreaker bool
	breaker    *gobreaker.CircuitBreaker
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a GitHub Enterprise Server instance or a
// test server.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger routes client logs to a specific logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCircuitBreaker guards the wire with a circuit breaker: after five
// consecutive failed exchanges, calls fail fast locally for a cooldown and a
// single probe then decides whether to close again. Status answers below 500
// are exchanges that worked and never trip it.
func WithCircuitBreaker() ClientOption {
	return func(c *Client) {
		c.useBreaker = true
	}
}

// NewClient creates a client for one repository. The defaults suit
// production; tests override the base URL and HTTP client.
func NewClient(owner, repo, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		owner:      owner,
		repo:       repo,
		token:      token,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.useBreaker {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "github-api",
			Timeout: breakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailThreshold
			},
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				var se *StatusError
				return errors.As(err, &se) && se.Actual < http.StatusInternalServerError
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return c
}

// GetWorkflowRun fetches the run's current status and conclusion.
func (c *Client) GetWorkflowRun(ctx context.Context, runID int64) (types.RunState, error) {
	var state types.RunState
	path := fmt.Sprintf("/repos/%s/%s/actions/runs/%d", c.owner, c.repo, runID)
	if err := c.getJSON(ctx, opGetRun, path, &state); err != nil {
		return types.RunState{}, err
	}
	return state, nil
}

type jobsPage struct {
	TotalCount int         `json:"total_count"`
	Jobs       []types.Job `json:"jobs"`
}

// ListWorkflowRunJobs fetches every job of the run, following pagination so a
// large matrix is never truncated. Jobs and their steps keep API order.
func (c *Client) ListWorkflowRunJobs(ctx context.Context, runID int64) ([]types.Job, error) {
	var jobs []types.Job
	for page := 1; ; page++ {
		var out jobsPage
		path := fmt.Sprintf("/repos/%s/%s/actions/runs/%d/jobs?per_page=%d&page=%d",
			c.owner, c.repo, runID, jobsPerPage, page)
		if err := c.getJSON(ctx, opListJobs, path, &out); err != nil {
			return nil, err
		}
		jobs = append(jobs, out.Jobs...)
		if len(out.Jobs) == 0 || len(jobs) >= out.TotalCount {
			return jobs, nil
		}
	}
}

// VerifyAccess confirms the token can reach the repository before any polling
// starts, retrying transient failures with exponential backoff. A 4xx answer
// is permanent: waiting does not make bad credentials good.
func (c *Client) VerifyAccess(ctx context.Context) error {
	check := func() error {
		err := c.getJSON(ctx, opVerifyRepo, fmt.Sprintf("/repos/%s/%s", c.owner, c.repo), nil)
		var se *StatusError
		if errors.As(err, &se) && se.Actual >= 400 && se.Actual < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(preflightInitialInterval),
		backoff.WithMaxInterval(preflightMaxInterval),
		backoff.WithMaxElapsedTime(preflightMaxElapsed),
	)
	if err := backoff.Retry(check, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("github api not reachable after %s: %w", preflightMaxElapsed, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	metrics.APIRequests.Add(1)
	var err error
	if c.useBreaker {
		_, err = c.breaker.Execute(func() (any, error) {
			return nil, c.do(ctx, op, path, out)
		})
	} else {
		err = c.do(ctx, op, path, out)
	}
	if err != nil {
		metrics.APIFailures.Add(1)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return err
}

func (c *Client) do(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.baseURL, "/")+path, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug("github api request", "operation", op, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Operation: op, Expected: http.StatusOK, Actual: resp.StatusCode}
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}
