// Package resolver locates the job URL a viewer should watch while a
// workflow run executes.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ftos-forks/await-remote-run/internal/clock"
	"github.com/ftos-forks/await-remote-run/internal/metrics"
	"github.com/ftos-forks/await-remote-run/pkg/types"
)

// DefaultInterval is the pause between probes in FindActiveJobURLWithRetry.
const DefaultInterval = 2500 * time.Millisecond

const (
	// MissingURLMessage stands in for a job GitHub reported without a URL,
	// so callers still have something to print.
	MissingURLMessage = "GitHub failed to return the URL"
	// TimeoutMessage is returned when no job URL turned up within the
	// polling budget.
	TimeoutMessage = "Unable to fetch URL"
)

// JobsAPI is the slice of the GitHub client the resolver consumes.
type JobsAPI interface {
	ListWorkflowRunJobs(ctx context.Context, runID int64) ([]types.Job, error)
}

// Resolver finds the active job of a workflow run. It keeps no state between
// calls; every probe works from a fresh job listing.
type Resolver struct {
	api      JobsAPI
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// Option adjusts a Resolver's collaborators and tuning.
type Option func(*Resolver)

// WithInterval overrides the pause between probes.
func WithInterval(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithClock substitutes the time source, for deterministic tests.
func WithClock(c clock.Clock) Option {
	return func(r *Resolver) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger routes resolver logs to a specific logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Resolver over the given API surface.
func New(api JobsAPI, opts ...Option) *Resolver {
	r := &Resolver{
		api:      api,
		interval: DefaultInterval,
		clock:    clock.System{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindActiveJobURL inspects the run's jobs once and returns the URL of the
// job a viewer would want to watch: the first in-progress job, or the first
// completed one when nothing is running anymore. An empty string means the
// run has no active job yet; API failures propagate to the caller. A selected
// job whose URL GitHub omitted yields MissingURLMessage.
func (r *Resolver) FindActiveJobURL(ctx context.Context, runID int64) (string, error) {
	metrics.JobURLProbes.Add(1)
	jobs, err := r.api.ListWorkflowRunJobs(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("find active job url: %w", err)
	}

	job, ok := selectActiveJob(jobs)
	if !ok {
		return "", nil
	}
	if job.URL == "" {
		return MissingURLMessage, nil
	}
	return job.URL, nil
}

// FindActiveJobURLWithRetry probes until a non-empty answer turns up or the
// budget elapses, pausing the configured interval between probes. A probe is
// scheduled only after the previous one settles, so a slow API never causes
// overlapping requests. The budget is measured once, from entry; when it runs
// out the method returns TimeoutMessage. Probe failures propagate immediately
// rather than being retried.
func (r *Resolver) FindActiveJobURLWithRetry(ctx context.Context, runID int64, timeout time.Duration) (string, error) {
	deadline := r.clock.Now().Add(timeout)
	for {
		if !r.clock.Now().Before(deadline) {
			metrics.JobURLTimeouts.Add(1)
			r.logger.Debug("no job url within budget", "run_id", runID, "timeout", timeout)
			return TimeoutMessage, nil
		}

		url, err := r.FindActiveJobURL(ctx, runID)
		if err != nil {
			return "", err
		}
		if url != "" {
			return url, nil
		}

		r.logger.Debug("no active job url yet", "run_id", runID)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-r.clock.After(r.interval):
		}
	}
}

// selectActiveJob picks the job to surface, preferring running work over
// finished work. Scans preserve listing order, so ties resolve to the first
// match every time.
func selectActiveJob(jobs []types.Job) (types.Job, bool) {
	for _, j := range jobs {
		if j.Status == types.StatusInProgress {
			return j, true
		}
	}
	for _, j := range jobs {
		if j.Status == types.StatusCompleted {
			return j, true
		}
	}
	return types.Job{}, false
}
