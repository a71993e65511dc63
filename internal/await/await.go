// Package await drives a workflow run to its conclusion and reports the
// outcome.
package await

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ftos-forks/await-remote-run/internal/clock"
	"github.com/ftos-forks/await-remote-run/internal/metrics"
	"github.com/ftos-forks/await-remote-run/internal/retry"
	"github.com/ftos-forks/await-remote-run/pkg/types"
)

// DefaultPollInterval is the pause between run state polls.
const DefaultPollInterval = 5 * time.Second

// reportBudget bounds the best-effort fetch of failed jobs after a run
// concludes without success.
const reportBudget = 30 * time.Second

// ErrTimedOut reports that the run did not conclude within the budget.
var ErrTimedOut = errors.New("await timed out")

// ActionsAPI is the slice of the GitHub client the awaiter consumes.
type ActionsAPI interface {
	GetWorkflowRun(ctx context.Context, runID int64) (types.RunState, error)
	ListWorkflowRunJobs(ctx context.Context, runID int64) ([]types.Job, error)
}

// Outcome describes how an awaited run ended. FailedJobs is populated only
// for non-success conclusions, and only as far as the report fetch succeeded.
type Outcome struct {
	Conclusion types.Conclusion
	FailedJobs []types.Job
}

// Awaiter polls a workflow run until it concludes or a budget expires. Each
// state fetch is wrapped in the retry loop with whatever budget remains, so
// transient API failures are absorbed and logged rather than surfaced.
type Awaiter struct {
	api          ActionsAPI
	pollInterval time.Duration
	clock        clock.Clock
	logger       *slog.Logger
}

// Option adjusts an Awaiter's collaborators and tuning.
type Option func(*Awaiter)

// WithPollInterval overrides the pause between run state polls.
func WithPollInterval(d time.Duration) Option {
	return func(a *Awaiter) {
		if d > 0 {
			a.pollInterval = d
		}
	}
}

// WithClock substitutes the time source, for deterministic tests.
func WithClock(c clock.Clock) Option {
	return func(a *Awaiter) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithLogger routes awaiter logs to a specific logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Awaiter) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Awaiter over the given API surface.
func New(api ActionsAPI, opts ...Option) *Awaiter {
	a := &Awaiter{
		api:          api,
		pollInterval: DefaultPollInterval,
		clock:        clock.System{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Await polls the run until it reaches a terminal status, then maps its
// conclusion: success yields a clean Outcome, any other recognized conclusion
// yields an Outcome carrying the failed jobs, and a conclusion this version
// does not know is an error. The budget is measured once, from entry; when it
// runs out Await returns ErrTimedOut no matter how many polls completed.
func (a *Awaiter) Await(ctx context.Context, runID int64, timeout time.Duration) (Outcome, error) {
	deadline := a.clock.Now().Add(timeout)

	for attempt := 1; ; attempt++ {
		remaining := deadline.Sub(a.clock.Now())
		if remaining <= 0 {
			return Outcome{}, fmt.Errorf("run %d did not conclude within %s: %w", runID, timeout, ErrTimedOut)
		}

		metrics.RunPolls.Add(1)
		fetched := retry.OnError(ctx, func(ctx context.Context) (types.RunState, error) {
			return a.api.GetWorkflowRun(ctx, runID)
		}, remaining, retry.WithLabel("get workflow run state"), retry.WithClock(a.clock), retry.WithLogger(a.logger))
		if !fetched.Success {
			return Outcome{}, fmt.Errorf("run %d did not conclude within %s: %w", runID, timeout, ErrTimedOut)
		}

		state := fetched.Value
		if state.Concluded() {
			return a.conclude(ctx, runID, state.Conclusion)
		}

		a.logger.Debug("run not concluded yet", "run_id", runID, "status", state.Status, "attempt", attempt)
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-a.clock.After(a.pollInterval):
		}
	}
}

func (a *Awaiter) conclude(ctx context.Context, runID int64, conclusion types.Conclusion) (Outcome, error) {
	switch conclusion {
	case types.ConclusionSuccess:
		a.logger.Info("workflow run concluded successfully", "run_id", runID)
		return Outcome{Conclusion: conclusion}, nil
	case types.ConclusionFailure, types.ConclusionCancelled, types.ConclusionSkipped,
		types.ConclusionNeutral, types.ConclusionTimedOut, types.ConclusionActionRequired,
		types.ConclusionStale, types.ConclusionStartupFailure:
		a.logger.Error("workflow run concluded without success", "run_id", runID, "conclusion", conclusion)
		return Outcome{Conclusion: conclusion, FailedJobs: a.failedJobs(ctx, runID)}, nil
	default:
		return Outcome{Conclusion: conclusion}, fmt.Errorf("unhandled run conclusion %q", conclusion)
	}
}

// failedJobs collects the run's failed jobs for the report. Best effort: a
// reporting failure never masks the run's conclusion. Step lists are passed
// through exactly as the API returned them.
func (a *Awaiter) failedJobs(ctx context.Context, runID int64) []types.Job {
	fetched := retry.OnError(ctx, func(ctx context.Context) ([]types.Job, error) {
		return a.api.ListWorkflowRunJobs(ctx, runID)
	}, reportBudget, retry.WithLabel("list workflow run jobs"), retry.WithClock(a.clock), retry.WithLogger(a.logger))
	if !fetched.Success {
		a.logger.Warn("could not fetch failed jobs for report", "run_id", runID)
		return nil
	}

	var failed []types.Job
	for _, j := range fetched.Value {
		if j.Conclusion == types.ConclusionFailure {
			failed = append(failed, j)
		}
	}
	return failed
}
