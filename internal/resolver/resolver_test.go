package resolver_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ftos-forks/await-remote-run/internal/clock"
	"github.com/ftos-forks/await-remote-run/internal/resolver"
	"github.com/ftos-forks/await-remote-run/internal/testutil"
	"github.com/ftos-forks/await-remote-run/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type resolved struct {
	url string
	err error
}

func mustResolve(t *testing.T, ch <-chan resolved) resolved {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("resolver loop did not settle")
		return resolved{}
	}
}

func job(id int64, status types.Status, url string) types.Job {
	return types.Job{ID: id, Name: "job", URL: url, Status: status}
}

func TestFindActiveJobURL_PrefersFirstInProgress(t *testing.T) {
	api := testutil.NewFakeActionsAPI().QueueJobs([]types.Job{
		job(1, types.StatusCompleted, "https://example.test/runs/1"),
		job(2, types.StatusInProgress, "https://example.test/runs/2"),
		job(3, types.StatusInProgress, "https://example.test/runs/3"),
	}, nil)
	r := resolver.New(api)

	url, err := r.FindActiveJobURL(context.Background(), 99)
	require.NoError(t, err)
	require.Equal(t, "https://example.test/runs/2", url)
}

func TestFindActiveJobURL_FallsBackToFirstCompleted(t *testing.T) {
	api := testutil.NewFakeActionsAPI().QueueJobs([]types.Job{
		job(1, types.StatusQueued, ""),
		job(2, types.StatusCompleted, "https://example.test/runs/2"),
		job(3, types.StatusCompleted, "https://example.test/runs/3"),
	}, nil)
	r := resolver.New(api)

	url, err := r.FindActiveJobURL(context.Background(), 99)
	require.NoError(t, err)
	require.Equal(t, "https://example.test/runs/2", url)
}

func TestFindActiveJobURL_NoActiveJob(t *testing.T) {
	tests := []struct {
		name string
		jobs []types.Job
	}{
		{name: "no jobs yet", jobs: nil},
		{name: "only queued jobs", jobs: []types.Job{job(1, types.StatusQueued, "x"), job(2, types.StatusWaiting, "y")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			api := testutil.NewFakeActionsAPI().QueueJobs(tc.jobs, nil)
			r := resolver.New(api)

			url, err := r.FindActiveJobURL(context.Background(), 99)
			require.NoError(t, err)
			require.Empty(t, url)
		})
	}
}

func TestFindActiveJobURL_MissingURLSubstitutesMessage(t *testing.T) {
	api := testutil.NewFakeActionsAPI().QueueJobs([]types.Job{
		job(1, types.StatusInProgress, ""),
	}, nil)
	r := resolver.New(api)

	url, err := r.FindActiveJobURL(context.Background(), 99)
	require.NoError(t, err)
	require.Equal(t, resolver.MissingURLMessage, url)
}

func TestFindActiveJobURL_PropagatesAPIFailure(t *testing.T) {
	api := testutil.NewFakeActionsAPI().QueueJobs(nil, errors.New("list workflow run jobs: expected status 200, received 500"))
	r := resolver.New(api)

	url, err := r.FindActiveJobURL(context.Background(), 99)
	require.Error(t, err)
	require.ErrorContains(t, err, "expected status 200, received 500")
	require.Empty(t, url)
}

func TestFindActiveJobURL_SelectionIsDeterministic(t *testing.T) {
	jobs := []types.Job{
		job(1, types.StatusCompleted, "https://example.test/runs/1"),
		job(2, types.StatusInProgress, "https://example.test/runs/2"),
	}
	api := testutil.NewFakeActionsAPI().QueueJobs(jobs, nil)
	r := resolver.New(api)

	first, err := r.FindActiveJobURL(context.Background(), 99)
	require.NoError(t, err)
	second, err := r.FindActiveJobURL(context.Background(), 99)
	require.NoError(t, err)
	require.Equal(t, first, second, "an unchanged job list must select the same job")
}

func TestFindActiveJobURLWithRetry_ShortCircuitsOnFirstURL(t *testing.T) {
	api := testutil.NewFakeActionsAPI().
		QueueJobs(nil, nil).
		QueueJobs([]types.Job{job(1, types.StatusQueued, "")}, nil).
		QueueJobs([]types.Job{job(1, types.StatusInProgress, "https://example.test/runs/1")}, nil)
	clk := clock.NewFake()
	logger, _ := testutil.NewLogRecorder()
	r := resolver.New(api, resolver.WithClock(clk), resolver.WithLogger(logger))

	results := make(chan resolved, 1)
	go func() {
		url, err := r.FindActiveJobURLWithRetry(context.Background(), 99, time.Minute)
		results <- resolved{url: url, err: err}
	}()

	clk.BlockUntil(1)
	clk.Advance(resolver.DefaultInterval)
	clk.BlockUntil(1)
	clk.Advance(resolver.DefaultInterval)

	res := mustResolve(t, results)
	require.NoError(t, res.err)
	require.Equal(t, "https://example.test/runs/1", res.url)
	require.EqualValues(t, 3, api.JobCalls(), "the loop stops probing once a URL is found")
}

func TestFindActiveJobURLWithRetry_TimesOutWithMessage(t *testing.T) {
	api := testutil.NewFakeActionsAPI().QueueJobs(nil, nil)
	clk := clock.NewFake()
	logger, _ := testutil.NewLogRecorder()
	r := resolver.New(api, resolver.WithClock(clk), resolver.WithLogger(logger))

	results := make(chan resolved, 1)
	go func() {
		url, err := r.FindActiveJobURLWithRetry(context.Background(), 99, 6*time.Second)
		results <- resolved{url: url, err: err}
	}()

	// Probes land at 0s, 2.5s and 5s; the budget is spent during the third
	// pause and the loop resolves without another probe.
	clk.BlockUntil(1)
	clk.Advance(resolver.DefaultInterval)
	clk.BlockUntil(1)
	clk.Advance(resolver.DefaultInterval)
	clk.BlockUntil(1)
	clk.Advance(resolver.DefaultInterval)

	res := mustResolve(t, results)
	require.NoError(t, res.err)
	require.Equal(t, resolver.TimeoutMessage, res.url)
	require.EqualValues(t, 3, api.JobCalls())
}

func TestFindActiveJobURLWithRetry_PropagatesProbeFailure(t *testing.T) {
	api := testutil.NewFakeActionsAPI().
		QueueJobs(nil, nil).
		QueueJobs(nil, errors.New("listing exploded"))
	clk := clock.NewFake()
	logger, _ := testutil.NewLogRecorder()
	r := resolver.New(api, resolver.WithClock(clk), resolver.WithLogger(logger))

	results := make(chan resolved, 1)
	go func() {
		url, err := r.FindActiveJobURLWithRetry(context.Background(), 99, time.Minute)
		results <- resolved{url: url, err: err}
	}()

	clk.BlockUntil(1)
	clk.Advance(resolver.DefaultInterval)

	res := mustResolve(t, results)
	require.Error(t, res.err)
	require.ErrorContains(t, res.err, "listing exploded")
	require.Empty(t, res.url)
	require.EqualValues(t, 2, api.JobCalls())
}

func TestFindActiveJobURLWithRetry_ZeroBudget(t *testing.T) {
	api := testutil.NewFakeActionsAPI()
	clk := clock.NewFake()
	logger, _ := testutil.NewLogRecorder()
	r := resolver.New(api, resolver.WithClock(clk), resolver.WithLogger(logger))

	url, err := r.FindActiveJobURLWithRetry(context.Background(), 99, 0)
	require.NoError(t, err)
	require.Equal(t, resolver.TimeoutMessage, url)
	require.Zero(t, api.JobCalls(), "an already-expired budget probes nothing")
}
