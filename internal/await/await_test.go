package await_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ftos-forks/await-remote-run/internal/await"
	"github.com/ftos-forks/await-remote-run/internal/clock"
	"github.com/ftos-forks/await-remote-run/internal/testutil"
	"github.com/ftos-forks/await-remote-run/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type awaited struct {
	outcome await.Outcome
	err     error
}

func mustAwait(t *testing.T, ch <-chan awaited) awaited {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("awaiter did not settle")
		return awaited{}
	}
}

func running(status types.Status) types.RunState {
	return types.RunState{Status: status}
}

func concluded(c types.Conclusion) types.RunState {
	return types.RunState{Status: types.StatusCompleted, Conclusion: c}
}

func TestAwait_SuccessAfterPolling(t *testing.T) {
	api := testutil.NewFakeActionsAPI().
		QueueRunState(running(types.StatusQueued), nil).
		QueueRunState(running(types.StatusInProgress), nil).
		QueueRunState(concluded(types.ConclusionSuccess), nil)
	clk := clock.NewFake()
	logger, rec := testutil.NewLogRecorder()
	a := await.New(api, await.WithClock(clk), await.WithLogger(logger))

	results := make(chan awaited, 1)
	go func() {
		out, err := a.Await(context.Background(), 42, 5*time.Minute)
		results <- awaited{outcome: out, err: err}
	}()

	// Each poll leaves its retry deadline timer pending alongside the next
	// poll pause, so the pending count climbs by one per cycle.
	clk.BlockUntil(2)
	clk.Advance(await.DefaultPollInterval)
	clk.BlockUntil(3)
	clk.Advance(await.DefaultPollInterval)

	res := mustAwait(t, results)
	require.NoError(t, res.err)
	require.Equal(t, types.ConclusionSuccess, res.outcome.Conclusion)
	require.Empty(t, res.outcome.FailedJobs)
	require.EqualValues(t, 3, api.RunCalls())
	require.Zero(t, api.JobCalls(), "a clean run needs no job report")
	require.Empty(t, rec.Warnings())
}

func TestAwait_FailureCollectsFailedJobs(t *testing.T) {
	failedJob := types.Job{
		ID: 2, Name: "test", URL: "https://example.test/runs/2",
		Status: types.StatusCompleted, Conclusion: types.ConclusionFailure,
		Steps: []types.Step{
			{Name: "checkout", Number: 1, Status: types.StatusCompleted, Conclusion: types.ConclusionSuccess},
			{Name: "go test", Number: 2, Status: types.StatusCompleted, Conclusion: types.ConclusionFailure},
		},
	}
	api := testutil.NewFakeActionsAPI().
		QueueRunState(running(types.StatusInProgress), nil).
		QueueRunState(concluded(types.ConclusionFailure), nil).
		QueueJobs([]types.Job{
			{ID: 1, Name: "build", Status: types.StatusCompleted, Conclusion: types.ConclusionSuccess},
			failedJob,
		}, nil)
	clk := clock.NewFake()
	logger, _ := testutil.NewLogRecorder()
	a := await.New(api, await.WithClock(clk), await.WithLogger(logger))

	results := make(chan awaited, 1)
	go func() {
		out, err := a.Await(context.Background(), 42, 5*time.Minute)
		results <- awaited{outcome: out, err: err}
	}()

	clk.BlockUntil(2)
	clk.Advance(await.DefaultPollInterval)

	res := mustAwait(t, results)
	require.NoError(t, res.err)
	require.Equal(t, types.ConclusionFailure, res.outcome.Conclusion)
	require.Equal(t, []types.Job{failedJob}, res.outcome.FailedJobs, "only failed jobs appear, steps untouched")
	require.EqualValues(t, 1, api.JobCalls())
}

func TestAwait_TimesOut(t *testing.T) {
	api := testutil.NewFakeActionsAPI().QueueRunState(running(types.StatusInProgress), nil)
	clk := clock.NewFake()
	logger, _ := testutil.NewLogRecorder()
	a := await.New(api, await.WithClock(clk), await.WithLogger(logger))

	results := make(chan awaited, 1)
	go func() {
		out, err := a.Await(context.Background(), 42, 12*time.Second)
		results <- awaited{outcome: out, err: err}
	}()

	clk.BlockUntil(2)
	clk.Advance(await.DefaultPollInterval)
	clk.BlockUntil(3)
	clk.Advance(await.DefaultPollInterval)
	clk.BlockUntil(4)
	clk.Advance(await.DefaultPollInterval)

	res := mustAwait(t, results)
	require.ErrorIs(t, res.err, await.ErrTimedOut)
	require.ErrorContains(t, res.err, "did not conclude within 12s")
	require.EqualValues(t, 3, api.RunCalls())
}

func TestAwait_AbsorbsTransientFetchFailures(t *testing.T) {
	api := testutil.NewFakeActionsAPI().
		QueueRunState(types.RunState{}, errors.New("boom")).
		QueueRunState(concluded(types.ConclusionSuccess), nil)
	clk := clock.NewFake()
	logger, rec := testutil.NewLogRecorder()
	a := await.New(api, await.WithClock(clk), await.WithLogger(logger))

	results := make(chan awaited, 1)
	go func() {
		out, err := a.Await(context.Background(), 42, 5*time.Minute)
		results <- awaited{outcome: out, err: err}
	}()

	// The failed fetch parks the inner retry loop on its fixed delay.
	clk.BlockUntil(2)
	clk.Advance(time.Second)

	res := mustAwait(t, results)
	require.NoError(t, res.err)
	require.Equal(t, types.ConclusionSuccess, res.outcome.Conclusion)
	require.EqualValues(t, 2, api.RunCalls())

	warnings := rec.Warnings()
	require.Len(t, warnings, 1)
	require.Equal(t, "get workflow run state", warnings[0].Attrs["operation"])
	require.Equal(t, "boom", warnings[0].Attrs["error"])
}

func TestAwait_UnhandledConclusion(t *testing.T) {
	api := testutil.NewFakeActionsAPI().QueueRunState(concluded(types.Conclusion("amazing")), nil)
	clk := clock.NewFake()
	logger, _ := testutil.NewLogRecorder()
	a := await.New(api, await.WithClock(clk), await.WithLogger(logger))

	_, err := a.Await(context.Background(), 42, time.Minute)
	require.Error(t, err)
	require.ErrorContains(t, err, `unhandled run conclusion "amazing"`)
	require.Zero(t, api.JobCalls())
}

func TestAwait_ZeroBudget(t *testing.T) {
	api := testutil.NewFakeActionsAPI()
	clk := clock.NewFake()
	logger, _ := testutil.NewLogRecorder()
	a := await.New(api, await.WithClock(clk), await.WithLogger(logger))

	_, err := a.Await(context.Background(), 42, 0)
	require.ErrorIs(t, err, await.ErrTimedOut)
	require.Zero(t, api.RunCalls(), "an already-expired budget polls nothing")
}
