package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ftos-forks/await-remote-run/pkg/types"
)

// FakeActionsAPI is an in-memory stand-in for the GitHub Actions client.
// Responses are scripted per method with the Queue helpers; each call consumes
// the next scripted response, and the final one repeats once the script is
// exhausted. Calling an unscripted method is a test bug and returns an error.
type FakeActionsAPI struct {
	mu        sync.Mutex
	runStates []runStateResponse
	jobLists  []jobListResponse

	runCalls atomic.Int64
	jobCalls atomic.Int64
}

type runStateResponse struct {
	state types.RunState
	err   error
}

type jobListResponse struct {
	jobs []types.Job
	err  error
}

// NewFakeActionsAPI creates an empty fake. Script it before use.
func NewFakeActionsAPI() *FakeActionsAPI {
	return &FakeActionsAPI{}
}

// QueueRunState appends a scripted GetWorkflowRun response.
func (f *FakeActionsAPI) QueueRunState(state types.RunState, err error) *FakeActionsAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runStates = append(f.runStates, runStateResponse{state: state, err: err})
	return f
}

// QueueJobs appends a scripted ListWorkflowRunJobs response.
func (f *FakeActionsAPI) QueueJobs(jobs []types.Job, err error) *FakeActionsAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobLists = append(f.jobLists, jobListResponse{jobs: jobs, err: err})
	return f
}

// GetWorkflowRun returns the next scripted run state.
func (f *FakeActionsAPI) GetWorkflowRun(_ context.Context, _ int64) (types.RunState, error) {
	f.runCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runStates) == 0 {
		return types.RunState{}, errors.New("fake actions api: no run state scripted")
	}
	next := f.runStates[0]
	if len(f.runStates) > 1 {
		f.runStates = f.runStates[1:]
	}
	return next.state, next.err
}

// ListWorkflowRunJobs returns the next scripted job list.
func (f *FakeActionsAPI) ListWorkflowRunJobs(_ context.Context, _ int64) ([]types.Job, error) {
	f.jobCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobLists) == 0 {
		return nil, errors.New("fake actions api: no job list scripted")
	}
	next := f.jobLists[0]
	if len(f.jobLists) > 1 {
		f.jobLists = f.jobLists[1:]
	}
	return next.jobs, next.err
}

// RunCalls reports how many times GetWorkflowRun was invoked.
func (f *FakeActionsAPI) RunCalls() int64 { return f.runCalls.Load() }

// JobCalls reports how many times ListWorkflowRunJobs was invoked.
func (f *FakeActionsAPI) JobCalls() int64 { return f.jobCalls.Load() }
