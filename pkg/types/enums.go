// Package types defines the public domain types shared by the
// await-remote-run library and CLI.
package types

// Status represents the lifecycle state of a workflow run, job, or step as
// reported by the GitHub Actions API.
type Status string

// Status values enumerate the lifecycle states GitHub reports.
const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusWaiting    Status = "waiting"
	StatusRequested  Status = "requested"
	StatusPending    Status = "pending"
)

// Terminal reports whether the status marks the end of the lifecycle.
// Conclusion fields carry meaning only once the status is terminal.
func (s Status) Terminal() bool {
	return s == StatusCompleted
}

// Conclusion represents the outcome of a completed workflow run, job, or step.
type Conclusion string

// Conclusion values enumerate the outcomes GitHub reports for completed work.
const (
	ConclusionSuccess        Conclusion = "success"
	ConclusionFailure        Conclusion = "failure"
	ConclusionCancelled      Conclusion = "cancelled"
	ConclusionSkipped        Conclusion = "skipped"
	ConclusionNeutral        Conclusion = "neutral"
	ConclusionTimedOut       Conclusion = "timed_out"
	ConclusionActionRequired Conclusion = "action_required"
	ConclusionStale          Conclusion = "stale"
	ConclusionStartupFailure Conclusion = "startup_failure"
)

// OK reports whether the conclusion counts as a passing outcome.
func (c Conclusion) OK() bool {
	return c == ConclusionSuccess
}
