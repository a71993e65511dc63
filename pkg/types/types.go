package types

// RunState is a point-in-time snapshot of a workflow run's lifecycle fields.
// Every poll produces a fresh snapshot; existing values are never mutated.
type RunState struct {
	Status     Status     `json:"status"`
	Conclusion Conclusion `json:"conclusion"`
}

// Concluded reports whether the run has reached a terminal status.
func (r RunState) Concluded() bool {
	return r.Status.Terminal()
}

// Job is a single job within a workflow run. URL is the job's html_url, which
// GitHub may omit for jobs it has not fully materialized yet. Steps appear in
// execution order exactly as the API returned them and are never filtered or
// reordered.
type Job struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	URL        string     `json:"html_url"`
	Status     Status     `json:"status"`
	Conclusion Conclusion `json:"conclusion"`
	Steps      []Step     `json:"steps"`
}

// Step is a single step within a job. Number is the step's 1-based position
// as assigned by GitHub.
type Step struct {
	Name       string     `json:"name"`
	Number     int        `json:"number"`
	Status     Status     `json:"status"`
	Conclusion Conclusion `json:"conclusion"`
}
