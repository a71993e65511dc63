// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	RetryAttempts  = expvar.NewInt("retry_attempts_total")
	RetryFailures  = expvar.NewInt("retry_attempt_failures")
	RetryTimeouts  = expvar.NewInt("retry_timeouts")
	JobURLProbes   = expvar.NewInt("job_url_probes_total")
	JobURLTimeouts = expvar.NewInt("job_url_timeouts")
	RunPolls       = expvar.NewInt("run_polls_total")
	APIRequests    = expvar.NewInt("api_requests_total")
	APIFailures    = expvar.NewInt("api_request_failures")
)
