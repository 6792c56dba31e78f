package domain

import "time"

// Status is the closed outcome of a pipeline invocation.
type Status string

const (
	StatusSuccess        Status = "SUCCESS"
	StatusSuccessEmpty   Status = "SUCCESS_EMPTY"
	StatusFailedCritical Status = "FAILED_CRITICAL"
	StatusFailedBanned   Status = "FAILED_PROXY_BANNED"
)

// ExitCode maps a Status to the pipeline-observable process exit code.
func (s Status) ExitCode() int {
	switch s {
	case StatusSuccess, StatusSuccessEmpty:
		return 0
	case StatusFailedBanned:
		return 2
	default:
		return 1
	}
}

// RunCounts holds the per-step counters a RunStatus reports.
type RunCounts struct {
	PagesAttempted  int
	PagesFailed     int
	EntriesSelected int
	EntriesDetailed int
	EntriesFailed   int
	BanEvents       int
	AddsAttempted   int
	AddsSucceeded   int
	AddsRejected    int
}

// RunStatus is the outcome of one pipeline invocation, emitted exactly once
// per run.
type RunStatus struct {
	RunID    string
	Status   Status
	Started  time.Time
	Finished time.Time

	Counts    RunCounts
	LogLines  []string
	BanDelta  []BanRecord
	FailureOp string
	Err       error
}
