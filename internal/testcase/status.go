package testcase

import (
	"time"
)

// Status is the outcome of one case execution
type Status int

const (
	StatusPassed Status = iota
	StatusFailed
	StatusSkipped
	// StatusErrored means the case could not run, for instance because its
	// target could not be provisioned.
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Failed reports whether s counts toward the exit code
func (s Status) Failed() bool {
	return s == StatusFailed || s == StatusErrored
}

// Result records one case execution
type Result struct {
	Case       string
	TargetName string
	TargetID   string
	Status     Status
	Err        error
	Duration   time.Duration
}
