package provision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/internal/ssh"
)

// Probe reports whether a freshly deployed resource accepts work yet.
// A non-nil error aborts the wait; not-ready results are retried.
type Probe func(ctx context.Context) (ready bool, detail string, err error)

// ReadinessChecker polls a probe until it reports ready
type ReadinessChecker struct {
	probe    Probe
	timeout  time.Duration
	retries  int
	interval time.Duration
}

// NewReadinessChecker creates a checker with the default readiness budget
func NewReadinessChecker(probe Probe) *ReadinessChecker {
	return &ReadinessChecker{
		probe:    probe,
		timeout:  constants.ReadinessTimeout,
		retries:  constants.ReadinessRetries,
		interval: constants.ReadinessInterval,
	}
}

// SetTimeout sets the overall timeout
func (r *ReadinessChecker) SetTimeout(timeout time.Duration) {
	r.timeout = timeout
}

// SetRetries sets the number of attempts
func (r *ReadinessChecker) SetRetries(retries int) {
	r.retries = retries
}

// SetInterval sets the interval between attempts
func (r *ReadinessChecker) SetInterval(interval time.Duration) {
	r.interval = interval
}

// ReadinessResult contains the result of a readiness wait
type ReadinessResult struct {
	Ready    bool
	Message  string
	Attempts int
	Elapsed  time.Duration
}

// Check polls the probe until it is ready, retries run out or the timeout
// passes. Only a probe error or context cancellation yields an error.
func (r *ReadinessChecker) Check(ctx context.Context) (*ReadinessResult, error) {
	result := &ReadinessResult{}
	start := time.Now()
	deadline := start.Add(r.timeout)

	for attempt := 1; attempt <= r.retries; attempt++ {
		result.Attempts = attempt

		if time.Now().After(deadline) {
			result.Message = "readiness timeout"
			break
		}

		ready, detail, err := r.probe(ctx)
		if err != nil {
			result.Elapsed = time.Since(start)
			return result, fmt.Errorf("readiness probe failed: %w", err)
		}
		if ready {
			result.Ready = true
			result.Message = "ready"
			result.Elapsed = time.Since(start)
			return result, nil
		}
		result.Message = detail

		if attempt == r.retries {
			break
		}
		select {
		case <-ctx.Done():
			result.Elapsed = time.Since(start)
			return result, ctx.Err()
		case <-time.After(r.interval):
		}
	}

	result.Elapsed = time.Since(start)
	return result, nil
}

// Wait is Check with a not-ready result turned into an error
func (r *ReadinessChecker) Wait(ctx context.Context) error {
	res, err := r.Check(ctx)
	if err != nil {
		return err
	}
	if !res.Ready {
		return fmt.Errorf("not ready after %d attempts: %s", res.Attempts, res.Message)
	}
	return nil
}

// CommandProbe is ready once command exits 0 on the executor
func CommandProbe(exec ssh.Executor, command string) Probe {
	return func(ctx context.Context) (bool, string, error) {
		res, err := exec.Exec(ctx, command)
		if err != nil {
			return false, err.Error(), nil
		}
		if res.ExitCode != 0 {
			return false, fmt.Sprintf("%s exited %d: %s", command, res.ExitCode, strings.TrimSpace(res.Stderr)), nil
		}
		return true, "", nil
	}
}
