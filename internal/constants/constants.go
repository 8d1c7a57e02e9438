package constants

import (
	"path/filepath"
	"time"
)

// Runner types
const (
	// DefaultRunnerType is used for filters that do not declare a type.
	DefaultRunnerType = "local"
	ScriptRunnerType  = "script"
)

// Filter kinds
const (
	CriteriaFilterKind = "criteria"
	ScriptFilterKind   = "script"
)

// Raw filter keys
const (
	FilterTypeKey = "type"
	FilterKindKey = "kind"
	CriteriaKey   = "criteria"
)

// Default filter used when a runbook selects no test case at all.
const (
	DefaultFilterName = "test"
	DefaultFilterArea = "demo"
)

// Target defaults
const (
	DefaultPlatform   = "SSH"
	DefaultTargetName = "Default"
	TargetIDPrefix    = "testfleet"
	RemoteWorkDir     = "/tmp/testfleet"
)

// Local run layout
const (
	DefaultRunRoot  = "runtime/runs"
	RunLogFile      = "testfleet.log"
	RunnerDirSuffix = "_runner"
)

// Environment variables
const (
	EnvConfig           = "TESTFLEET_CONFIG"
	EnvKeepTargets      = "TESTFLEET_KEEP_TARGETS"
	EnvSSHKey           = "TESTFLEET_SSH_KEY"
	EnvKnownHosts       = "TESTFLEET_KNOWN_HOSTS"
	EnvSkipHostKeyCheck = "TESTFLEET_SKIP_HOST_KEY_CHECK"
)

// Readiness defaults
const (
	ReadinessTimeout  = 2 * time.Minute
	ReadinessRetries  = 30
	ReadinessInterval = 2 * time.Second
)

// Tool retry defaults
const (
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = time.Second
)

// RunnerDirName returns the directory (and log file stem) of a non-default runner.
func RunnerDirName(runnerType string) string {
	return runnerType + RunnerDirSuffix
}

// RunnerWorkDir returns the working directory for a runner type under the run root.
// The default runner works directly in the run root.
func RunnerWorkDir(runRoot, runnerType string) string {
	if runnerType == DefaultRunnerType {
		return runRoot
	}
	return filepath.Join(runRoot, RunnerDirName(runnerType))
}

// RunnerLogPath returns the dedicated log file path for a non-default runner.
func RunnerLogPath(runRoot, runnerType string) string {
	return filepath.Join(RunnerWorkDir(runRoot, runnerType), RunnerDirName(runnerType)+".log")
}

// RunDir returns the directory of a single run under the run root.
func RunDir(runRoot, runID string) string {
	return filepath.Join(runRoot, runID)
}
