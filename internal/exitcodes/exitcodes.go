// Package exitcodes defines the process exit codes of testfleet.
//
// A completed run exits with its number of failed test cases, so
// 0 means every case passed. Counts above MaxFailureCode are clamped.
// RuntimeErr is reserved for runs that could not complete: invalid
// configuration, provisioning at startup, or a runner error.
package exitcodes

const (
	Success        = 0
	MaxFailureCode = 254
	RuntimeErr     = 255
)

// FromFailures maps a failure count to an exit code
func FromFailures(failed int) int {
	switch {
	case failed <= 0:
		return Success
	case failed > MaxFailureCode:
		return MaxFailureCode
	default:
		return failed
	}
}
