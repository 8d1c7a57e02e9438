package runner

import (
	"errors"
	"fmt"
)

// ErrStopNotSupported is returned by RootRunner.Stop. A run cannot be
// interrupted once started other than by cancelling its context.
var ErrStopNotSupported = errors.New("stopping a run is not supported")

// ConfigurationError is raised before any runner starts: unknown runner
// type, unknown filter kind or an invalid filter.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ExecutionError is an error or panic escaping a runner's Run.
type ExecutionError struct {
	RunnerType string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("runner %s failed: %v", e.RunnerType, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsConfigurationError checks if the error is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsExecutionError checks if the error is or wraps an ExecutionError
func IsExecutionError(err error) bool {
	var execErr *ExecutionError
	return errors.As(err, &execErr)
}
