package target

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when running a command on a target whose
// connection is closed
var ErrNotConnected = errors.New("target is not connected")

// ProvisioningError reports that a target could not be deployed or reached.
// The target never enters the pool.
type ProvisioningError struct {
	TargetID string
	Platform string
	Err      error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning %s target %s: %v", e.Platform, e.TargetID, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// IsProvisioningError checks if the error is or wraps a ProvisioningError
func IsProvisioningError(err error) bool {
	var provErr *ProvisioningError
	return err != nil && errors.As(err, &provErr)
}
