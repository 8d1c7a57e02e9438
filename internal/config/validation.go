package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/internal/security"
	"github.com/yoanbernabeu/testfleet/internal/target"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

var runbookNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,63}$`)

// ValidateRunbook validates the runbook against the registered platforms
func ValidateRunbook(rb *Runbook, platforms *target.Registry, inv *UserConfig) ValidationErrors {
	var errors ValidationErrors

	if rb.Name != "" && !runbookNameRegex.MatchString(rb.Name) {
		errors = append(errors, ValidationError{
			Field:   "name",
			Message: "runbook name must contain only letters, numbers, dots, underscores, and hyphens",
		})
	}

	if _, err := rb.Retry.Policy(); err != nil {
		errors = append(errors, ValidationError{Field: "retry", Message: err.Error()})
	}

	for i, n := range rb.Notifiers {
		if err := n.Validate(); err != nil {
			errors = append(errors, ValidationError{Field: fmt.Sprintf("notifiers[%d]", i), Message: err.Error()})
		}
	}

	for i, raw := range rb.TestCase {
		field := fmt.Sprintf("testcase[%d]", i)
		for _, key := range []string{constants.FilterTypeKey, constants.FilterKindKey} {
			v, present := raw[key]
			if !present {
				continue
			}
			if s, ok := v.(string); !ok || s == "" {
				errors = append(errors, ValidationError{Field: field + "." + key, Message: "must be a non-empty string"})
			}
		}
		if err := security.ValidateRunnerType(raw.Type()); err != nil {
			errors = append(errors, ValidationError{Field: field + ".type", Message: err.Error()})
		}
	}

	_, targetErrs := rb.resolveTargets(platforms, inv)
	errors = append(errors, targetErrs...)

	return errors
}

// ResolveTargets validates every target entry against its platform schema.
// A runbook without targets yields the default SSH target.
func (r *Runbook) ResolveTargets(platforms *target.Registry, inv *UserConfig) ([]target.Spec, error) {
	specs, errs := r.resolveTargets(platforms, inv)
	if errs.HasErrors() {
		return nil, errs
	}
	return specs, nil
}

func (r *Runbook) resolveTargets(platforms *target.Registry, inv *UserConfig) ([]target.Spec, ValidationErrors) {
	if len(r.Targets) == 0 {
		entry := inv.applyHost(map[string]any{"name": constants.DefaultTargetName, "platform": constants.DefaultPlatform})
		spec, err := platforms.Resolve(entry)
		if err != nil {
			return nil, ValidationErrors{{Field: "targets", Message: err.Error()}}
		}
		return []target.Spec{spec}, nil
	}

	var (
		specs  []target.Spec
		errors ValidationErrors
		seen   = map[string]bool{}
	)
	for i, entry := range r.Targets {
		field := fmt.Sprintf("targets[%d]", i)
		spec, err := platforms.Resolve(inv.applyHost(entry))
		if err != nil {
			errors = append(errors, ValidationError{Field: field, Message: err.Error()})
			continue
		}
		if seen[spec.Name] {
			errors = append(errors, ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate target name %q", spec.Name)})
			continue
		}
		seen[spec.Name] = true
		specs = append(specs, spec)
	}
	return specs, errors
}

// ValidateHostConfig validates an inventory host
func ValidateHostConfig(host *HostConfig) ValidationErrors {
	var errors ValidationErrors

	if host.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "host",
			Message: "host address is required",
		})
	}

	if err := security.ValidateUnixUser(host.User); err != nil {
		errors = append(errors, ValidationError{
			Field:   "user",
			Message: err.Error(),
		})
	}

	if host.Port < 1 || host.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "port",
			Message: "port must be between 1 and 65535",
		})
	}

	return errors
}
