package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/yoanbernabeu/testfleet/internal/notify"
	"github.com/yoanbernabeu/testfleet/internal/testcase"
	"github.com/yoanbernabeu/testfleet/internal/tools"
)

// Runbook represents the testfleet.yaml configuration. It is treated as an
// immutable snapshot once loaded; ForRunner hands out copies.
type Runbook struct {
	Name        string               `yaml:"name,omitempty"`
	RunRoot     string               `yaml:"run_root,omitempty"`
	KeepTargets bool                 `yaml:"keep_targets,omitempty"`
	MetricsFile string               `yaml:"metrics_file,omitempty"`
	TestCase    []testcase.RawFilter `yaml:"testcase,omitempty"`
	Targets     []map[string]any     `yaml:"targets,omitempty"`
	Notifiers   []notify.Spec        `yaml:"notifiers,omitempty"`
	Retry       RetryConfig          `yaml:"retry,omitempty"`

	// Filters holds one runner's parsed filters; set by ForRunner.
	Filters []testcase.Filter `yaml:"-"`
	// Path is the file the runbook was loaded from.
	Path string `yaml:"-"`
}

// RetryConfig holds the retry policy of transient tool failures
type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts,omitempty"`
	Delay       string `yaml:"delay,omitempty"`
}

// Policy converts the configuration, filling defaults for unset values
func (r RetryConfig) Policy() (tools.RetryPolicy, error) {
	p := tools.DefaultRetryPolicy()
	if r.MaxAttempts != 0 {
		if r.MaxAttempts < 1 {
			return p, fmt.Errorf("max_attempts must be at least 1")
		}
		p.MaxAttempts = r.MaxAttempts
	}
	if r.Delay != "" {
		d, err := time.ParseDuration(r.Delay)
		if err != nil || d < 0 {
			return p, fmt.Errorf("invalid delay %q", r.Delay)
		}
		p.Delay = d
	}
	return p, nil
}

// ForRunner returns a copy of r restricted to one runner's filters
func (r *Runbook) ForRunner(raws []testcase.RawFilter, filters []testcase.Filter) *Runbook {
	cp := *r
	cp.TestCase = slices.Clone(raws)
	cp.Filters = slices.Clone(filters)
	cp.Targets = slices.Clone(r.Targets)
	cp.Notifiers = slices.Clone(r.Notifiers)
	return &cp
}

// RawFilters returns the runbook's filters, or the default filter when it
// selects nothing
func (r *Runbook) RawFilters() []testcase.RawFilter {
	if len(r.TestCase) == 0 {
		return []testcase.RawFilter{testcase.DefaultFilter()}
	}
	return slices.Clone(r.TestCase)
}

// HostConfig is a named SSH host of the user inventory
type HostConfig struct {
	Host    string `yaml:"host"`
	User    string `yaml:"user"`
	Port    int    `yaml:"port,omitempty"`
	KeyPath string `yaml:"key_path,omitempty"`
}

// UserConfig represents ~/.config/testfleet/config.yaml
type UserConfig struct {
	Hosts       map[string]HostConfig `yaml:"hosts"`
	DefaultUser string                `yaml:"default_user,omitempty"`
	DefaultPort int                   `yaml:"default_port,omitempty"`
	RunRoot     string                `yaml:"run_root,omitempty"`
}

// DefaultRunbook returns the runbook used when no file exists
func DefaultRunbook() *Runbook {
	return &Runbook{Name: "testfleet"}
}

// DefaultUserConfig returns an empty inventory
func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Hosts:       make(map[string]HostConfig),
		DefaultUser: "root",
		DefaultPort: 22,
	}
}
