package testcase

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/internal/security"
)

const defaultScriptPattern = "*.sh"

// ScriptFilter selects shell scripts from a local directory. Each script
// is uploaded to every configured target and passes when it exits with 0.
type ScriptFilter struct {
	Type       string     `yaml:"type"`
	FilterKind string     `yaml:"kind"`
	Dir        string     `yaml:"dir"`
	Pattern    string     `yaml:"pattern,omitempty"`
	Features   StringList `yaml:"features,omitempty"`
	Sudo       bool       `yaml:"sudo,omitempty"`
	Timeout    string     `yaml:"timeout,omitempty"`

	timeout time.Duration
}

// RunnerType implements Filter
func (f *ScriptFilter) RunnerType() string { return f.Type }

// Kind implements Filter
func (f *ScriptFilter) Kind() string { return constants.ScriptFilterKind }

// TimeoutDuration returns the per-script timeout, zero meaning none
func (f *ScriptFilter) TimeoutDuration() time.Duration { return f.timeout }

// ParseScript is the FilterParser of the script kind
func ParseScript(raw RawFilter) (Filter, error) {
	f := &ScriptFilter{}
	if err := decodeStrict(raw, f); err != nil {
		return nil, err
	}
	if f.Dir == "" {
		return nil, fmt.Errorf("script filter: dir is required")
	}
	if f.Pattern == "" {
		f.Pattern = defaultScriptPattern
	}
	if _, err := filepath.Match(f.Pattern, ""); err != nil {
		return nil, fmt.Errorf("script filter: invalid pattern %q: %w", f.Pattern, err)
	}
	for _, feat := range f.Features {
		if err := security.ValidateFeature(feat); err != nil {
			return nil, fmt.Errorf("script filter: %w", err)
		}
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("script filter: invalid timeout %q", f.Timeout)
		}
		f.timeout = d
	}
	return f, nil
}

// Scripts lists the matching files in Dir, sorted by name
func (f *ScriptFilter) Scripts() ([]string, error) {
	info, err := os.Stat(f.Dir)
	if err != nil {
		return nil, fmt.Errorf("script directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("script directory %s is not a directory", f.Dir)
	}

	matches, err := filepath.Glob(filepath.Join(f.Dir, f.Pattern))
	if err != nil {
		return nil, err
	}
	var scripts []string
	for _, m := range matches {
		if st, err := os.Stat(m); err == nil && st.Mode().IsRegular() {
			if err := security.ValidateScriptName(filepath.Base(m)); err != nil {
				return nil, err
			}
			scripts = append(scripts, m)
		}
	}
	sort.Strings(scripts)
	return scripts, nil
}
