package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/yoanbernabeu/testfleet/internal/constants"
)

const (
	// RunbookFile is the default runbook filename
	RunbookFile = "testfleet.yaml"
)

// LoadRunbook loads the runbook from path. An empty path falls back to
// $TESTFLEET_CONFIG, then to RunbookFile. Unknown keys are rejected.
func LoadRunbook(path string) (*Runbook, error) {
	if path == "" {
		path = os.Getenv(constants.EnvConfig)
	}
	if path == "" {
		path = RunbookFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("runbook not found: %s (run 'testfleet init' first)", path)
		}
		return nil, fmt.Errorf("failed to read runbook: %w", err)
	}

	rb, err := ParseRunbook(data)
	if err != nil {
		return nil, err
	}
	rb.Path = path
	if err := applyEnv(rb); err != nil {
		return nil, err
	}
	return rb, nil
}

// ParseRunbook decodes runbook YAML
func ParseRunbook(data []byte) (*Runbook, error) {
	rb := DefaultRunbook()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(rb); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse runbook: %w", err)
	}
	return rb, nil
}

func applyEnv(rb *Runbook) error {
	if v := os.Getenv(constants.EnvKeepTargets); v != "" {
		keep, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", constants.EnvKeepTargets, v, err)
		}
		rb.KeepTargets = keep
	}
	return nil
}

// SaveRunbook writes rb to path
func SaveRunbook(rb *Runbook, path string) error {
	if path == "" {
		path = RunbookFile
	}

	data, err := yaml.Marshal(rb)
	if err != nil {
		return fmt.Errorf("failed to marshal runbook: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write runbook: %w", err)
	}

	return nil
}

// RunbookExists checks if the runbook file exists
func RunbookExists(path string) bool {
	if path == "" {
		path = RunbookFile
	}
	_, err := os.Stat(path)
	return err == nil
}

// FindRunbook searches for the runbook in current and parent directories
func FindRunbook() (string, error) {
	if env := os.Getenv(constants.EnvConfig); env != "" {
		return env, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	dir := cwd
	for {
		path := filepath.Join(dir, RunbookFile)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("no %s found in current or parent directories", RunbookFile)
}

// ResolveRunRoot returns the run root, relative paths being taken from the
// runbook's directory
func (r *Runbook) ResolveRunRoot() string {
	root := r.RunRoot
	if root == "" {
		root = constants.DefaultRunRoot
	}
	if filepath.IsAbs(root) || r.Path == "" {
		return root
	}
	return filepath.Join(filepath.Dir(r.Path), root)
}
