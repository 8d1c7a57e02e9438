// Package notify delivers the run completion message to configured sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

// Status is the overall outcome of a run
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
)

func (s Status) String() string {
	if s == StatusFailure {
		return "FAILURE"
	}
	return "SUCCESS"
}

// MarshalYAML implements yaml.Marshaler
func (s Status) MarshalYAML() (any, error) {
	return s.String(), nil
}

// StatusFor maps an aggregated failure count to a status
func StatusFor(failed int) Status {
	if failed > 0 {
		return StatusFailure
	}
	return StatusSuccess
}

// RunnerSummary is one runner's contribution to the run
type RunnerSummary struct {
	Type   string `yaml:"type"`
	Failed int    `yaml:"failed"`
	Error  string `yaml:"error,omitempty"`
}

// Message is emitted exactly once when a run completes
type Message struct {
	RunID    string          `yaml:"run_id"`
	Name     string          `yaml:"name,omitempty"`
	Status   Status          `yaml:"status"`
	Failed   int             `yaml:"failed"`
	ExitCode int             `yaml:"exit_code"`
	Started  time.Time       `yaml:"started"`
	Finished time.Time       `yaml:"finished"`
	Runners  []RunnerSummary `yaml:"runners,omitempty"`
}

// Notifier receives run messages
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Sink kinds accepted in the runbook
const (
	ConsoleSink = "console"
	FileSink    = "file"
)

// Spec configures one sink
type Spec struct {
	Type string `yaml:"type"`
	Path string `yaml:"path,omitempty"`
}

// Validate checks the sink type and its required fields
func (s Spec) Validate() error {
	switch s.Type {
	case ConsoleSink:
		return nil
	case FileSink:
		if s.Path == "" {
			return fmt.Errorf("file notifier requires a path")
		}
		return nil
	default:
		return fmt.Errorf("unknown notifier type %q (available: %s, %s)", s.Type, ConsoleSink, FileSink)
	}
}

// Build creates the notifiers of specs. No spec yields a console notifier.
// File paths are resolved against baseDir when relative.
func Build(specs []Spec, console io.Writer, baseDir string) (Multi, error) {
	if len(specs) == 0 {
		return Multi{&Console{Out: console}}, nil
	}
	var out Multi
	for i, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("notifier %d: %w", i, err)
		}
		switch s.Type {
		case ConsoleSink:
			out = append(out, &Console{Out: console})
		case FileSink:
			path := s.Path
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			out = append(out, &File{Path: path})
		}
	}
	return out, nil
}

// Multi fans a message out to every notifier and joins their errors
type Multi []Notifier

// Notify implements Notifier
func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Console prints a one-line summary
type Console struct {
	Out io.Writer
}

// Notify implements Notifier
func (c *Console) Notify(_ context.Context, msg Message) error {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	_, err := fmt.Fprintf(out, "run %s finished: %s (%d failed, exit code %d, took %s)\n",
		msg.RunID, msg.Status, msg.Failed, msg.ExitCode, msg.Finished.Sub(msg.Started).Round(time.Millisecond))
	return err
}

// File writes the message as YAML
type File struct {
	Path string
}

// Notify implements Notifier
func (f *File) Notify(_ context.Context, msg Message) error {
	data, err := yaml.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal run message: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create notifier directory: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run message: %w", err)
	}
	logging.Debug("notify", "run message written", "path", f.Path)
	return nil
}
