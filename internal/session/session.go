// Package session builds the state one run shares between its runners:
// platforms, targets, the pool, the case catalogue and the sinks.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/yoanbernabeu/testfleet/internal/config"
	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/internal/metrics"
	"github.com/yoanbernabeu/testfleet/internal/notify"
	"github.com/yoanbernabeu/testfleet/internal/platforms"
	"github.com/yoanbernabeu/testfleet/internal/pool"
	"github.com/yoanbernabeu/testfleet/internal/suites/demo"
	"github.com/yoanbernabeu/testfleet/internal/suites/timesync"
	"github.com/yoanbernabeu/testfleet/internal/target"
	"github.com/yoanbernabeu/testfleet/internal/testcase"
	"github.com/yoanbernabeu/testfleet/internal/tools"
	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

// Options customise New. Zero values select the built-in defaults.
type Options struct {
	Runbook   *config.Runbook
	Inventory *config.UserConfig
	Platforms *target.Registry
	Cases     *testcase.Registry
	Notifier  notify.Notifier
	// Console receives the console notifier output.
	Console io.Writer
	// RunRoot overrides the runbook's run root.
	RunRoot string
	// KeepTargets overrides the runbook's keep_targets.
	KeepTargets *bool
	// MetricsFile overrides the runbook's metrics_file.
	MetricsFile string
	Log         *slog.Logger
}

// Session is built once per run and passed to every runner
type Session struct {
	RunID       string
	Runbook     *config.Runbook
	RunDir      string
	Started     time.Time
	KeepTargets bool
	MetricsFile string

	Platforms *target.Registry
	Targets   []target.Spec
	Pool      *pool.Pool
	Binder    *pool.Binder
	Cases     *testcase.Registry
	Filters   *testcase.FilterRegistry
	Notifier  notify.Notifier
	Metrics   *metrics.Metrics
	Retry     tools.RetryPolicy
	Log       *slog.Logger
}

// New validates the runbook, resolves its targets and creates the run
// directory. Validation failures are returned as config.ValidationErrors.
func New(opts Options) (*Session, error) {
	rb := opts.Runbook
	if rb == nil {
		rb = config.DefaultRunbook()
	}

	log := opts.Log
	if log == nil {
		log = logging.For("session")
	}

	reg := opts.Platforms
	if reg == nil {
		reg = target.NewRegistry()
		if err := platforms.RegisterAll(reg); err != nil {
			return nil, err
		}
	}

	if errs := config.ValidateRunbook(rb, reg, opts.Inventory); errs.HasErrors() {
		return nil, errs
	}
	specs, err := rb.ResolveTargets(reg, opts.Inventory)
	if err != nil {
		return nil, err
	}
	retry, err := rb.Retry.Policy()
	if err != nil {
		return nil, err
	}

	cases := opts.Cases
	if cases == nil {
		if cases, err = DefaultCases(); err != nil {
			return nil, err
		}
	}

	started := time.Now()
	runID := NewRunID(started)
	root := opts.RunRoot
	if root == "" {
		root = rb.ResolveRunRoot()
	}
	runDir := constants.RunDir(root, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	notifier := opts.Notifier
	if notifier == nil {
		console := opts.Console
		if console == nil {
			console = os.Stdout
		}
		if notifier, err = notify.Build(rb.Notifiers, console, runDir); err != nil {
			return nil, err
		}
	}

	keep := rb.KeepTargets
	if opts.KeepTargets != nil {
		keep = *opts.KeepTargets
	}
	metricsFile := rb.MetricsFile
	if opts.MetricsFile != "" {
		metricsFile = opts.MetricsFile
	}

	m := metrics.New()
	p := pool.New(reg, m)
	s := &Session{
		RunID:       runID,
		Runbook:     rb,
		RunDir:      runDir,
		Started:     started,
		KeepTargets: keep,
		MetricsFile: metricsFile,
		Platforms:   reg,
		Targets:     specs,
		Pool:        p,
		Binder:      pool.NewBinder(p),
		Cases:       cases,
		Filters:     testcase.NewFilterRegistry(),
		Notifier:    notifier,
		Metrics:     m,
		Retry:       retry,
		Log:         log.With("run_id", runID),
	}
	s.Log.Info("session started", "run_dir", runDir, "targets", len(specs), "keep_targets", keep)
	return s, nil
}

// NewRunID returns a sortable, unique run identifier
func NewRunID(t time.Time) string {
	return t.UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

// DefaultCases registers the built-in suites
func DefaultCases() (*testcase.Registry, error) {
	reg := testcase.NewRegistry()
	for _, register := range []func(*testcase.Registry) error{demo.Register, timesync.Register} {
		if err := register(reg); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// RunnerWorkDir returns the working directory of a runner type in this run
func (s *Session) RunnerWorkDir(runnerType string) string {
	return constants.RunnerWorkDir(s.RunDir, runnerType)
}

// RunnerLogPath returns the dedicated log file of a non-default runner
func (s *Session) RunnerLogPath(runnerType string) string {
	return constants.RunnerLogPath(s.RunDir, runnerType)
}

// Close tears the pool down and exports metrics. Targets are kept when
// the session says so.
func (s *Session) Close(ctx context.Context) (*pool.TeardownReport, error) {
	report, err := s.Pool.Teardown(ctx, s.KeepTargets)
	if report != nil {
		for _, id := range report.Leaked {
			s.Log.Warn("target leaked by a runner", "id", id)
		}
	}

	if s.MetricsFile != "" {
		path := s.MetricsFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.RunDir, path)
		}
		if mErr := s.Metrics.WriteTextfile(path); mErr != nil {
			s.Log.Warn("writing metrics", "path", path, "error", mErr)
		}
	}
	return report, err
}
