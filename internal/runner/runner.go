// Package runner fans the runbook's filters out to one runner per runner
// type and aggregates their results.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/yoanbernabeu/testfleet/internal/config"
	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/internal/driver"
	"github.com/yoanbernabeu/testfleet/internal/session"
	"github.com/yoanbernabeu/testfleet/internal/testcase"
	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

// Runner executes every filter of one runner type
type Runner interface {
	Type() string
	Run(ctx context.Context) error
	// FailedCount is the number of failed or errored cases so far.
	FailedCount() int
	Results() []testcase.Result
	// Close releases the runner's resources. Calls after the first are no-ops.
	Close() error
}

// Constructor builds a runner for the filters of rb. It should reject
// filters of kinds it cannot run.
type Constructor func(runnerType string, rb *config.Runbook, s *session.Session) (Runner, error)

// Loop is the type-specific part of a runner. It returns the results
// gathered so far even when it fails.
type Loop func(ctx context.Context, b *BaseRunner) ([]testcase.Result, error)

// BaseRunner prepares the working directory and log of a runner, then
// hands over to its Loop.
type BaseRunner struct {
	runnerType string
	runbook    *config.Runbook
	session    *session.Session
	loop       Loop

	mu      sync.Mutex
	log     *slog.Logger
	fileLog *logging.FileLogger
	results []testcase.Result

	closeOnce sync.Once
	closeErr  error
}

// NewBaseRunner creates a runner of runnerType driven by loop
func NewBaseRunner(runnerType string, rb *config.Runbook, s *session.Session, loop Loop) *BaseRunner {
	return &BaseRunner{
		runnerType: runnerType,
		runbook:    rb,
		session:    s,
		loop:       loop,
		log:        s.Log.With("runner", runnerType),
	}
}

// Type returns the runner type
func (b *BaseRunner) Type() string { return b.runnerType }

// Runbook returns the runbook restricted to this runner's filters
func (b *BaseRunner) Runbook() *config.Runbook { return b.runbook }

// Session returns the shared run session
func (b *BaseRunner) Session() *session.Session { return b.session }

// WorkDir is the run root for the default type, <run root>/<type>_runner otherwise
func (b *BaseRunner) WorkDir() string {
	return b.session.RunnerWorkDir(b.runnerType)
}

// Log returns the runner's logger, which writes to the dedicated log file
// once Run has attached it.
func (b *BaseRunner) Log() *slog.Logger {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.log
}

// LogPath returns the dedicated log file, empty for the default type or
// before Run.
func (b *BaseRunner) LogPath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fileLog == nil {
		return ""
	}
	return b.fileLog.Path()
}

// Run prepares the working directory and log, then runs the loop
func (b *BaseRunner) Run(ctx context.Context) error {
	if err := b.setup(); err != nil {
		return err
	}

	log := b.Log()
	log.Info("runner started", "filters", len(b.runbook.Filters), "work_dir", b.WorkDir())

	results, err := b.loop(ctx, b)

	b.mu.Lock()
	b.results = append(b.results, results...)
	b.mu.Unlock()

	failed := b.FailedCount()
	b.session.Metrics.SetRunnerFailures(b.runnerType, failed)
	if err != nil {
		log.Error("runner failed", "error", err, "failed", failed)
		return err
	}
	log.Info("runner finished", "cases", len(results), "failed", failed)
	return nil
}

func (b *BaseRunner) setup() error {
	if err := os.MkdirAll(b.WorkDir(), 0755); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	if b.runnerType == constants.DefaultRunnerType {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fileLog != nil {
		return nil
	}
	fl, err := logging.NewFileLogger(b.session.Log, b.session.RunnerLogPath(b.runnerType), logging.LevelDebug)
	if err != nil {
		return err
	}
	b.fileLog = fl
	b.log = fl.With("runner", b.runnerType)
	return nil
}

// FailedCount implements Runner
func (b *BaseRunner) FailedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return driver.FailedCount(b.results)
}

// Results implements Runner
func (b *BaseRunner) Results() []testcase.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]testcase.Result(nil), b.results...)
}

// Close detaches the dedicated log file
func (b *BaseRunner) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.fileLog != nil {
			b.closeErr = b.fileLog.Close()
			b.log = b.session.Log.With("runner", b.runnerType)
		}
	})
	return b.closeErr
}

// Registry maps runner types to constructors
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// DefaultRegistry returns a registry with the local and script runners
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(constants.DefaultRunnerType, NewLocalRunner)
	_ = r.Register(constants.ScriptRunnerType, NewScriptRunner)
	return r
}

// Register adds a constructor for runnerType
func (r *Registry) Register(runnerType string, ctor Constructor) error {
	if runnerType == "" || ctor == nil {
		return fmt.Errorf("runner type and constructor are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ctors[runnerType]; exists {
		return fmt.Errorf("runner type %q already registered", runnerType)
	}
	r.ctors[runnerType] = ctor
	return nil
}

// Get returns the constructor of runnerType
func (r *Registry) Get(runnerType string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.ctors[runnerType]
	return ctor, ok
}

// Types returns the registered runner types, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.ctors))
	for t := range r.ctors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
