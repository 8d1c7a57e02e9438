package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/yoanbernabeu/testfleet/internal/notify"
	"github.com/yoanbernabeu/testfleet/internal/session"
	"github.com/yoanbernabeu/testfleet/internal/testcase"
)

// Group is the raw filters of one runner type, in runbook order
type Group struct {
	Type    string
	Filters []testcase.RawFilter
}

// GroupFilters buckets raws by runner type. Buckets keep the order in
// which their type first appears.
func GroupFilters(raws []testcase.RawFilter) []Group {
	var groups []Group
	index := map[string]int{}
	for _, raw := range raws {
		t := raw.Type()
		i, ok := index[t]
		if !ok {
			i = len(groups)
			index[t] = i
			groups = append(groups, Group{Type: t})
		}
		groups[i].Filters = append(groups[i].Filters, raw)
	}
	return groups
}

// RootRunner runs one runner per runner type concurrently and sums their
// failures into the exit code.
type RootRunner struct {
	session  *session.Session
	registry *Registry
	log      *slog.Logger

	mu       sync.Mutex
	state    State
	runners  []Runner
	exitCode int
}

// NewRootRunner creates a root runner over s. A nil registry selects
// DefaultRegistry.
func NewRootRunner(s *session.Session, reg *Registry) *RootRunner {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &RootRunner{
		session:  s,
		registry: reg,
		log:      s.Log.With("subsystem", "root"),
	}
}

// State returns the current lifecycle state
func (r *RootRunner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *RootRunner) setState(s State) {
	r.mu.Lock()
	prev := r.state
	r.state = s
	r.mu.Unlock()
	r.log.Debug("state changed", "from", prev.String(), "to", s.String())
}

// Runners returns the runners built by Run, in dispatch order
func (r *RootRunner) Runners() []Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Runner(nil), r.runners...)
}

// ExitCode is the sum of every runner's failed count. It is set once Run
// returns, including after an execution error.
func (r *RootRunner) ExitCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exitCode
}

// Stop always fails; cancel the context passed to Run instead.
func (r *RootRunner) Stop() error {
	return ErrStopNotSupported
}

// Run builds the runners, runs them to completion and closes them.
// Configuration problems are reported as ConfigurationError before any
// runner starts. The first runner error, in dispatch order, is returned
// as ExecutionError once every runner has been closed. Failed test cases
// only show in ExitCode.
func (r *RootRunner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateNotStarted {
		r.mu.Unlock()
		return fmt.Errorf("root runner already %s", r.state)
	}
	r.mu.Unlock()

	r.setState(StateInitializing)
	runners, err := r.build()
	if err != nil {
		r.setState(StateCompleted)
		return err
	}
	r.mu.Lock()
	r.runners = runners
	r.mu.Unlock()

	r.setState(StateRunning)
	errs := r.dispatch(ctx, runners)

	failed := 0
	for _, rn := range runners {
		failed += rn.FailedCount()
	}

	for i, err := range errs {
		if err != nil {
			r.setExitCode(failed)
			r.setState(StateCompleted)
			return &ExecutionError{RunnerType: runners[i].Type(), Err: err}
		}
	}

	r.notify(ctx, failed)
	r.setExitCode(failed)
	r.setState(StateCompleted)
	return nil
}

func (r *RootRunner) setExitCode(code int) {
	r.mu.Lock()
	r.exitCode = code
	r.mu.Unlock()
	r.session.Metrics.SetExitCode(code)
}

// build groups the runbook's filters and constructs one runner per group.
// Runners already built are closed when a later group fails.
func (r *RootRunner) build() (runners []Runner, err error) {
	defer func() {
		if err != nil {
			closeAll(runners, r.log)
			runners = nil
		}
	}()

	rb := r.session.Runbook
	for _, g := range GroupFilters(rb.RawFilters()) {
		ctor, ok := r.registry.Get(g.Type)
		if !ok {
			return runners, &ConfigurationError{
				Err: fmt.Errorf("unknown runner type %q (available: %v)", g.Type, r.registry.Types()),
			}
		}
		filters, err := r.session.Filters.ParseAll(g.Filters)
		if err != nil {
			return runners, &ConfigurationError{Err: fmt.Errorf("runner %s: %w", g.Type, err)}
		}
		rn, err := ctor(g.Type, rb.ForRunner(g.Filters, filters), r.session)
		if err != nil {
			return runners, &ConfigurationError{Err: err}
		}
		r.log.Debug("runner created", "type", g.Type, "filters", len(filters))
		runners = append(runners, rn)
	}
	return runners, nil
}

// dispatch runs every runner on its own goroutine and waits for all of
// them. errs[i] holds the error or recovered panic of runners[i]. Every
// runner is closed before dispatch returns.
func (r *RootRunner) dispatch(ctx context.Context, runners []Runner) []error {
	defer closeAll(runners, r.log)

	errs := make([]error, len(runners))
	var wg sync.WaitGroup
	for i, rn := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					errs[i] = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
				}
			}()
			errs[i] = rn.Run(ctx)
		}()
	}
	wg.Wait()
	return errs
}

func closeAll(runners []Runner, log *slog.Logger) {
	for _, rn := range runners {
		if err := rn.Close(); err != nil {
			log.Warn("closing runner", "type", rn.Type(), "error", err)
		}
	}
}

// notify sends the completion message. Delivery errors are logged only.
func (r *RootRunner) notify(ctx context.Context, failed int) {
	msg := notify.Message{
		RunID:    r.session.RunID,
		Name:     r.session.Runbook.Name,
		Status:   notify.StatusFor(failed),
		Failed:   failed,
		ExitCode: failed,
		Started:  r.session.Started,
		Finished: time.Now(),
	}
	for _, rn := range r.Runners() {
		msg.Runners = append(msg.Runners, notify.RunnerSummary{Type: rn.Type(), Failed: rn.FailedCount()})
	}
	if err := r.session.Notifier.Notify(ctx, msg); err != nil {
		r.log.Warn("run notification failed", "error", err)
	}
}
