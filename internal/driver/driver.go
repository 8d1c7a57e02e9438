package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/yoanbernabeu/testfleet/internal/metrics"
	"github.com/yoanbernabeu/testfleet/internal/pool"
	"github.com/yoanbernabeu/testfleet/internal/target"
	"github.com/yoanbernabeu/testfleet/internal/testcase"
	"github.com/yoanbernabeu/testfleet/internal/tools"
	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

// Options configure a Driver
type Options struct {
	Binder     *pool.Binder
	RunnerType string
	Log        *slog.Logger
	Metrics    *metrics.Metrics
	Retry      tools.RetryPolicy
	WorkDir    string
}

// Driver runs planned items one after another
type Driver struct {
	opts Options
}

// New creates a driver. Log and Metrics default to the process logger and
// a private registry.
func New(opts Options) *Driver {
	if opts.Log == nil {
		opts.Log = logging.For("driver")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Driver{opts: opts}
}

// binding is a shared scope's target, or the error that prevented binding it
type binding struct {
	b   *pool.Binding
	err error
}

// Run executes items in order. Cases whose target cannot be bound are
// reported as errored, and every later case of the same scope on the same
// target too. Bindings are released on every path, panics included.
func (d *Driver) Run(ctx context.Context, items []Item) []testcase.Result {
	sp := planScopes(items)
	open := map[string]*binding{}
	defer func() {
		for key, b := range open {
			d.release(key, b)
		}
	}()

	results := make([]testcase.Result, 0, len(items))
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			results = append(results, d.record(it, nil, testcase.StatusErrored, fmt.Errorf("not run: %w", err), 0))
			continue
		}

		if it.Target == nil {
			results = append(results, d.execute(ctx, it, nil))
			continue
		}

		key := it.bindingKey()
		b, ok := open[key]
		if !ok {
			b = d.bind(ctx, it, sp.features[key])
			open[key] = b
		}

		if b.err != nil {
			results = append(results, d.record(it, nil, testcase.StatusErrored, b.err, 0))
		} else {
			results = append(results, d.execute(ctx, it, b.b.Target))
		}

		if sp.last[key] == i {
			d.release(key, b)
			delete(open, key)
		}
	}
	return results
}

func (d *Driver) bind(ctx context.Context, it Item, features []string) *binding {
	b, err := d.opts.Binder.Bind(ctx, pool.Request{
		Spec:     *it.Target,
		Features: features,
		Scope:    it.Case.ScopeKey(),
	})
	if err != nil {
		if target.IsProvisioningError(err) {
			d.opts.Log.Error("target provisioning failed", "target", it.Target.Name, "scope", it.Case.ScopeKey(), "error", err)
		}
		return &binding{err: err}
	}
	return &binding{b: b}
}

func (d *Driver) release(key string, b *binding) {
	if b.b == nil {
		return
	}
	if err := b.b.Release(); err != nil {
		d.opts.Log.Warn("releasing target", "scope", key, "error", err)
	}
}

// execute runs one case body and classifies its outcome
func (d *Driver) execute(ctx context.Context, it Item, t *target.Target) testcase.Result {
	tc := &testcase.T{
		Case:    it.Case,
		Target:  t,
		Log:     d.opts.Log.With("case", it.ID()),
		Retry:   d.opts.Retry,
		WorkDir: d.opts.WorkDir,
	}
	if it.Target != nil {
		tc.TargetName = it.Target.Name
	}

	start := time.Now()
	err := runCase(ctx, it.Case, tc)
	elapsed := time.Since(start)

	status := testcase.StatusPassed
	switch {
	case err == nil:
	case errors.Is(err, testcase.ErrSkipped):
		status = testcase.StatusSkipped
	default:
		status = testcase.StatusFailed
	}
	return d.record(it, t, status, err, elapsed)
}

func runCase(ctx context.Context, c *testcase.Case, tc *testcase.T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return c.Run(ctx, tc)
}

func (d *Driver) record(it Item, t *target.Target, status testcase.Status, err error, elapsed time.Duration) testcase.Result {
	res := testcase.Result{Case: it.ID(), Status: status, Err: err, Duration: elapsed}
	if it.Target != nil {
		res.TargetName = it.Target.Name
	}
	if t != nil {
		res.TargetID = t.ID
	}

	d.opts.Metrics.RecordCase(d.opts.RunnerType, status.String())
	attrs := []any{"case", res.Case, "status", status.String(), "duration", elapsed.Round(time.Millisecond)}
	if res.TargetID != "" {
		attrs = append(attrs, "target_id", res.TargetID)
	}
	switch status {
	case testcase.StatusFailed, testcase.StatusErrored:
		d.opts.Log.Error("case finished", append(attrs, "error", err)...)
	default:
		d.opts.Log.Info("case finished", attrs...)
	}
	return res
}

// FailedCount returns the number of results that count as failures
func FailedCount(results []testcase.Result) int {
	n := 0
	for _, r := range results {
		if r.Status.Failed() {
			n++
		}
	}
	return n
}
