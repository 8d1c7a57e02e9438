// Package pool shares deployed targets between tests that need compatible
// environments.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yoanbernabeu/testfleet/internal/metrics"
	"github.com/yoanbernabeu/testfleet/internal/target"
	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

// ErrNotCheckedOut is returned when releasing a target the pool did not hand out
var ErrNotCheckedOut = errors.New("target is not checked out")

// ErrClosed is returned by Acquire once the pool has been torn down
var ErrClosed = errors.New("pool is torn down")

// Pool tracks every target deployed during a run. A target is either idle
// (in the FIFO list) or checked out by exactly one scope.
type Pool struct {
	registry *target.Registry
	metrics  *metrics.Metrics
	log      *slog.Logger

	mu         sync.Mutex
	idle       []*target.Target
	checkedOut map[string]*target.Target
	broken     []*target.Target
	closed     bool
}

// New creates an empty pool resolving platforms from reg. A nil m records
// into a private registry.
func New(reg *target.Registry, m *metrics.Metrics) *Pool {
	if m == nil {
		m = metrics.New()
	}
	return &Pool{
		registry:   reg,
		metrics:    m,
		log:        logging.For("pool"),
		checkedOut: make(map[string]*target.Target),
	}
}

// Acquire returns a connected target on spec's platform with spec's params
// and at least the requested features. The first idle match is reused;
// otherwise a new target is deployed outside the pool lock. Deploy failures
// are returned as *target.ProvisioningError and nothing enters the pool.
func (p *Pool) Acquire(ctx context.Context, spec target.Spec, features []string) (*target.Target, error) {
	for {
		t, err := p.takeIdle(spec, features)
		if err != nil {
			return nil, err
		}
		if t == nil {
			break
		}
		if err := t.Open(ctx); err != nil {
			p.log.Warn("idle target unreachable, provisioning a new one", "id", t.ID, "error", err)
			p.markBroken(t)
			continue
		}
		p.metrics.RecordReused(t.Platform)
		p.log.Debug("reusing target", "id", t.ID, "features", t.Features())
		return t, nil
	}

	return p.provision(ctx, spec, features)
}

func (p *Pool) takeIdle(spec target.Spec, features []string) (*target.Target, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	for i, t := range p.idle {
		if t.Matches(spec.Platform, spec.Params, features) {
			p.idle = append(p.idle[:i:i], p.idle[i+1:]...)
			p.checkedOut[t.ID] = t
			p.publishSize()
			return t, nil
		}
	}
	return nil, nil
}

func (p *Pool) provision(ctx context.Context, spec target.Spec, features []string) (*target.Target, error) {
	platform, ok := p.registry.Get(spec.Platform)
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", spec.Platform)
	}

	t := target.New(spec, platform, features)
	start := time.Now()
	if err := t.Deploy(ctx); err != nil {
		p.metrics.RecordProvisionFailure(spec.Platform)
		p.log.Error("deploy failed", "id", t.ID, "platform", spec.Platform, "error", err)
		return nil, err
	}
	if err := t.Open(ctx); err != nil {
		p.metrics.RecordProvisionFailure(spec.Platform)
		if delErr := t.Delete(context.WithoutCancel(ctx)); delErr != nil {
			p.log.Error("cleanup after failed connect", "id", t.ID, "error", delErr)
		}
		return nil, &target.ProvisioningError{TargetID: t.ID, Platform: spec.Platform, Err: err}
	}
	p.metrics.RecordProvisioned(spec.Platform, time.Since(start).Seconds())

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.log.Warn("pool torn down during deploy, deleting target", "id", t.ID, "platform", spec.Platform)
		if err := t.Delete(context.WithoutCancel(ctx)); err != nil {
			p.log.Error("delete after teardown", "id", t.ID, "error", err)
			return nil, errors.Join(ErrClosed, err)
		}
		p.metrics.RecordDeleted(spec.Platform)
		return nil, ErrClosed
	}
	p.checkedOut[t.ID] = t
	p.publishSize()
	p.mu.Unlock()

	p.log.Info("provisioned target", "id", t.ID, "platform", spec.Platform, "name", spec.Name, "features", t.Features())
	return t, nil
}

func (p *Pool) markBroken(t *target.Target) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.checkedOut, t.ID)
	p.broken = append(p.broken, t)
	p.publishSize()
}

// Release closes the target's connection and makes it available again at
// the tail of the pool.
func (p *Pool) Release(t *target.Target) error {
	p.mu.Lock()
	if _, ok := p.checkedOut[t.ID]; !ok {
		p.mu.Unlock()
		return fmt.Errorf("release %s: %w", t.ID, ErrNotCheckedOut)
	}
	delete(p.checkedOut, t.ID)
	p.mu.Unlock()

	if err := t.CloseConnection(); err != nil {
		p.log.Warn("closing connection", "id", t.ID, "error", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		// torn down while checked out: the target was reported as leaked
		return nil
	}
	p.idle = append(p.idle, t)
	p.publishSize()
	return nil
}

// TeardownReport lists what happened to every target at teardown
type TeardownReport struct {
	Deleted []string
	Kept    []string
	Leaked  []string
	Failed  []string
}

// Teardown deletes every idle target unless keep is set, then empties the
// pool. Targets still checked out are reported as leaked and left alone.
func (p *Pool) Teardown(ctx context.Context, keep bool) (*TeardownReport, error) {
	p.mu.Lock()
	idle := p.idle
	broken := p.broken
	leaked := make([]*target.Target, 0, len(p.checkedOut))
	for _, t := range p.checkedOut {
		leaked = append(leaked, t)
	}
	p.idle = nil
	p.broken = nil
	p.closed = true
	p.publishSize()
	p.mu.Unlock()

	report := &TeardownReport{}
	var errs []error

	for _, t := range leaked {
		p.log.Warn("target still checked out at teardown", "id", t.ID, "platform", t.Platform)
		report.Leaked = append(report.Leaked, t.ID)
	}

	for _, t := range append(idle, broken...) {
		p.log.Info("created target", "id", t.ID, "features", t.Features(), "params", t.Params.String())
		if keep {
			report.Kept = append(report.Kept, t.ID)
			continue
		}
		if err := t.Delete(ctx); err != nil {
			errs = append(errs, err)
			report.Failed = append(report.Failed, t.ID)
			continue
		}
		p.metrics.RecordDeleted(t.Platform)
		report.Deleted = append(report.Deleted, t.ID)
	}

	return report, errors.Join(errs...)
}

// Size returns the idle and checked-out counts
func (p *Pool) Size() (idle, checkedOut int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), len(p.checkedOut)
}

// Idle returns a snapshot of the idle targets in pool order
func (p *Pool) Idle() []*target.Target {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*target.Target(nil), p.idle...)
}

// publishSize must be called with mu held
func (p *Pool) publishSize() {
	p.metrics.SetPoolSize(len(p.idle), len(p.checkedOut))
}
