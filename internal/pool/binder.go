package pool

import (
	"context"
	"sync"

	"github.com/yoanbernabeu/testfleet/internal/target"
)

// Request describes the environment a test scope needs
type Request struct {
	Spec     target.Spec
	Features []string
	// Scope names the owner in logs (a case, suite or module name)
	Scope string
}

// Binder hands pool targets to test scopes
type Binder struct {
	pool *Pool
}

// NewBinder creates a binder over p
func NewBinder(p *Pool) *Binder {
	return &Binder{pool: p}
}

// Bind acquires a target for req. The caller must Release the binding on
// every exit path.
func (b *Binder) Bind(ctx context.Context, req Request) (*Binding, error) {
	t, err := b.pool.Acquire(ctx, req.Spec, req.Features)
	if err != nil {
		return nil, err
	}
	b.pool.log.Debug("bound target", "id", t.ID, "scope", req.Scope)
	return &Binding{Target: t, scope: req.Scope, pool: b.pool}, nil
}

// Binding is a target held by one scope
type Binding struct {
	Target *target.Target

	scope string
	pool  *Pool
	once  sync.Once
	err   error
}

// Release returns the target to the pool. Only the first call has an effect.
func (b *Binding) Release() error {
	b.once.Do(func() {
		b.err = b.pool.Release(b.Target)
		b.pool.log.Debug("released target", "id", b.Target.ID, "scope", b.scope)
	})
	return b.err
}
