// Package targettest provides in-memory platform fakes for tests.
package targettest

import (
	"context"
	"fmt"
	"sync"

	"github.com/yoanbernabeu/testfleet/internal/target"
)

// FakePlatform is a Platform that records deploy and delete calls.
type FakePlatform struct {
	// SchemaFields overrides the default schema (a single optional "image" field).
	SchemaFields []target.Field
	// DeployFunc, when set, replaces the default deploy behavior.
	DeployFunc func(ctx context.Context, params target.Params) (target.Handle, error)
	// RunFunc answers commands on every connection.
	RunFunc func(ctx context.Context, cmd string, opts target.RunOptions) (*target.ExecResult, error)
	// CloseErr is returned by Close on every connection.
	CloseErr error

	mu          sync.Mutex
	deployed    int
	deleted     map[string]int
	connections []*FakeConnection
}

var _ target.Platform = (*FakePlatform)(nil)

// Schema implements target.Platform
func (p *FakePlatform) Schema() target.Schema {
	if p.SchemaFields != nil {
		return target.Schema{Fields: p.SchemaFields}
	}
	return target.Schema{Fields: []target.Field{
		{Name: "image", Type: target.StringField, Default: "ubuntu", Description: "image to boot"},
	}}
}

// Deploy implements target.Platform
func (p *FakePlatform) Deploy(ctx context.Context, params target.Params) (target.Handle, error) {
	if p.DeployFunc != nil {
		h, err := p.DeployFunc(ctx, params)
		if err != nil {
			return target.Handle{}, err
		}
		p.mu.Lock()
		p.deployed++
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deployed++
	return target.Handle{ID: fmt.Sprintf("fake-%d", p.deployed)}, nil
}

// Delete implements target.Platform
func (p *FakePlatform) Delete(_ context.Context, h target.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleted == nil {
		p.deleted = make(map[string]int)
	}
	p.deleted[h.ID]++
	return nil
}

// Connect implements target.Platform
func (p *FakePlatform) Connect(_ context.Context, h target.Handle) (target.Connection, error) {
	c := &FakeConnection{HandleID: h.ID, RunFunc: p.RunFunc, CloseErr: p.CloseErr}
	p.mu.Lock()
	p.connections = append(p.connections, c)
	p.mu.Unlock()
	return c, nil
}

// DeployCount returns how many deploys succeeded
func (p *FakePlatform) DeployCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deployed
}

// DeleteCount returns how many times handle id was deleted
func (p *FakePlatform) DeleteCount(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deleted[id]
}

// TotalDeletes returns the number of delete calls across all handles
func (p *FakePlatform) TotalDeletes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.deleted {
		n += c
	}
	return n
}

// Connections returns every connection opened so far
func (p *FakePlatform) Connections() []*FakeConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakeConnection(nil), p.connections...)
}

// FakeConnection records commands and answers them through RunFunc.
// Without RunFunc every command succeeds with empty output, except the
// privilege probe which reports root.
type FakeConnection struct {
	HandleID string
	RunFunc  func(ctx context.Context, cmd string, opts target.RunOptions) (*target.ExecResult, error)
	CloseErr error

	mu       sync.Mutex
	commands []string
	closed   bool
}

var _ target.Connection = (*FakeConnection)(nil)

// Run implements target.Connection
func (c *FakeConnection) Run(ctx context.Context, cmd string, opts target.RunOptions) (*target.ExecResult, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, target.ErrNotConnected
	}
	c.commands = append(c.commands, cmd)
	c.mu.Unlock()

	if c.RunFunc != nil {
		return c.RunFunc(ctx, cmd, opts)
	}
	if cmd == "id -u" {
		return &target.ExecResult{Stdout: "0\n"}, nil
	}
	return &target.ExecResult{}, nil
}

// Close implements target.Connection
func (c *FakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.CloseErr
}

// Closed reports whether Close was called
func (c *FakeConnection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Commands returns a copy of the recorded commands
func (c *FakeConnection) Commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}
