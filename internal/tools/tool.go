// Package tools wraps the command line programs test cases drive on a
// target. Each tool knows its command, how to check it is present and how
// to install it.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/yoanbernabeu/testfleet/internal/security"
	"github.com/yoanbernabeu/testfleet/internal/target"
)

// Node is where a tool runs. *target.Target satisfies it.
type Node interface {
	Run(ctx context.Context, cmd string, opts target.RunOptions) (*target.ExecResult, error)
	String() string
}

var _ Node = (*target.Target)(nil)

// RunOptions control a single tool invocation
type RunOptions struct {
	// Shell runs the command line through "sh -c" so pipes and
	// redirections in args apply to the whole line.
	Shell bool
	Sudo  bool
	// ForceRun bypasses the result cache.
	ForceRun bool
	Env      map[string]string
}

// Result is the outcome of a tool invocation
type Result struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

// AssertExitCode fails with a *ToolExecutionFailure unless the exit code is
// one of expected (0 when none is given).
func (r *Result) AssertExitCode(expected ...int) error {
	if len(expected) == 0 {
		expected = []int{0}
	}
	for _, code := range expected {
		if r.ExitCode == code {
			return nil
		}
	}
	return &ToolExecutionFailure{Command: r.Command, ExitCode: r.ExitCode, Expected: expected, Stderr: r.Stderr}
}

// ToolExecutionFailure reports an unexpected exit code
type ToolExecutionFailure struct {
	Command  string
	ExitCode int
	Expected []int
	Stderr   string
}

func (e *ToolExecutionFailure) Error() string {
	msg := fmt.Sprintf("command %q exited with %d, expected %v", security.SanitizeCommandForLog(e.Command), e.ExitCode, e.Expected)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// IsToolExecutionFailure checks if the error is or wraps a ToolExecutionFailure
func IsToolExecutionFailure(err error) bool {
	var failure *ToolExecutionFailure
	return err != nil && errors.As(err, &failure)
}

// Tool runs one command on one node and caches results per command line.
type Tool struct {
	node    Node
	command string
	// packages installed when the command is missing; empty means the
	// tool is assumed to be part of the base system.
	packages []string
	// privilegedLookup checks existence with sudo, for tools living in sbin.
	privilegedLookup bool

	mu        sync.Mutex
	cache     map[string]*Result
	installed bool
}

// NewTool returns a tool running command on node
func NewTool(node Node, command string, packages ...string) *Tool {
	return &Tool{node: node, command: command, packages: packages, cache: make(map[string]*Result)}
}

// Command returns the program the tool runs
func (t *Tool) Command() string {
	return t.command
}

// Node returns the node the tool runs on
func (t *Tool) Node() Node {
	return t.node
}

// Run executes the tool with args. A previous identical invocation is
// returned from the cache unless opts.ForceRun is set.
func (t *Tool) Run(ctx context.Context, args string, opts RunOptions) (*Result, error) {
	line := t.command
	if args != "" {
		line += " " + args
	}
	key := fmt.Sprintf("%t|%t|%s", opts.Sudo, opts.Shell, line)

	if !opts.ForceRun {
		t.mu.Lock()
		cached, ok := t.cache[key]
		t.mu.Unlock()
		if ok {
			return cached, nil
		}
	}

	cmd := line
	if opts.Shell {
		cmd = "sh -c " + security.ShellEscape(line)
	}
	res, err := t.node.Run(ctx, cmd, target.RunOptions{Sudo: opts.Sudo, Env: opts.Env})
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", t.command, t.node, err)
	}

	result := &Result{Command: line, ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
	t.mu.Lock()
	t.cache[key] = result
	t.mu.Unlock()
	return result, nil
}

// Exists reports whether the command is available on the node
func (t *Tool) Exists(ctx context.Context) (bool, error) {
	if len(t.packages) == 0 {
		return true, nil
	}
	res, err := t.node.Run(ctx, "command -v "+t.command, target.RunOptions{Sudo: t.privilegedLookup})
	if err != nil {
		return false, fmt.Errorf("looking up %s on %s: %w", t.command, t.node, err)
	}
	return res.ExitCode == 0, nil
}

// Install makes sure the command is present, installing its packages with
// the node's package manager when it is not. Calling it again is a no-op.
func (t *Tool) Install(ctx context.Context) error {
	t.mu.Lock()
	done := t.installed
	t.mu.Unlock()
	if done {
		return nil
	}

	ok, err := t.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		pm, err := DetectPackageManager(ctx, t.node)
		if err != nil {
			return fmt.Errorf("installing %s: %w", t.command, err)
		}
		if err := pm.Install(ctx, t.node, t.packages...); err != nil {
			return fmt.Errorf("installing %s: %w", t.command, err)
		}
		ok, err = t.Exists(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s still missing on %s after installing %v", t.command, t.node, t.packages)
		}
	}

	t.mu.Lock()
	t.installed = true
	t.mu.Unlock()
	return nil
}
