// Package testcase describes test cases, selects them with filters and
// carries the per-execution context handed to a case body.
package testcase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yoanbernabeu/testfleet/internal/target"
	"github.com/yoanbernabeu/testfleet/internal/tools"
)

// Scope is how long a bound target is shared between cases
type Scope int

const (
	// ScopeFunction binds a target for a single case.
	ScopeFunction Scope = iota
	// ScopeClass shares the target across the cases of a suite.
	ScopeClass
	// ScopeModule shares the target across the cases of a module.
	ScopeModule
)

func (s Scope) String() string {
	switch s {
	case ScopeFunction:
		return "function"
	case ScopeClass:
		return "class"
	case ScopeModule:
		return "module"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Func is a case body. A returned error fails the case.
type Func func(ctx context.Context, t *T) error

// Case is a registered test case and its selection metadata
type Case struct {
	Name        string
	Suite       string
	Module      string
	Area        string
	Category    string
	Priority    int
	Tags        []string
	Description string

	// NeedsTarget makes the case run once per configured target.
	NeedsTarget bool
	// Features the bound target must provide.
	Features []string
	Scope    Scope

	Run Func
}

// FullName returns module.suite.name, skipping empty parts
func (c *Case) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Module, c.Suite, c.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// ScopeKey groups cases that share a binding at their scope
func (c *Case) ScopeKey() string {
	switch c.Scope {
	case ScopeClass:
		return "class:" + c.Module + "." + c.Suite
	case ScopeModule:
		return "module:" + c.Module
	default:
		return "function:" + c.FullName()
	}
}

// T is handed to a case body for one execution
type T struct {
	Case *Case
	// Target is nil for cases that do not need one.
	Target *target.Target
	// TargetName is the configured name of the bound target.
	TargetName string
	Log        *slog.Logger
	Retry      tools.RetryPolicy
	// WorkDir is a local directory for artifacts of the run.
	WorkDir string
}

// ErrSkipped marks a case that chose not to run
var ErrSkipped = errors.New("skipped")

// Skip returns an error reporting the case as skipped rather than failed
func (t *T) Skip(reason string) error {
	return fmt.Errorf("%w: %s", ErrSkipped, reason)
}

// Node returns the bound target as a tool node
func (t *T) Node() tools.Node {
	return t.Target
}
