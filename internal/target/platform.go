package target

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yoanbernabeu/testfleet/internal/security"
)

// Handle identifies a deployed resource on its platform
type Handle struct {
	ID      string
	Address string
	Attrs   map[string]string
}

// ExecResult holds the outcome of a command run on a target
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunOptions modify how a command is run on a target
type RunOptions struct {
	Sudo bool
	Dir  string
	Env  map[string]string
}

// Connection is an open command channel to a deployed target
type Connection interface {
	Run(ctx context.Context, cmd string, opts RunOptions) (*ExecResult, error)
	Close() error
}

// Platform creates, reaches and destroys targets of one kind
type Platform interface {
	Schema() Schema
	Deploy(ctx context.Context, params Params) (Handle, error)
	Delete(ctx context.Context, h Handle) error
	Connect(ctx context.Context, h Handle) (Connection, error)
}

// BuildCommand renders cmd with opts applied as a single POSIX shell string.
// Platforms hand the result to "sh -c" or an SSH session.
func BuildCommand(cmd string, opts RunOptions) string {
	var b strings.Builder

	if len(opts.Env) > 0 {
		keys := make([]string, 0, len(opts.Env))
		for k := range opts.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "export %s=%s; ", k, security.ShellEscape(opts.Env[k]))
		}
	}
	if opts.Dir != "" {
		fmt.Fprintf(&b, "cd %s && ", security.ShellEscape(opts.Dir))
	}
	b.WriteString(cmd)

	if opts.Sudo {
		return "sudo -n sh -c " + security.ShellEscape(b.String())
	}
	return b.String()
}
