package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yoanbernabeu/testfleet/internal/security"
	"github.com/yoanbernabeu/testfleet/internal/target"
)

// Cat reads files on a node
type Cat struct{ *Tool }

// NewCat returns a Cat bound to node
func NewCat(node Node) *Cat {
	return &Cat{NewTool(node, "cat")}
}

// Read returns the trimmed content of path. Set opts.ForceRun for files
// that change between reads.
func (c *Cat) Read(ctx context.Context, path string, opts RunOptions) (string, error) {
	if err := security.ValidateRemotePath(path); err != nil {
		return "", err
	}
	res, err := c.Run(ctx, security.ShellEscape(path), opts)
	if err != nil {
		return "", err
	}
	if err := res.AssertExitCode(); err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// WaitContent polls path until its content is one of expected. It returns
// false when timeout elapses first.
func (c *Cat) WaitContent(ctx context.Context, path string, expected []string, timeout, interval time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		got, err := c.Read(ctx, path, RunOptions{ForceRun: true})
		if err != nil {
			return false, err
		}
		for _, e := range expected {
			if got == e {
				return true, nil
			}
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Echo prints text on a node
type Echo struct{ *Tool }

// NewEcho returns an Echo bound to node
func NewEcho(node Node) *Echo {
	return &Echo{NewTool(node, "echo")}
}

// Say echoes text back through the node's shell
func (e *Echo) Say(ctx context.Context, text string) (string, error) {
	res, err := e.Run(ctx, security.ShellEscape(text), RunOptions{ForceRun: true})
	if err != nil {
		return "", err
	}
	if err := res.AssertExitCode(); err != nil {
		return "", err
	}
	return strings.TrimRight(res.Stdout, "\n"), nil
}

// Date reads the node clock
type Date struct{ *Tool }

// NewDate returns a Date bound to node
func NewDate(node Node) *Date {
	return &Date{NewTool(node, "date")}
}

// Now returns the node's current time, at second precision
func (d *Date) Now(ctx context.Context) (time.Time, error) {
	res, err := d.Run(ctx, "-u +%s", RunOptions{ForceRun: true})
	if err != nil {
		return time.Time{}, err
	}
	if err := res.AssertExitCode(); err != nil {
		return time.Time{}, err
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(res.Stdout), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unexpected date output %q: %w", res.Stdout, err)
	}
	return time.Unix(secs, 0).UTC(), nil
}

// UnameInfo describes a node's kernel
type UnameInfo struct {
	KernelName    string
	KernelRelease string
	Machine       string
}

// Uname reads kernel information
type Uname struct{ *Tool }

// NewUname returns a Uname bound to node
func NewUname(node Node) *Uname {
	return &Uname{NewTool(node, "uname")}
}

// Info returns kernel name, release and machine. The result is cached.
func (u *Uname) Info(ctx context.Context) (UnameInfo, error) {
	res, err := u.Run(ctx, "-s -r -m", RunOptions{})
	if err != nil {
		return UnameInfo{}, err
	}
	if err := res.AssertExitCode(); err != nil {
		return UnameInfo{}, err
	}
	fields := strings.Fields(res.Stdout)
	if len(fields) != 3 {
		return UnameInfo{}, fmt.Errorf("unexpected uname output %q", res.Stdout)
	}
	return UnameInfo{KernelName: fields[0], KernelRelease: fields[1], Machine: fields[2]}, nil
}

// Dmesg reads the kernel ring buffer
type Dmesg struct{ *Tool }

// NewDmesg returns a Dmesg bound to node
func NewDmesg(node Node) *Dmesg {
	return &Dmesg{NewTool(node, "dmesg")}
}

// Output returns the current kernel log
func (d *Dmesg) Output(ctx context.Context) (string, error) {
	res, err := d.Run(ctx, "", RunOptions{Sudo: true, ForceRun: true})
	if err != nil {
		return "", err
	}
	if err := res.AssertExitCode(); err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// PathExists reports whether path exists on node
func PathExists(ctx context.Context, node Node, path string) (bool, error) {
	if err := security.ValidateRemotePath(path); err != nil {
		return false, err
	}
	res, err := node.Run(ctx, "test -e "+security.ShellEscape(path), target.RunOptions{})
	if err != nil {
		return false, fmt.Errorf("checking %s on %s: %w", path, node, err)
	}
	return res.ExitCode == 0, nil
}
