// Package localplatform runs targets as scratch directories on this machine.
package localplatform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/internal/security"
	"github.com/yoanbernabeu/testfleet/internal/target"
	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

// Name is the platform name used in runbooks
const Name = "Local"

// Platform gives every target its own temporary working directory and runs
// commands with the local shell.
type Platform struct{}

// New creates the local platform
func New() *Platform {
	return &Platform{}
}

// Schema implements target.Platform
func (p *Platform) Schema() target.Schema {
	return target.Schema{Fields: []target.Field{
		{Name: "shell", Type: target.StringField, Default: "/bin/sh", Description: "Shell used to run commands"},
		{Name: "base_dir", Type: target.StringField, Default: "", Description: "Parent of the scratch directory (default: system temp dir)"},
	}}
}

// Deploy creates the scratch directory
func (p *Platform) Deploy(_ context.Context, params target.Params) (target.Handle, error) {
	shell := params.GetString("shell")
	if _, err := exec.LookPath(shell); err != nil {
		return target.Handle{}, fmt.Errorf("shell %q not found: %w", shell, err)
	}
	dir, err := os.MkdirTemp(params.GetString("base_dir"), constants.TargetIDPrefix+"-local-")
	if err != nil {
		return target.Handle{}, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return target.Handle{ID: dir, Address: "localhost", Attrs: map[string]string{"shell": shell}}, nil
}

// Delete removes the scratch directory
func (p *Platform) Delete(_ context.Context, h target.Handle) error {
	if err := os.RemoveAll(h.ID); err != nil {
		return fmt.Errorf("failed to remove %s: %w", h.ID, err)
	}
	return nil
}

// Connect checks that the scratch directory still exists
func (p *Platform) Connect(_ context.Context, h target.Handle) (target.Connection, error) {
	if _, err := os.Stat(h.ID); err != nil {
		return nil, fmt.Errorf("scratch directory %s: %w", h.ID, err)
	}
	shell := h.Attrs["shell"]
	if shell == "" {
		shell = "/bin/sh"
	}
	return &connection{dir: h.ID, shell: shell}, nil
}

type connection struct {
	dir   string
	shell string
}

func (c *connection) Run(ctx context.Context, cmd string, opts target.RunOptions) (*target.ExecResult, error) {
	full := target.BuildCommand(cmd, opts)
	logging.Debug("local-platform", "exec", "dir", c.dir, "command", security.SanitizeCommandForLog(full))

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, c.shell, "-c", full)
	command.Dir = c.dir
	command.Stdout = &stdout
	command.Stderr = &stderr

	err := command.Run()
	res := &target.ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, fmt.Errorf("failed to execute command: %w", err)
	}
	return res, nil
}

func (c *connection) Close() error {
	return nil
}
