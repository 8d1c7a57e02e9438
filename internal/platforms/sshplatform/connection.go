package sshplatform

import (
	"context"

	"github.com/yoanbernabeu/testfleet/internal/security"
	"github.com/yoanbernabeu/testfleet/internal/ssh"
	"github.com/yoanbernabeu/testfleet/internal/target"
	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

type connection struct {
	exec ssh.Executor
}

func (c *connection) Run(ctx context.Context, cmd string, opts target.RunOptions) (*target.ExecResult, error) {
	full := target.BuildCommand(cmd, opts)
	logging.Debug("ssh-platform", "exec", "command", security.SanitizeCommandForLog(full))

	res, err := c.exec.Exec(ctx, full)
	if err != nil {
		return nil, err
	}
	return &target.ExecResult{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
	}, nil
}

func (c *connection) Close() error {
	return c.exec.Close()
}
