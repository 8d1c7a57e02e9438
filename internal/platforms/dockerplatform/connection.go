package dockerplatform

import (
	"bytes"
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/yoanbernabeu/testfleet/internal/security"
	"github.com/yoanbernabeu/testfleet/internal/target"
	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

type connection struct {
	api         API
	containerID string
}

func (c *connection) Run(ctx context.Context, cmd string, opts target.RunOptions) (*target.ExecResult, error) {
	full := target.BuildCommand(cmd, opts)
	logging.Debug("docker-platform", "exec", "container", c.containerID, "command", security.SanitizeCommandForLog(full))

	created, err := c.api.ContainerExecCreate(ctx, c.containerID, container.ExecOptions{
		Cmd:          []string{"sh", "-c", full},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec in %s: %w", c.containerID, err)
	}

	attach, err := c.api.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec in %s: %w", c.containerID, err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return nil, fmt.Errorf("failed to read exec output: %w", err)
	}

	inspect, err := c.api.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec in %s: %w", c.containerID, err)
	}

	return &target.ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}

// Close is a no-op: the shared client outlives connections
func (c *connection) Close() error {
	return nil
}
