package target

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"

	"github.com/yoanbernabeu/testfleet/internal/security"
)

// UploadContent writes content to remotePath on the target
// SECURITY: Uses base64 encoding to prevent heredoc injection attacks
func (t *Target) UploadContent(ctx context.Context, content []byte, remotePath string, mode uint32) error {
	if err := security.ValidateRemotePath(remotePath); err != nil {
		return fmt.Errorf("invalid upload path: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(content)
	cmd := fmt.Sprintf("mkdir -p %s && echo '%s' | base64 -d > %s && chmod %o %s",
		security.ShellEscape(path.Dir(remotePath)),
		encoded,
		security.ShellEscape(remotePath),
		mode,
		security.ShellEscape(remotePath))

	res, err := t.Run(ctx, cmd, RunOptions{})
	if err != nil {
		return fmt.Errorf("failed to upload content: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("failed to write file %s: %s", remotePath, res.Stderr)
	}
	return nil
}

// WorkingPath creates and returns the per-target working directory
func (t *Target) WorkingPath(ctx context.Context, base string) (string, error) {
	dir := path.Join(base, t.ID)
	if err := security.ValidateRemotePath(dir); err != nil {
		return "", err
	}
	res, err := t.Run(ctx, "mkdir -p "+security.ShellEscape(dir), RunOptions{})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("failed to create working path %s: %s", dir, res.Stderr)
	}
	return dir, nil
}
