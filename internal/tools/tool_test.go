package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoanbernabeu/testfleet/internal/target"
)

func TestTool_RunCachesUnlessForced(t *testing.T) {
	node := newScriptedNode(map[string]*target.ExecResult{"uname -r": ok("6.1.0\n")})
	tool := NewTool(node, "uname")
	ctx := context.Background()

	first, err := tool.Run(ctx, "-r", RunOptions{})
	require.NoError(t, err)
	second, err := tool.Run(ctx, "-r", RunOptions{})
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, node.count("uname"))

	_, err = tool.Run(ctx, "-r", RunOptions{ForceRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, node.count("uname"))

	_, err = tool.Run(ctx, "-r", RunOptions{Sudo: true})
	require.NoError(t, err)
	assert.Equal(t, 3, node.count("uname"), "sudo is part of the cache key")
}

func TestTool_RunShellWrapsLine(t *testing.T) {
	node := newScriptedNode(nil)
	tool := NewTool(node, "service")

	res, err := tool.Run(context.Background(), "ntp restart", RunOptions{Shell: true, Sudo: true})
	require.NoError(t, err)
	assert.Equal(t, "service ntp restart", res.Command)
	assert.Equal(t, "sh -c 'service ntp restart'", node.last().cmd)
	assert.True(t, node.last().opts.Sudo)
}

type brokenNode struct{}

func (brokenNode) Run(context.Context, string, target.RunOptions) (*target.ExecResult, error) {
	return nil, target.ErrNotConnected
}
func (brokenNode) String() string { return "broken" }

func TestTool_RunTransportError(t *testing.T) {
	_, err := NewTool(brokenNode{}, "cat").Run(context.Background(), "/etc/hostname", RunOptions{})
	assert.ErrorIs(t, err, target.ErrNotConnected)
}

func TestResult_AssertExitCode(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		expected []int
		wantErr  bool
	}{
		{"zero default", 0, nil, false},
		{"non-zero default", 2, nil, true},
		{"listed", 3, []int{0, 3}, false},
		{"not listed", 1, []int{0, 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Result{Command: "false", ExitCode: tt.code, Stderr: "boom\n"}
			err := r.AssertExitCode(tt.expected...)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsToolExecutionFailure(err))
			assert.True(t, IsToolExecutionFailure(fmt.Errorf("wrapped: %w", err)))
			assert.Contains(t, err.Error(), "boom")
		})
	}
	assert.False(t, IsToolExecutionFailure(errors.New("plain")))
	assert.False(t, IsToolExecutionFailure(nil))
}

func TestTool_InstallIdempotent(t *testing.T) {
	installed := false
	node := newScriptedNode(map[string]*target.ExecResult{"command -v apt-get": ok("/usr/bin/apt-get")})
	node.hook = func(cmd string) *target.ExecResult {
		switch cmd {
		case "command -v ntpq":
			if installed {
				return ok("/usr/sbin/ntpq")
			}
			return &target.ExecResult{ExitCode: 1}
		case "apt-get install -y -q ntp":
			installed = true
			return ok("")
		}
		return nil
	}

	ntp := NewNtp(node)
	ctx := context.Background()
	require.NoError(t, ntp.Install(ctx))
	require.NoError(t, ntp.Install(ctx))
	assert.Equal(t, 1, node.count("apt-get install"))
	assert.Equal(t, 2, node.count("command -v ntpq"), "lookup before and after install only")
}

func TestTool_InstallAlreadyPresent(t *testing.T) {
	node := newScriptedNode(map[string]*target.ExecResult{"command -v ntpstat": ok("/usr/bin/ntpstat")})
	require.NoError(t, NewNtpstat(node).Install(context.Background()))
	assert.Zero(t, node.count("apt-get"))
}

func TestTool_InstallNoPackageManager(t *testing.T) {
	node := newScriptedNode(nil)
	err := NewNtp(node).Install(context.Background())
	assert.ErrorContains(t, err, "no supported package manager")
}

func TestPackageManager_Install(t *testing.T) {
	node := newScriptedNode(map[string]*target.ExecResult{
		"command -v dnf":               ok("/usr/bin/dnf"),
		"dnf install -y -q ntp chrony": ok(""),
	})
	ctx := context.Background()

	pm, err := DetectPackageManager(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, "dnf", pm.Name)

	require.NoError(t, pm.Install(ctx, node, "ntp", "chrony"))
	assert.True(t, node.last().opts.Sudo)

	assert.Error(t, pm.Install(ctx, node, "ntp; rm -rf /"))
	assert.NoError(t, pm.Install(ctx, node))
}

func TestRetryPolicy_Do(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}.Do(ctx, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond}.Do(ctx, func(context.Context) error {
		calls++
		return errors.New("still broken")
	})
	assert.ErrorContains(t, err, "failed after 2 attempts: still broken")
	assert.Equal(t, 2, calls)

	calls = 0
	_ = RetryPolicy{}.Do(ctx, func(context.Context) error { calls++; return errors.New("x") })
	assert.Equal(t, 1, calls, "zero attempts still runs once")
}

func TestRetryPolicy_DoCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := RetryPolicy{MaxAttempts: 5, Delay: time.Hour}.Do(ctx, func(context.Context) error {
		cancel()
		return errors.New("flaky")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.Delay)
}
