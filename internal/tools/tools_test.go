package tools

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoanbernabeu/testfleet/internal/target"
)

const clocksource = "/sys/devices/system/clocksource/clocksource0/current_clocksource"

func TestCat_Read(t *testing.T) {
	node := newScriptedNode(map[string]*target.ExecResult{
		"cat '" + clocksource + "'": ok("tsc\n"),
	})
	c := NewCat(node)

	got, err := c.Read(context.Background(), clocksource, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "tsc", got)

	_, err = c.Read(context.Background(), "/missing", RunOptions{})
	assert.True(t, IsToolExecutionFailure(err))

	_, err = c.Read(context.Background(), "relative/path", RunOptions{})
	assert.Error(t, err)
}

func TestCat_WaitContent(t *testing.T) {
	var reads atomic.Int32
	node := newScriptedNode(nil)
	node.hook = func(string) *target.ExecResult {
		if reads.Add(1) < 3 {
			return ok("hpet\n")
		}
		return ok("acpi_pm\n")
	}
	c := NewCat(node)

	changed, err := c.WaitContent(context.Background(), clocksource, []string{"tsc", "acpi_pm"}, time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = c.WaitContent(context.Background(), clocksource, []string{"kvm-clock"}, 5*time.Millisecond, time.Millisecond)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestEchoDateUname(t *testing.T) {
	node := newScriptedNode(map[string]*target.ExecResult{
		"echo 'hello world'": ok("hello world\n"),
		"date -u +%s":        ok("1700000000\n"),
		"uname -s -r -m":     ok("Linux 6.1.0-18-amd64 x86_64\n"),
	})
	ctx := context.Background()

	out, err := NewEcho(node).Say(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)

	now, err := NewDate(node).Now(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), now)

	info, err := NewUname(node).Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, UnameInfo{KernelName: "Linux", KernelRelease: "6.1.0-18-amd64", Machine: "x86_64"}, info)
}

func TestParseLscpu(t *testing.T) {
	out := `Architecture:            x86_64
  CPU op-mode(s):        32-bit, 64-bit
CPU(s):                  4
Vendor ID:               GenuineIntel
`
	info, err := parseLscpu(out)
	require.NoError(t, err)
	assert.Equal(t, CPUInfo{Architecture: "x86_64", Cores: 4, Vendor: "GenuineIntel", Type: CPUIntel}, info)
	assert.Equal(t, "Intel", info.Type.String())

	info, err = parseLscpu("Architecture: aarch64\nCPU(s): 2\n")
	require.NoError(t, err)
	assert.Equal(t, CPUARM, info.Type)

	_, err = parseLscpu("nothing useful")
	assert.Error(t, err)
}

func TestParseNtpDelay(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want float64
	}{
		{"negative offset", "associd=0 status=0615 leap_none, sync_ntp,\noffset=-2.500, frequency=-12.345, sys_jitter=0.1\n", 0.0025},
		{"zero offset", "offset=0.000, frequency=1.0\n", 0},
		{"no offset", "ntpq: read: Connection refused\n", DefaultNtpOffset / 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseNtpDelay(tt.out)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestNtp_CheckDelayRetries(t *testing.T) {
	var queries atomic.Int32
	node := newScriptedNode(nil)
	node.hook = func(cmd string) *target.ExecResult {
		if cmd != "sh -c 'ntpq -c rl 127.0.0.1'" {
			return nil
		}
		if queries.Add(1) < 3 {
			return ok("offset=1.200, frequency=3.0\n")
		}
		return ok("offset=0.000, frequency=3.0\n")
	}

	err := NewNtp(node).CheckDelay(context.Background(), RetryPolicy{MaxAttempts: 5, Delay: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, int32(3), queries.Load())
}

func TestNtp_CheckDelayGivesUp(t *testing.T) {
	node := newScriptedNode(map[string]*target.ExecResult{
		"sh -c 'ntpq -c rl 127.0.0.1'": ok("offset=9.0, frequency=3.0\n"),
	})
	err := NewNtp(node).CheckDelay(context.Background(), RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond})
	assert.ErrorContains(t, err, "time offset")
}

func TestServiceNtpstatHwclock(t *testing.T) {
	node := newScriptedNode(map[string]*target.ExecResult{
		"sh -c 'service ntp restart'": ok(""),
		"sh -c 'service ntp status'":  {ExitCode: 3},
		"sh -c 'ntpstat'":             {ExitCode: 1},
		"hwclock --systohc":           ok(""),
	})
	ctx := context.Background()

	require.NoError(t, NewNtp(node).Restart(ctx))
	running, err := NewService(node).IsRunning(ctx, "ntp")
	require.NoError(t, err)
	assert.False(t, running)

	assert.Error(t, NewService(node).Restart(ctx, "ntp; reboot"))

	err = NewNtpstat(node).CheckClockSync(ctx)
	assert.True(t, IsToolExecutionFailure(err))

	require.NoError(t, NewHwclock(node).SetRTCToSystemTime(ctx))
	assert.True(t, node.last().opts.Sudo)
}

func TestPathExists(t *testing.T) {
	node := newScriptedNode(map[string]*target.ExecResult{"test -e '/dev/ptp0'": ok("")})
	ctx := context.Background()

	found, err := PathExists(ctx, node, "/dev/ptp0")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = PathExists(ctx, node, "/dev/ptp1")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = PathExists(ctx, node, "../etc")
	assert.Error(t, err)
}
