package timesync

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoanbernabeu/testfleet/internal/target"
	"github.com/yoanbernabeu/testfleet/internal/target/targettest"
	"github.com/yoanbernabeu/testfleet/internal/testcase"
	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

// machine answers commands from a table and counts them
type machine struct {
	mu      sync.Mutex
	answers map[string]target.ExecResult
	seen    map[string]int
}

func (m *machine) run(_ context.Context, cmd string, _ target.RunOptions) (*target.ExecResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[cmd]++
	if cmd == "id -u" {
		return &target.ExecResult{Stdout: "0\n"}, nil
	}
	if res, ok := m.answers[cmd]; ok {
		return &res, nil
	}
	return &target.ExecResult{ExitCode: 1}, nil
}

func (m *machine) count(cmd string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[cmd]
}

func boot(t *testing.T, answers map[string]target.ExecResult) (*target.Target, *machine) {
	t.Helper()
	m := &machine{answers: answers, seen: map[string]int{}}
	return connect(t, m.run), m
}

func connect(t *testing.T, runFunc func(context.Context, string, target.RunOptions) (*target.ExecResult, error)) *target.Target {
	t.Helper()
	fake := &targettest.FakePlatform{RunFunc: runFunc}
	tg := target.New(target.Spec{Name: "vm", Platform: "Fake", Params: target.Params{"image": "ubuntu"}}, fake, nil)
	require.NoError(t, tg.Deploy(context.Background()))
	require.NoError(t, tg.Open(context.Background()))
	return tg
}

func run(t *testing.T, name string, tg *target.Target) error {
	t.Helper()
	reg := testcase.NewRegistry()
	require.NoError(t, Register(reg))
	c, ok := reg.Get("timesync.TimeSync." + name)
	require.True(t, ok, name)
	return c.Run(context.Background(), &testcase.T{Case: c, Target: tg, TargetName: "vm", Log: logging.Discard()})
}

func out(s string) target.ExecResult { return target.ExecResult{Stdout: s} }

func TestCasesShareClassScope(t *testing.T) {
	for _, c := range Cases() {
		assert.Equal(t, testcase.ScopeClass, c.Scope, c.Name)
		assert.True(t, c.NeedsTarget, c.Name)
		assert.Equal(t, "time", c.Area)
	}
}

const lscpuIntel2 = "Architecture: x86_64\nCPU(s): 2\nVendor ID: GenuineIntel\n"

func TestCheckClocksource_SingleSource(t *testing.T) {
	tg, m := boot(t, map[string]target.ExecResult{
		"cat '" + CurrentClocksource + "'":   out("kvm-clock\n"),
		"cat '" + AvailableClocksource + "'": out("kvm-clock \n"),
		"command -v lscpu":                   out("/usr/bin/lscpu"),
		"lscpu":                              out(lscpuIntel2),
		"cat '" + CPUInfo + "'":              out("flags : fpu constant_tsc x\nflags : fpu constant_tsc x\n"),
		"dmesg":                              out("[0.1] clocksource: Switched to clocksource kvm-clock\n"),
	})
	require.NoError(t, run(t, "timesync_check_clocksource", tg))
	assert.Zero(t, m.count("sh -c 'echo kvm-clock > "+UnbindClocksource+"'"))
}

func TestCheckClocksource_Unbind(t *testing.T) {
	m := &machine{seen: map[string]int{}, answers: map[string]target.ExecResult{
		"cat '" + AvailableClocksource + "'":  out("tsc hpet acpi_pm\n"),
		"command -v lscpu":                    out("/usr/bin/lscpu"),
		"lscpu":                               out("Architecture: aarch64\nCPU(s): 4\n"),
		"dmesg":                               out("clocksource tsc\n"),
		"test -e '" + UnbindClocksource + "'": out(""),
		"sh -c 'echo tsc > " + UnbindClocksource + "'": out(""),
	}}
	reads := 0
	runFunc := func(ctx context.Context, cmd string, opts target.RunOptions) (*target.ExecResult, error) {
		if cmd == "cat '"+CurrentClocksource+"'" {
			reads++
			if reads == 1 {
				return &target.ExecResult{Stdout: "tsc\n"}, nil
			}
			return &target.ExecResult{Stdout: "hpet\n"}, nil
		}
		return m.run(ctx, cmd, opts)
	}

	require.NoError(t, run(t, "timesync_check_clocksource", connect(t, runFunc)))
	assert.Equal(t, 2, reads)
	assert.Equal(t, 1, m.count("sh -c 'echo tsc > "+UnbindClocksource+"'"))
}

func TestCheckClocksource_NotAvailable(t *testing.T) {
	tg, _ := boot(t, map[string]target.ExecResult{
		"cat '" + CurrentClocksource + "'":   out("jiffies\n"),
		"cat '" + AvailableClocksource + "'": out("tsc hpet\n"),
	})
	assert.ErrorContains(t, run(t, "timesync_check_clocksource", tg), "jiffies")
}

func TestCheckClockevent(t *testing.T) {
	tg, _ := boot(t, map[string]target.ExecResult{
		"test -e '" + CurrentClockevent + "'": out(""),
		"cat '" + CurrentClockevent + "'":     out("lapic-deadline\n"),
		"cat '" + TimerList + "'":             out("hrtimer_interrupt\nhrtimer_interrupt\n"),
		"command -v lscpu":                    out("/usr/bin/lscpu"),
		"lscpu":                               out(lscpuIntel2),
	})
	assert.NoError(t, run(t, "timesync_check_clockevent", tg))

	bare, _ := boot(t, nil)
	assert.ErrorIs(t, run(t, "timesync_check_clockevent", bare), testcase.ErrSkipped)
}

func TestValidatePTP_SkipsWithoutClock(t *testing.T) {
	tg, _ := boot(t, nil)
	err := run(t, "timesync_validate_ptp", tg)
	assert.True(t, errors.Is(err, testcase.ErrSkipped))
}

func TestValidatePTP(t *testing.T) {
	tg, _ := boot(t, map[string]target.ExecResult{
		"test -e '" + PTPClockName + "'":  out(""),
		"dmesg":                           out("hv_utils: PTP clock support registered\n"),
		"cat '" + PTPClockName + "'":      out("hyperv\n"),
		"test -e '" + PTPHypervLink + "'": out(""),
		"test -e '/etc/chrony.conf'":      out(""),
		"cat '/etc/chrony.conf'":          out("refclock PHC /dev/ptp_hyperv poll 3\n"),
	})
	assert.NoError(t, run(t, "timesync_validate_ptp", tg))
}

func TestCheckNTP(t *testing.T) {
	tg, m := boot(t, map[string]target.ExecResult{
		"command -v ntpq":              out("/usr/sbin/ntpq"),
		"command -v ntpstat":           out("/usr/bin/ntpstat"),
		"sh -c 'service ntp restart'":  out(""),
		"hwclock --systohc":            out(""),
		"sh -c 'ntpq -c rl 127.0.0.1'": out("offset=0.000, frequency=-1.2\n"),
		"sh -c 'ntpstat'":              out("synchronised to NTP server\n"),
	})
	require.NoError(t, run(t, "timesync_ntp", tg))
	assert.Equal(t, 1, m.count("sh -c 'service ntp restart'"))
	assert.True(t, tg.HasFeatures([]string{"ntp"}))
}

func TestCheckNTP_NotSynced(t *testing.T) {
	tg, _ := boot(t, map[string]target.ExecResult{
		"command -v ntpq":              out("/usr/sbin/ntpq"),
		"command -v ntpstat":           out("/usr/bin/ntpstat"),
		"sh -c 'service ntp restart'":  out(""),
		"hwclock --systohc":            out(""),
		"sh -c 'ntpq -c rl 127.0.0.1'": out("offset=0.000, frequency=-1.2\n"),
		"sh -c 'ntpstat'":              {ExitCode: 1, Stdout: "unsynchronised\n"},
	})
	assert.Error(t, run(t, "timesync_ntp", tg))
}
