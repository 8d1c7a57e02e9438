// Package timesync checks clock sources, clock events and NTP
// synchronisation on Linux targets.
package timesync

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/yoanbernabeu/testfleet/internal/testcase"
	"github.com/yoanbernabeu/testfleet/internal/tools"
)

const (
	module = "timesync"
	suite  = "TimeSync"
	area   = "time"
)

// Kernel interfaces read by the suite
const (
	CurrentClocksource   = "/sys/devices/system/clocksource/clocksource0/current_clocksource"
	AvailableClocksource = "/sys/devices/system/clocksource/clocksource0/available_clocksource"
	UnbindClocksource    = "/sys/devices/system/clocksource/clocksource0/unbind_clocksource"
	CurrentClockevent    = "/sys/devices/system/clockevents/clockevent0/current_device"
	PTPClockName         = "/sys/class/ptp/ptp0/clock_name"
	PTPHypervLink        = "/dev/ptp_hyperv"
	TimerList            = "/proc/timer_list"
	CPUInfo              = "/proc/cpuinfo"
)

const (
	ptpRegisteredMsg = "PTP clock support registered"
	eventHandlerName = "hrtimer_interrupt"
	switchTimeout    = 60 * time.Second
	switchInterval   = 500 * time.Millisecond
)

var chronyConfigs = []string{"/etc/chrony.conf", "/etc/chrony/chrony.conf"}

// Cases returns the time sync suite. All cases share one target per suite.
func Cases() []*testcase.Case {
	newCase := func(name, description string, run testcase.Func, features ...string) *testcase.Case {
		return &testcase.Case{
			Module: module, Suite: suite, Name: name,
			Area: area, Category: "functional", Priority: 2,
			Description: description,
			NeedsTarget: true,
			Features:    features,
			Scope:       testcase.ScopeClass,
			Run:         run,
		}
	}

	return []*testcase.Case{
		newCase("timesync_check_clocksource",
			"The current clock source is available, tsc flags match the CPU count, the kernel logged the switch and an unbind falls back to another source.",
			checkClocksource),
		newCase("timesync_check_clockevent",
			"hrtimer_interrupt shows up once per CPU in the timer list.",
			checkClockevent),
		newCase("timesync_validate_ptp",
			"A Hyper-V PTP clock is registered, linked as /dev/ptp_hyperv and used by chrony.",
			validatePTP),
		newCase("timesync_ntp",
			"ntpd restarts, the hardware clock follows system time and the offset settles to zero.",
			checkNTP, "ntp"),
	}
}

// Register adds the suite to reg
func Register(reg *testcase.Registry) error {
	for _, c := range Cases() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func checkClocksource(ctx context.Context, t *testcase.T) error {
	node := t.Node()
	cat := tools.NewCat(node)

	current, err := cat.Read(ctx, CurrentClocksource, tools.RunOptions{ForceRun: true})
	if err != nil {
		return err
	}
	availableRaw, err := cat.Read(ctx, AvailableClocksource, tools.RunOptions{})
	if err != nil {
		return err
	}
	available := strings.Fields(availableRaw)
	if !slices.Contains(available, current) {
		return fmt.Errorf("current clock source %q is not one of %v", current, available)
	}

	cpu, err := tools.NewLscpu(node).Info(ctx)
	if err != nil {
		return err
	}
	if cpu.Architecture == "x86_64" && (cpu.Type == tools.CPUIntel || cpu.Type == tools.CPUAMD) {
		flag := " constant_tsc "
		if cpu.Type == tools.CPUAMD {
			flag = " tsc "
		}
		cpuinfo, err := cat.Read(ctx, CPUInfo, tools.RunOptions{})
		if err != nil {
			return err
		}
		if n := strings.Count(cpuinfo, flag); n != cpu.Cores {
			return fmt.Errorf("%q shows up %d times in cpu flags, want %d", strings.TrimSpace(flag), n, cpu.Cores)
		}
	}

	dmesg, err := tools.NewDmesg(node).Output(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(dmesg, "clocksource "+current) {
		return fmt.Errorf("clocksource %s does not show up in dmesg", current)
	}

	canUnbind, err := tools.PathExists(ctx, node, UnbindClocksource)
	if err != nil {
		return err
	}
	if !canUnbind || len(available) < 2 {
		t.Log.Info("single clock source, skipping unbind", "current", current)
		return nil
	}

	others := slices.DeleteFunc(slices.Clone(available), func(s string) bool { return s == current })
	echo := tools.NewEcho(node)
	res, err := echo.Run(ctx, current+" > "+UnbindClocksource, tools.RunOptions{Shell: true, Sudo: true, ForceRun: true})
	if err != nil {
		return err
	}
	if err := res.AssertExitCode(); err != nil {
		return err
	}

	switched, err := cat.WaitContent(ctx, CurrentClocksource, others, switchTimeout, switchInterval)
	if err != nil {
		return err
	}
	if !switched {
		return fmt.Errorf("after unbinding %s the current clock source did not switch to one of %v", current, others)
	}
	return nil
}

func checkClockevent(ctx context.Context, t *testcase.T) error {
	node := t.Node()
	exists, err := tools.PathExists(ctx, node, CurrentClockevent)
	if err != nil {
		return err
	}
	if !exists {
		return t.Skip("no clock event device")
	}

	cat := tools.NewCat(node)
	event, err := cat.Read(ctx, CurrentClockevent, tools.RunOptions{})
	if err != nil {
		return err
	}
	if event == "" {
		return fmt.Errorf("empty clock event device name")
	}

	timers, err := cat.Read(ctx, TimerList, tools.RunOptions{Sudo: true})
	if err != nil {
		return err
	}
	cpu, err := tools.NewLscpu(node).Info(ctx)
	if err != nil {
		return err
	}
	if n := strings.Count(timers, eventHandlerName); n < cpu.Cores {
		return fmt.Errorf("%s shows up %d times in %s, want at least %d", eventHandlerName, n, TimerList, cpu.Cores)
	}
	t.Log.Info("clock event", "device", event, "cpus", cpu.Cores)
	return nil
}

func validatePTP(ctx context.Context, t *testcase.T) error {
	node := t.Node()
	exists, err := tools.PathExists(ctx, node, PTPClockName)
	if err != nil {
		return err
	}
	if !exists {
		return t.Skip("no PTP clock")
	}

	dmesg, err := tools.NewDmesg(node).Output(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(dmesg, ptpRegisteredMsg) {
		return fmt.Errorf("dmesg does not contain %q", ptpRegisteredMsg)
	}

	cat := tools.NewCat(node)
	name, err := cat.Read(ctx, PTPClockName, tools.RunOptions{})
	if err != nil {
		return err
	}
	if name != "hyperv" {
		return fmt.Errorf("ptp clock name should be 'hyperv', but it is %q", name)
	}

	linked, err := tools.PathExists(ctx, node, PTPHypervLink)
	if err != nil {
		return err
	}
	if !linked {
		return fmt.Errorf("%s doesn't exist, a udev rule should link it to the host PTP device", PTPHypervLink)
	}

	for _, conf := range chronyConfigs {
		present, err := tools.PathExists(ctx, node, conf)
		if err != nil {
			return err
		}
		if !present {
			continue
		}
		content, err := cat.Read(ctx, conf, tools.RunOptions{})
		if err != nil {
			return err
		}
		if !strings.Contains(content, "ptp_hyperv") {
			return fmt.Errorf("%s should use the %s symlink", conf, PTPHypervLink)
		}
	}
	return nil
}

func checkNTP(ctx context.Context, t *testcase.T) error {
	node := t.Node()
	ntp := tools.NewNtp(node)
	ntpstat := tools.NewNtpstat(node)
	for _, tool := range []*tools.Tool{ntp.Tool, ntpstat.Tool} {
		if err := tool.Install(ctx); err != nil {
			return err
		}
	}

	if err := ntp.Restart(ctx); err != nil {
		return err
	}
	if err := tools.NewHwclock(node).SetRTCToSystemTime(ctx); err != nil {
		return err
	}
	if err := ntp.CheckDelay(ctx, tools.NtpCheckPolicy); err != nil {
		return err
	}
	if err := ntpstat.CheckClockSync(ctx); err != nil {
		return err
	}
	t.Target.AddFeatures("ntp")
	return nil
}
