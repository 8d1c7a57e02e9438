package tools

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/yoanbernabeu/testfleet/internal/security"
)

// Service drives init scripts through the service command
type Service struct{ *Tool }

// NewService returns a Service bound to node
func NewService(node Node) *Service {
	return &Service{NewTool(node, "service")}
}

// Restart restarts name and fails unless the command succeeds
func (s *Service) Restart(ctx context.Context, name string) error {
	if err := security.ValidateServiceName(name); err != nil {
		return err
	}
	res, err := s.Run(ctx, name+" restart", RunOptions{Shell: true, Sudo: true, ForceRun: true})
	if err != nil {
		return err
	}
	return res.AssertExitCode()
}

// IsRunning reports whether the status command of name exits with 0
func (s *Service) IsRunning(ctx context.Context, name string) (bool, error) {
	if err := security.ValidateServiceName(name); err != nil {
		return false, err
	}
	res, err := s.Run(ctx, name+" status", RunOptions{Shell: true, Sudo: true, ForceRun: true})
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

// DefaultNtpOffset is assumed when ntpq reports no offset, in milliseconds
const DefaultNtpOffset = 0.005

var ntpOffsetPattern = regexp.MustCompile(`(?m)offset=([^,\s]+),\s*frequency=`)

// Ntp queries the local ntpd
type Ntp struct {
	*Tool
	// MaxDelay is the largest accepted offset in seconds.
	MaxDelay float64
}

// NewNtp returns an Ntp bound to node
func NewNtp(node Node) *Ntp {
	t := NewTool(node, "ntpq", "ntp")
	t.privilegedLookup = true
	return &Ntp{Tool: t}
}

// Delay returns the absolute clock offset reported by ntpd, in seconds
func (n *Ntp) Delay(ctx context.Context) (float64, error) {
	res, err := n.Run(ctx, "-c rl 127.0.0.1", RunOptions{Shell: true, Sudo: true, ForceRun: true})
	if err != nil {
		return 0, err
	}
	return parseNtpDelay(res.Stdout)
}

func parseNtpDelay(out string) (float64, error) {
	offsetMS := DefaultNtpOffset
	if m := ntpOffsetPattern.FindStringSubmatch(out); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("unexpected ntp offset %q: %w", m[1], err)
		}
		offsetMS = v
	}
	return math.Abs(offsetMS) / 1000, nil
}

// NtpCheckPolicy is the retry policy CheckDelay uses by default
var NtpCheckPolicy = RetryPolicy{MaxAttempts: 20, Delay: time.Second}

// CheckDelay waits for the offset to settle at or below MaxDelay
func (n *Ntp) CheckDelay(ctx context.Context, policy RetryPolicy) error {
	return policy.Do(ctx, func(ctx context.Context) error {
		delay, err := n.Delay(ctx)
		if err != nil {
			return err
		}
		if delay > n.MaxDelay {
			return fmt.Errorf("time offset between host and client is %gs, want at most %gs", delay, n.MaxDelay)
		}
		return nil
	})
}

// Restart restarts the ntp service
func (n *Ntp) Restart(ctx context.Context) error {
	return NewService(n.Node()).Restart(ctx, "ntp")
}

// Ntpstat reports ntp synchronisation state
type Ntpstat struct{ *Tool }

// NewNtpstat returns an Ntpstat bound to node
func NewNtpstat(node Node) *Ntpstat {
	t := NewTool(node, "ntpstat", "ntpstat")
	t.privilegedLookup = true
	return &Ntpstat{t}
}

// CheckClockSync fails unless the clock is synchronised
func (n *Ntpstat) CheckClockSync(ctx context.Context) error {
	res, err := n.Run(ctx, "", RunOptions{Shell: true, Sudo: true, ForceRun: true})
	if err != nil {
		return err
	}
	return res.AssertExitCode()
}

// Hwclock manages the hardware clock
type Hwclock struct{ *Tool }

// NewHwclock returns a Hwclock bound to node
func NewHwclock(node Node) *Hwclock {
	return &Hwclock{NewTool(node, "hwclock")}
}

// SetRTCToSystemTime copies the system time to the hardware clock
func (h *Hwclock) SetRTCToSystemTime(ctx context.Context) error {
	res, err := h.Run(ctx, "--systohc", RunOptions{Sudo: true, ForceRun: true})
	if err != nil {
		return err
	}
	return res.AssertExitCode()
}
