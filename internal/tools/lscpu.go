package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CPUType is the processor vendor family
type CPUType int

const (
	CPUUnknown CPUType = iota
	CPUIntel
	CPUAMD
	CPUARM
)

func (c CPUType) String() string {
	switch c {
	case CPUIntel:
		return "Intel"
	case CPUAMD:
		return "AMD"
	case CPUARM:
		return "ARM"
	default:
		return "unknown"
	}
}

// CPUInfo is the subset of lscpu output test cases look at
type CPUInfo struct {
	Architecture string
	Cores        int
	Vendor       string
	Type         CPUType
}

// Lscpu reads processor details
type Lscpu struct{ *Tool }

// NewLscpu returns an Lscpu bound to node
func NewLscpu(node Node) *Lscpu {
	return &Lscpu{NewTool(node, "lscpu", "util-linux")}
}

// Info parses lscpu output
func (l *Lscpu) Info(ctx context.Context) (CPUInfo, error) {
	if err := l.Install(ctx); err != nil {
		return CPUInfo{}, err
	}
	res, err := l.Run(ctx, "", RunOptions{Env: map[string]string{"LC_ALL": "C"}})
	if err != nil {
		return CPUInfo{}, err
	}
	if err := res.AssertExitCode(); err != nil {
		return CPUInfo{}, err
	}
	return parseLscpu(res.Stdout)
}

func parseLscpu(out string) (CPUInfo, error) {
	var info CPUInfo
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Architecture":
			info.Architecture = value
		case "CPU(s)":
			n, err := strconv.Atoi(value)
			if err != nil {
				return CPUInfo{}, fmt.Errorf("unexpected CPU(s) value %q", value)
			}
			info.Cores = n
		case "Vendor ID":
			info.Vendor = value
		}
	}
	if info.Architecture == "" || info.Cores == 0 {
		return CPUInfo{}, fmt.Errorf("incomplete lscpu output")
	}

	switch {
	case info.Vendor == "GenuineIntel":
		info.Type = CPUIntel
	case info.Vendor == "AuthenticAMD":
		info.Type = CPUAMD
	case info.Vendor == "ARM" || strings.HasPrefix(info.Architecture, "aarch64"):
		info.Type = CPUARM
	}
	return info, nil
}
