// Package demo holds the cases selected by the default filter.
package demo

import (
	"context"
	"fmt"

	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/internal/testcase"
	"github.com/yoanbernabeu/testfleet/internal/tools"
)

const (
	module = "demo"
	suite  = "Demo"
)

// Greeting is echoed back by the target in echo_test
const Greeting = "hello from testfleet"

// Cases returns the demo suite
func Cases() []*testcase.Case {
	return []*testcase.Case{
		{
			Module: module, Suite: suite, Name: "hello_test",
			Area: constants.DefaultFilterArea, Category: "functional", Priority: 0,
			Description: "Runs without a target to check the runner itself.",
			Run: func(_ context.Context, t *testcase.T) error {
				t.Log.Info("hello from the local runner", "case", t.Case.FullName())
				return nil
			},
		},
		{
			Module: module, Suite: suite, Name: "echo_test",
			Area: constants.DefaultFilterArea, Category: "functional", Priority: 1,
			Description: "Echoes a string through the target shell.",
			NeedsTarget: true,
			Run:         echo,
		},
		{
			Module: module, Suite: suite, Name: "uname_test",
			Area: constants.DefaultFilterArea, Category: "functional", Priority: 1,
			Description: "Reads the target kernel identity.",
			NeedsTarget: true,
			Run:         uname,
		},
	}
}

// Register adds the demo suite to reg
func Register(reg *testcase.Registry) error {
	for _, c := range Cases() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func echo(ctx context.Context, t *testcase.T) error {
	got, err := tools.NewEcho(t.Node()).Say(ctx, Greeting)
	if err != nil {
		return err
	}
	if got != Greeting {
		return fmt.Errorf("echo returned %q, want %q", got, Greeting)
	}
	return nil
}

func uname(ctx context.Context, t *testcase.T) error {
	info, err := tools.NewUname(t.Node()).Info(ctx)
	if err != nil {
		return err
	}
	if info.KernelName == "" || info.KernelRelease == "" {
		return fmt.Errorf("incomplete kernel identity: %+v", info)
	}
	t.Log.Info("target kernel", "target", t.TargetName, "kernel", info.KernelName, "release", info.KernelRelease, "machine", info.Machine)
	return nil
}
