package tools

import (
	"context"
	"strings"
	"sync"

	"github.com/yoanbernabeu/testfleet/internal/target"
)

type call struct {
	cmd  string
	opts target.RunOptions
}

// scriptedNode answers commands from a prefix table; unknown commands exit 127
type scriptedNode struct {
	mu      sync.Mutex
	answers map[string]*target.ExecResult
	calls   []call
	hook    func(cmd string) *target.ExecResult
}

func newScriptedNode(answers map[string]*target.ExecResult) *scriptedNode {
	return &scriptedNode{answers: answers}
}

func (n *scriptedNode) Run(_ context.Context, cmd string, opts target.RunOptions) (*target.ExecResult, error) {
	n.mu.Lock()
	n.calls = append(n.calls, call{cmd: cmd, opts: opts})
	hook := n.hook
	n.mu.Unlock()

	if hook != nil {
		if res := hook(cmd); res != nil {
			return res, nil
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if res, ok := n.answers[cmd]; ok {
		return res, nil
	}
	return &target.ExecResult{ExitCode: 127, Stderr: "not found"}, nil
}

func (n *scriptedNode) String() string { return "scripted" }

func (n *scriptedNode) count(prefix string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, cl := range n.calls {
		if strings.HasPrefix(cl.cmd, prefix) {
			c++
		}
	}
	return c
}

func (n *scriptedNode) last() call {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[len(n.calls)-1]
}

func ok(stdout string) *target.ExecResult {
	return &target.ExecResult{Stdout: stdout}
}
