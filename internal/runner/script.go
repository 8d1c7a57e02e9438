package runner

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/yoanbernabeu/testfleet/internal/config"
	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/internal/security"
	"github.com/yoanbernabeu/testfleet/internal/session"
	"github.com/yoanbernabeu/testfleet/internal/target"
	"github.com/yoanbernabeu/testfleet/internal/testcase"
)

const (
	scriptModule = "script"
	scriptSuite  = "Scripts"
)

// NewScriptRunner uploads the scripts selected by script filters to every
// target and runs them. A script passes when it exits with 0.
func NewScriptRunner(runnerType string, rb *config.Runbook, s *session.Session) (Runner, error) {
	filters := make([]*testcase.ScriptFilter, 0, len(rb.Filters))
	for _, f := range rb.Filters {
		sf, ok := f.(*testcase.ScriptFilter)
		if !ok {
			return nil, fmt.Errorf("runner %s cannot run %s filters", runnerType, f.Kind())
		}
		filters = append(filters, sf)
	}

	return NewBaseRunner(runnerType, rb, s, func(ctx context.Context, b *BaseRunner) ([]testcase.Result, error) {
		cases, err := ScriptCases(filters)
		if err != nil {
			return nil, err
		}
		if len(cases) == 0 {
			b.Log().Warn("no script matches the filters")
			return nil, nil
		}
		return execute(ctx, b, cases), nil
	}), nil
}

// ScriptCases turns every script of filters into a test case. A script
// listed by two filters runs once, with the first filter's options.
func ScriptCases(filters []*testcase.ScriptFilter) ([]*testcase.Case, error) {
	reg := testcase.NewRegistry()
	for _, f := range filters {
		scripts, err := f.Scripts()
		if err != nil {
			return nil, err
		}
		for _, local := range scripts {
			c := scriptCase(f, local)
			if _, exists := reg.Get(c.FullName()); exists {
				continue
			}
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return reg.Cases(), nil
}

func scriptCase(f *testcase.ScriptFilter, local string) *testcase.Case {
	base := filepath.Base(local)
	return &testcase.Case{
		Name:        strings.TrimSuffix(base, filepath.Ext(base)),
		Suite:       scriptSuite,
		Module:      scriptModule,
		Area:        scriptModule,
		Description: local,
		NeedsTarget: true,
		Features:    f.Features,
		Scope:       testcase.ScopeFunction,
		Run: func(ctx context.Context, t *testcase.T) error {
			return runScript(ctx, t, f, local)
		},
	}
}

func runScript(ctx context.Context, t *testcase.T, f *testcase.ScriptFilter, local string) error {
	content, err := os.ReadFile(local)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	dir, err := t.Target.WorkingPath(ctx, constants.RemoteWorkDir)
	if err != nil {
		return err
	}
	remote := path.Join(dir, filepath.Base(local))
	err = t.Retry.Do(ctx, func(ctx context.Context) error {
		return t.Target.UploadContent(ctx, content, remote, 0755)
	})
	if err != nil {
		return err
	}

	if d := f.TimeoutDuration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	t.Log.Debug("running script", "path", remote, "sudo", f.Sudo)
	res, err := t.Target.Run(ctx, "sh "+security.ShellEscape(remote), target.RunOptions{Sudo: f.Sudo, Dir: dir})
	if err != nil {
		return fmt.Errorf("failed to run %s: %w", filepath.Base(local), err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s exited with code %d: %s", filepath.Base(local), res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}
