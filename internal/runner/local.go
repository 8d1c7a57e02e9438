package runner

import (
	"context"
	"fmt"

	"github.com/yoanbernabeu/testfleet/internal/config"
	"github.com/yoanbernabeu/testfleet/internal/driver"
	"github.com/yoanbernabeu/testfleet/internal/session"
	"github.com/yoanbernabeu/testfleet/internal/testcase"
)

// NewLocalRunner runs the registered cases selected by criteria filters
func NewLocalRunner(runnerType string, rb *config.Runbook, s *session.Session) (Runner, error) {
	filters := make([]*testcase.CriteriaFilter, 0, len(rb.Filters))
	for _, f := range rb.Filters {
		crit, ok := f.(*testcase.CriteriaFilter)
		if !ok {
			return nil, fmt.Errorf("runner %s cannot run %s filters", runnerType, f.Kind())
		}
		filters = append(filters, crit)
	}

	return NewBaseRunner(runnerType, rb, s, func(ctx context.Context, b *BaseRunner) ([]testcase.Result, error) {
		cases := s.Cases.Select(filters)
		if len(cases) == 0 {
			b.Log().Warn("no test case matches the filters")
			return nil, nil
		}
		return execute(ctx, b, cases), nil
	}), nil
}

// execute plans cases against every configured target and runs them
func execute(ctx context.Context, b *BaseRunner, cases []*testcase.Case) []testcase.Result {
	s := b.Session()
	items := driver.Plan(cases, s.Targets)
	b.Log().Info("planned test cases", "cases", len(cases), "items", len(items))

	d := driver.New(driver.Options{
		Binder:     s.Binder,
		RunnerType: b.Type(),
		Log:        b.Log(),
		Metrics:    s.Metrics,
		Retry:      s.Retry,
		WorkDir:    b.WorkDir(),
	})
	return d.Run(ctx, items)
}
