// Package report renders the end-of-run summary table.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/yoanbernabeu/testfleet/internal/testcase"
)

// Section is the results of one runner
type Section struct {
	Runner  string
	Results []testcase.Result
}

// Stats counts results by status
type Stats struct {
	Total, Passed, Failed, Skipped, Errored int
	Duration                                time.Duration
}

// Add counts r
func (s *Stats) Add(r testcase.Result) {
	s.Total++
	s.Duration += r.Duration
	switch r.Status {
	case testcase.StatusPassed:
		s.Passed++
	case testcase.StatusFailed:
		s.Failed++
	case testcase.StatusSkipped:
		s.Skipped++
	case testcase.StatusErrored:
		s.Errored++
	}
}

// Options tune the rendering
type Options struct {
	Title string
	// Color selects the colored styles, meant for terminals.
	Color bool
	// Elapsed is the wall-clock duration shown in the footer.
	Elapsed time.Duration
}

// Render writes one row per runner followed by its cases, and returns the
// totals.
func Render(w io.Writer, sections []Section, opts Options) Stats {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	if opts.Title != "" {
		t.SetTitle(opts.Title)
	}

	t.AppendHeader(table.Row{"Runner", "Case", "Target", "Duration", "Status", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Runner", AutoMerge: true},
		{Name: "Case", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	var total Stats
	for _, sec := range sections {
		var stats Stats
		for i, r := range sec.Results {
			stats.Add(r)
			total.Add(r)

			prefix := "├─"
			if i == len(sec.Results)-1 {
				prefix = "└─"
			}
			errText := ""
			if r.Err != nil && r.Status != testcase.StatusPassed {
				errText = r.Err.Error()
			}
			t.AppendRow(table.Row{
				sec.Runner,
				fmt.Sprintf("%s %s", prefix, r.Case),
				r.TargetName,
				formatDuration(r.Duration),
				r.Status.String(),
				errText,
			})
		}
		t.AppendRow(table.Row{
			sec.Runner,
			fmt.Sprintf("%d cases", stats.Total),
			"",
			formatDuration(stats.Duration),
			summary(stats),
			"",
		})
		t.AppendSeparator()
	}

	elapsed := opts.Elapsed
	if elapsed == 0 {
		elapsed = total.Duration
	}
	t.AppendFooter(table.Row{"TOTAL", total.Total, "", formatDuration(elapsed), summary(total), ""})

	switch {
	case !opts.Color:
		t.SetStyle(table.StyleLight)
	case total.Failed+total.Errored > 0:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case total.Passed == 0 && total.Skipped > 0:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}

	t.Render()
	return total
}

func summary(s Stats) string {
	return fmt.Sprintf("%d passed, %d failed, %d errored, %d skipped", s.Passed, s.Failed, s.Errored, s.Skipped)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
