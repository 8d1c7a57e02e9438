package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/internal/exitcodes"
	"github.com/yoanbernabeu/testfleet/internal/report"
	"github.com/yoanbernabeu/testfleet/internal/runner"
	"github.com/yoanbernabeu/testfleet/internal/testcase"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the test cases selected by the runbook",
	Long: `Runs every filter of the runbook. Filters are grouped by runner type
and each group runs on its own runner, concurrently with the others.
Targets are provisioned on demand and shared between cases that need
compatible capabilities.

The exit code is the number of failed test cases.

Example:
  testfleet run
  testfleet run --area time
  testfleet run --name echo --keep-targets`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runName     string
	runArea     string
	runCategory string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runName, "name", "", "Replace the runbook filters with a case name pattern")
	runCmd.Flags().StringVar(&runArea, "area", "", "Replace the runbook filters with an area pattern")
	runCmd.Flags().StringVar(&runCategory, "category", "", "Replace the runbook filters with a category pattern")
}

// filterOverride builds the criteria filter given on the command line
func filterOverride() testcase.RawFilter {
	criteria := map[string]any{}
	for key, v := range map[string]string{"name": runName, "area": runArea, "category": runCategory} {
		if v != "" {
			criteria[key] = v
		}
	}
	if len(criteria) == 0 {
		return nil
	}
	return testcase.RawFilter{constants.CriteriaKey: criteria}
}

func runRun(cmd *cobra.Command, args []string) error {
	env, err := LoadEnvironment()
	if err != nil {
		return err
	}
	if override := filterOverride(); override != nil {
		env.Runbook.TestCase = []testcase.RawFilter{override}
	}

	s, err := env.NewSession()
	if err != nil {
		return fmt.Errorf("invalid runbook: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	PrintInfo("Run %s started (%d target(s), artifacts in %s)", s.RunID, len(s.Targets), s.RunDir)
	root := runner.NewRootRunner(s, nil)
	runErr := root.Run(ctx)

	if runners := root.Runners(); len(runners) > 0 {
		sections := make([]report.Section, 0, len(runners))
		for _, r := range runners {
			sections = append(sections, report.Section{Runner: r.Type(), Results: r.Results()})
		}
		fmt.Println()
		report.Render(os.Stdout, sections, report.Options{
			Title:   fmt.Sprintf("testfleet run %s", s.RunID),
			Color:   term.IsTerminal(int(os.Stdout.Fd())),
			Elapsed: time.Since(s.Started),
		})
	}

	teardown, closeErr := s.Close(context.WithoutCancel(ctx))
	if closeErr != nil {
		PrintWarning("Teardown incomplete: %v", closeErr)
	}
	if teardown != nil && len(teardown.Kept) > 0 {
		PrintInfo("Kept %d target(s): %v", len(teardown.Kept), teardown.Kept)
	}

	if runErr != nil {
		return &ExitError{Code: exitcodes.RuntimeErr, Err: runErr}
	}

	failed := root.ExitCode()
	if failed > 0 {
		PrintError("%d test case(s) failed", failed)
		return &ExitError{Code: exitcodes.FromFailures(failed)}
	}
	PrintSuccess("All test cases passed")
	return nil
}
