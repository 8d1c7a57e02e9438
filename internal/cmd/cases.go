package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/internal/session"
	"github.com/yoanbernabeu/testfleet/internal/testcase"
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "List registered test cases",
	Long: `Lists the built-in test cases with their metadata. --name, --area and
--category take the same regular expressions as runbook filters.

Example:
  testfleet cases
  testfleet cases --area time`,
	Args: cobra.NoArgs,
	RunE: runCases,
}

var (
	casesName     string
	casesArea     string
	casesCategory string
)

func init() {
	rootCmd.AddCommand(casesCmd)
	casesCmd.Flags().StringVar(&casesName, "name", "", "Case name pattern")
	casesCmd.Flags().StringVar(&casesArea, "area", "", "Area pattern")
	casesCmd.Flags().StringVar(&casesCategory, "category", "", "Category pattern")
}

func runCases(cmd *cobra.Command, args []string) error {
	reg, err := session.DefaultCases()
	if err != nil {
		return err
	}

	f, err := testcase.ParseCriteria(testcase.RawFilter{
		constants.CriteriaKey: map[string]any{"name": casesName, "area": casesArea, "category": casesCategory},
	}.WithDefaults())
	if err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}
	cases := reg.Select([]*testcase.CriteriaFilter{f.(*testcase.CriteriaFilter)})
	if len(cases) == 0 {
		PrintInfo("No test case matches %s", f)
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Case", "Area", "Category", "Priority", "Scope", "Target", "Features"})
	for _, c := range cases {
		needs := ""
		if c.NeedsTarget {
			needs = "yes"
		}
		t.AppendRow(table.Row{c.FullName(), c.Area, c.Category, c.Priority, c.Scope.String(), needs, strings.Join(c.Features, ", ")})
	}
	t.Render()
	return nil
}
