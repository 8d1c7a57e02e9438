package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/testfleet/internal/config"
	"github.com/yoanbernabeu/testfleet/internal/exitcodes"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Inspect and validate configured targets",
}

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the targets of the runbook with their resolved parameters",
	Args:  cobra.NoArgs,
	RunE:  runTargetsList,
}

var targetsSchemaCmd = &cobra.Command{
	Use:   "schema [platform...]",
	Short: "Show the parameters each platform accepts",
	Long: `Shows the fields a target entry may set for each platform.

Example:
  testfleet targets schema
  testfleet targets schema Docker`,
	RunE: runTargetsSchema,
}

var targetsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the runbook",
	Args:  cobra.NoArgs,
	RunE:  runTargetsValidate,
}

func init() {
	rootCmd.AddCommand(targetsCmd)
	targetsCmd.AddCommand(targetsListCmd)
	targetsCmd.AddCommand(targetsSchemaCmd)
	targetsCmd.AddCommand(targetsValidateCmd)
}

func runTargetsList(cmd *cobra.Command, args []string) error {
	env, err := LoadEnvironment()
	if err != nil {
		return err
	}
	specs, err := env.Targets()
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Platform", "Parameters"})
	for _, s := range specs {
		t.AppendRow(table.Row{s.Name, s.Platform, s.Params.String()})
	}
	t.Render()
	return nil
}

func runTargetsSchema(cmd *cobra.Command, args []string) error {
	env, err := LoadEnvironment()
	if err != nil {
		return err
	}

	names := args
	if len(names) == 0 {
		names = env.Platforms.Names()
	}
	for _, name := range names {
		p, ok := env.Platforms.Get(name)
		if !ok {
			return fmt.Errorf("unknown platform %q (available: %v)", name, env.Platforms.Names())
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.SetTitle(name)
		t.AppendHeader(table.Row{"Field", "Type", "Required", "Default", "Description"})
		for _, f := range p.Schema().Fields {
			required := ""
			if f.Required {
				required = "yes"
			}
			def := ""
			if f.Default != nil {
				def = fmt.Sprint(f.Default)
			}
			t.AppendRow(table.Row{f.Name, f.Type.String(), required, def, f.Description})
		}
		t.Render()
		fmt.Println()
	}
	return nil
}

func runTargetsValidate(cmd *cobra.Command, args []string) error {
	env, err := LoadEnvironment()
	if err != nil {
		return err
	}

	errs := config.ValidateRunbook(env.Runbook, env.Platforms, env.Inventory)
	if errs.HasErrors() {
		for _, e := range errs {
			PrintError("%s", e.Error())
		}
		return &ExitError{Code: exitcodes.RuntimeErr, Err: fmt.Errorf("runbook has %d problem(s)", len(errs))}
	}

	specs, _ := env.Targets()
	PrintSuccess("Runbook is valid (%d target(s), %d filter(s))", len(specs), len(env.Runbook.RawFilters()))
	return nil
}
