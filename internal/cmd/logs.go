package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/internal/security"
)

var logsCmd = &cobra.Command{
	Use:   "logs [run-id]",
	Short: "Show the runner logs of a previous run",
	Long: `Prints the dedicated log files written by non-default runners. Without
a run id the latest run is shown.

Example:
  testfleet logs
  testfleet logs --list
  testfleet logs 20240115-120000-1a2b3c4d --runner script`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogs,
}

var (
	logsRunner string
	logsList   bool
)

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().StringVar(&logsRunner, "runner", "", "Only show this runner type")
	logsCmd.Flags().BoolVar(&logsList, "list", false, "List the recorded runs")
}

func runLogs(cmd *cobra.Command, args []string) error {
	root := runRoot
	if root == "" {
		env, err := LoadEnvironment()
		if err != nil {
			return err
		}
		root = env.Runbook.ResolveRunRoot()
	}

	runs, err := listRuns(root)
	if err != nil {
		return err
	}
	if logsList {
		for _, r := range runs {
			fmt.Println(r)
		}
		return nil
	}
	if len(runs) == 0 {
		PrintInfo("No run recorded under %s", root)
		return nil
	}

	runID := runs[len(runs)-1]
	if len(args) == 1 {
		runID = args[0]
	}
	if strings.ContainsAny(runID, `/\`) || strings.Contains(runID, "..") {
		return fmt.Errorf("invalid run id: %s", runID)
	}

	files, err := runnerLogs(constants.RunDir(root, runID), logsRunner)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		PrintInfo("Run %s has no runner logs", runID)
		return nil
	}
	for _, f := range files {
		if len(files) > 1 {
			PrintInfo("=== %s ===", filepath.Base(f))
		}
		if err := printFile(f); err != nil {
			return err
		}
	}
	return nil
}

// listRuns returns the run directories under root, oldest first
func listRuns(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read run root: %w", err)
	}
	var runs []string
	for _, e := range entries {
		if e.IsDir() {
			runs = append(runs, e.Name())
		}
	}
	sort.Strings(runs)
	return runs, nil
}

// runnerLogs finds the runner log files of a run, all of them when
// runnerType is empty
func runnerLogs(runDir, runnerType string) ([]string, error) {
	if _, err := os.Stat(runDir); err != nil {
		return nil, fmt.Errorf("run not found: %s", runDir)
	}
	if runnerType != "" {
		if err := security.ValidateRunnerType(runnerType); err != nil {
			return nil, err
		}
		path := constants.RunnerLogPath(runDir, runnerType)
		if _, err := os.Stat(path); err != nil {
			return nil, nil
		}
		return []string{path}, nil
	}
	files, err := filepath.Glob(filepath.Join(runDir, "*"+constants.RunnerDirSuffix, "*"+constants.RunnerDirSuffix+".log"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func printFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(os.Stdout, f)
	return err
}
