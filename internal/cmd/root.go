package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/testfleet/internal/exitcodes"
	"github.com/yoanbernabeu/testfleet/internal/security"
	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

var (
	// Version is set at build time
	Version = "dev"

	// Global flags
	verbose     bool
	cfgFile     string
	logFormat   string
	keepTargets bool
	runRoot     string
	metricsFile string
	yesFlag     bool // CI/CD: skip prompts
)

var rootCmd = &cobra.Command{
	Use:   "testfleet",
	Short: "Run test suites against a pool of remote targets",
	Long: `testfleet runs test cases against ephemeral targets (SSH hosts,
Docker containers or the local machine). Targets are provisioned on
demand, reused between cases that need compatible capabilities and torn
down at the end of the run.

Quick start:
  testfleet init             # Create testfleet.yaml
  testfleet cases            # List the available test cases
  testfleet run              # Run the selected cases

Commands:
  init          Create a runbook
  run           Run the runbook
  cases         List registered test cases
  targets       Inspect and validate configured targets
  host          Manage the SSH host inventory
  exec          Run a command on a target
  shell         Open a shell on an SSH target
  logs          Show the logs of a previous run

The exit code of 'run' is the number of failed test cases (0 when all
passed, capped at 254). 255 means the run could not complete.

CI/CD Environment Variables:
  TESTFLEET_CONFIG                  Runbook path
  TESTFLEET_KEEP_TARGETS            Keep targets after the run (true/false)
  TESTFLEET_SSH_KEY                 SSH private key content
  TESTFLEET_KNOWN_HOSTS             SSH known_hosts content
  TESTFLEET_SKIP_HOST_KEY_CHECK     Skip host key verification (true/false)`,
	Version:       Version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch logFormat {
		case logging.FormatText, logging.FormatJSON:
		default:
			return fmt.Errorf("invalid --log-format %q: use text or json", logFormat)
		}
		level := logging.LevelInfo
		if verbose {
			level = logging.LevelDebug
		}
		logging.InitForCLI(level, os.Stderr, logFormat)
		return nil
	},
}

// ExitError ends the process with Code. Err, when set, is printed first.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitcodes.Success
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			PrintError("%v", exitErr.Err)
		}
		return exitErr.Code
	}
	PrintError("%v", err)
	return exitcodes.RuntimeErr
}

// RootCommand exposes the command tree, for documentation generation
func RootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Runbook file (default: testfleet.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatText, "Log format (text or json)")
	rootCmd.PersistentFlags().BoolVar(&keepTargets, "keep-targets", false, "Do not delete targets at the end of the run")
	rootCmd.PersistentFlags().StringVar(&runRoot, "run-root", "", "Directory receiving run artifacts (default: runtime/runs)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file at the end of the run")
	rootCmd.PersistentFlags().BoolVarP(&yesFlag, "yes", "y", false, "Skip prompts (CI/CD mode)")

	rootCmd.SetVersionTemplate(`testfleet {{.Version}}
`)
}

// GetConfigFile returns the runbook path given on the command line
func GetConfigFile() string {
	return cfgFile
}

// IsYesMode returns true if --yes flag is set (CI/CD mode)
func IsYesMode() bool {
	return yesFlag
}

// PrintError prints a formatted error message
func PrintError(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "❌ "+msg+"\n", args...)
}

// PrintSuccess prints a success message
func PrintSuccess(msg string, args ...interface{}) {
	fmt.Printf("✅ "+msg+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(msg string, args ...interface{}) {
	fmt.Printf("ℹ️  "+msg+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(msg string, args ...interface{}) {
	fmt.Printf("⚠️  "+msg+"\n", args...)
}

// PrintVerbose prints a message only in verbose mode
func PrintVerbose(msg string, args ...interface{}) {
	if verbose {
		fmt.Printf("   "+msg+"\n", args...)
	}
}

// PrintVerboseCommand prints a command in verbose mode with sensitive values masked
func PrintVerboseCommand(command string) {
	if verbose {
		fmt.Printf("   Running: %s\n", security.SanitizeCommandForLog(command))
	}
}
