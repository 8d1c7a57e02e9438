package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/testfleet/internal/metrics"
	"github.com/yoanbernabeu/testfleet/internal/pool"
	"github.com/yoanbernabeu/testfleet/internal/target"
)

var execCmd = &cobra.Command{
	Use:   "exec <target> -- <command>",
	Short: "Run a command on a configured target",
	Long: `Provisions the target if needed, runs the command and tears the target
down again unless --keep-targets is set. The command's exit code becomes
the exit code of testfleet.

Example:
  testfleet exec Default -- uname -a
  testfleet exec box --sudo -- dmesg`,
	Args: cobra.MinimumNArgs(2),
	RunE: runExec,
}

var execSudo bool

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().BoolVar(&execSudo, "sudo", false, "Run the command with sudo")
}

func runExec(cmd *cobra.Command, args []string) (err error) {
	env, err := LoadEnvironment()
	if err != nil {
		return err
	}
	spec, err := env.Target(args[0])
	if err != nil {
		return err
	}
	command := strings.Join(args[1:], " ")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	p := pool.New(env.Platforms, metrics.New())
	defer func() {
		keep := keepTargets || env.Runbook.KeepTargets
		if _, tdErr := p.Teardown(context.WithoutCancel(ctx), keep); tdErr != nil && err == nil {
			err = fmt.Errorf("teardown failed: %w", tdErr)
		}
	}()

	PrintVerbose("Acquiring %s (%s)...", spec.Name, spec.Platform)
	t, err := p.Acquire(ctx, spec, nil)
	if err != nil {
		return err
	}
	defer func() { _ = p.Release(t) }()

	PrintVerboseCommand(command)
	res, err := t.Run(ctx, command, target.RunOptions{Sudo: execSudo})
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, res.Stdout)
	fmt.Fprint(os.Stderr, res.Stderr)

	if res.ExitCode != 0 {
		return &ExitError{Code: res.ExitCode}
	}
	return nil
}
