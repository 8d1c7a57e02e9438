package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/testfleet/internal/platforms/sshplatform"
	"github.com/yoanbernabeu/testfleet/internal/security"
	"github.com/yoanbernabeu/testfleet/internal/ssh"
)

var shellCmd = &cobra.Command{
	Use:   "shell <target>",
	Short: "Open a shell on an SSH target",
	Long: `Opens an interactive shell on a configured SSH target.

Example:
  testfleet shell Default
  testfleet shell lab --user admin`,
	Args: cobra.ExactArgs(1),
	RunE: runShell,
}

var shellUser string

func init() {
	rootCmd.AddCommand(shellCmd)
	shellCmd.Flags().StringVarP(&shellUser, "user", "u", "", "Log in as this user instead of the configured one")
}

func runShell(cmd *cobra.Command, args []string) error {
	if shellUser != "" {
		if err := security.ValidateUnixUser(shellUser); err != nil {
			return fmt.Errorf("invalid user: %w", err)
		}
	}

	env, err := LoadEnvironment()
	if err != nil {
		return err
	}
	spec, err := env.Target(args[0])
	if err != nil {
		return err
	}
	if spec.Platform != sshplatform.Name {
		return fmt.Errorf("target '%s' uses the %s platform, shell only supports %s targets", spec.Name, spec.Platform, sshplatform.Name)
	}

	user := spec.Params.GetString("user")
	if shellUser != "" {
		user = shellUser
	}
	host := spec.Params.GetString("host")
	PrintInfo("Connecting to %s@%s...", user, host)

	client := ssh.NewClient(host, user, spec.Params.GetInt("port"), spec.Params.GetString("key_path"))
	if err := client.Connect(cmd.Context()); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer client.Close()

	return client.Shell(cmd.Context())
}
