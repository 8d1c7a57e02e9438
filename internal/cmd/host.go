package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/testfleet/internal/config"
	"github.com/yoanbernabeu/testfleet/internal/security"
	"github.com/yoanbernabeu/testfleet/internal/ssh"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Manage the SSH host inventory",
	Long: `Commands to add, check and remove SSH hosts. A runbook SSH target
named after an inventory host takes its address, user, port and key
from the inventory unless it sets them itself.`,
}

var hostAddCmd = &cobra.Command{
	Use:   "add <name> <user@host>",
	Short: "Add a host to the inventory",
	Long: `Adds a host to ~/.config/testfleet/config.yaml and tests the SSH
connection, trying the keys found in ~/.ssh when the default one fails.

Example:
  testfleet host add lab root@10.0.0.5
  testfleet host add arm64 admin@arm.example.com --port 2222`,
	Args: cobra.ExactArgs(2),
	RunE: runHostAdd,
}

var hostListCmd = &cobra.Command{
	Use:   "list",
	Short: "List inventory hosts",
	Args:  cobra.NoArgs,
	RunE:  runHostList,
}

var hostCheckCmd = &cobra.Command{
	Use:   "check <name>",
	Short: "Connect to a host and show its system identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runHostCheck,
}

var hostRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a host from the inventory",
	Args:  cobra.ExactArgs(1),
	RunE:  runHostRemove,
}

var (
	hostPort    int
	hostKeyPath string
	skipSSHTest bool
)

func init() {
	rootCmd.AddCommand(hostCmd)
	hostCmd.AddCommand(hostAddCmd)
	hostCmd.AddCommand(hostListCmd)
	hostCmd.AddCommand(hostCheckCmd)
	hostCmd.AddCommand(hostRemoveCmd)

	hostAddCmd.Flags().IntVarP(&hostPort, "port", "p", 22, "SSH port")
	hostAddCmd.Flags().StringVarP(&hostKeyPath, "key", "k", "", "SSH private key path")
	hostAddCmd.Flags().BoolVar(&skipSSHTest, "skip-test", false, "Skip SSH connection test")
}

// parseHostSpec splits user@host
func parseHostSpec(spec string) (user, host string, err error) {
	parts := strings.SplitN(spec, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid host format, use user@host")
	}
	return parts[0], parts[1], nil
}

func runHostAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := security.ValidateTargetName(name); err != nil {
		return fmt.Errorf("invalid host name: %w", err)
	}

	user, host, err := parseHostSpec(args[1])
	if err != nil {
		return err
	}

	inv, err := config.LoadUserConfig()
	if err != nil {
		return fmt.Errorf("failed to load host inventory: %w", err)
	}

	hostCfg := config.HostConfig{
		Host:    host,
		User:    user,
		Port:    hostPort,
		KeyPath: hostKeyPath,
	}
	if errors := config.ValidateHostConfig(&hostCfg); errors.HasErrors() {
		return fmt.Errorf("invalid host configuration: %w", errors)
	}

	if err := inv.AddHost(name, hostCfg); err != nil {
		return err
	}
	if err := config.SaveUserConfig(inv); err != nil {
		return fmt.Errorf("failed to save inventory: %w", err)
	}

	PrintSuccess("Added host '%s' (%s@%s)", name, user, host)

	if skipSSHTest {
		PrintInfo("Skipping SSH connection test (--skip-test)")
		printHostNextSteps(name)
		return nil
	}

	if err := testAndConfigureSSH(cmd.Context(), name, &hostCfg, inv); err != nil {
		PrintWarning("SSH connection could not be established: %v", err)
		PrintInfo("You can test the connection manually with: ssh %s@%s -p %d", user, host, hostCfg.Port)
	}

	printHostNextSteps(name)
	return nil
}

func printHostNextSteps(name string) {
	fmt.Println()
	fmt.Println("Use it from testfleet.yaml:")
	fmt.Println("  targets:")
	fmt.Printf("    - name: %s\n", name)
	fmt.Println("      platform: SSH")
}

// testAndConfigureSSH tests the SSH connection and tries alternative keys if needed
func testAndConfigureSSH(ctx context.Context, name string, hostCfg *config.HostConfig, inv *config.UserConfig) error {
	PrintInfo("Testing SSH connection...")

	if err := ssh.TryConnect(ctx, hostCfg.Host, hostCfg.User, hostCfg.Port, hostCfg.KeyPath); err == nil {
		PrintSuccess("SSH connection successful")
		return nil
	}

	PrintWarning("Connection failed with default key")

	keys, err := discoverKeys()
	if err != nil {
		return fmt.Errorf("failed to discover SSH keys: %w", err)
	}

	var availableKeys []ssh.Key
	for _, key := range keys {
		if key.Encrypted {
			PrintVerbose("Skipping encrypted key: %s", key.Name())
			continue
		}
		if hostCfg.KeyPath != "" && key.Path == hostCfg.KeyPath {
			continue
		}
		availableKeys = append(availableKeys, key)
	}

	if len(availableKeys) == 0 {
		return fmt.Errorf("no SSH keys available to try")
	}

	var workingKey *ssh.Key
	if IsInteractive() {
		workingKey = interactiveKeySelection(ctx, hostCfg, availableKeys)
	} else {
		workingKey = autoTryKeys(ctx, hostCfg, availableKeys)
	}

	if workingKey == nil {
		return fmt.Errorf("no working SSH key found")
	}

	hostCfg.KeyPath = workingKey.Path
	inv.Hosts[name] = *hostCfg

	if err := config.SaveUserConfig(inv); err != nil {
		return fmt.Errorf("failed to save inventory: %w", err)
	}

	PrintSuccess("Updated host '%s' with key: %s", name, workingKey.Path)
	return nil
}

// interactiveKeySelection prompts the user to select an SSH key
func interactiveKeySelection(ctx context.Context, hostCfg *config.HostConfig, keys []ssh.Key) *ssh.Key {
	options := make([]string, len(keys))
	for i, key := range keys {
		options[i] = fmt.Sprintf("%s (%s)", key.Name(), key.Type)
	}

	fmt.Println()
	PrintInfo("Available SSH keys:")
	choice := PromptSelect("Select SSH key to use:", options)
	if choice < 0 {
		return nil
	}

	selectedKey := &keys[choice]
	PrintInfo("Testing with %s...", selectedKey.Path)

	if err := ssh.TryConnect(ctx, hostCfg.Host, hostCfg.User, hostCfg.Port, selectedKey.Path); err != nil {
		PrintError("Connection failed: %v", err)
		return nil
	}

	PrintSuccess("Connection successful!")
	return selectedKey
}

// autoTryKeys tries available keys in order
func autoTryKeys(ctx context.Context, hostCfg *config.HostConfig, keys []ssh.Key) *ssh.Key {
	PrintInfo("Trying available SSH keys automatically...")

	for _, key := range keys {
		PrintVerbose("Trying %s...", key.Name())
		if err := ssh.TryConnect(ctx, hostCfg.Host, hostCfg.User, hostCfg.Port, key.Path); err == nil {
			PrintSuccess("SSH connection successful with %s", key.Name())
			return &key
		}
	}

	return nil
}

func runHostList(cmd *cobra.Command, args []string) error {
	inv, err := config.LoadUserConfig()
	if err != nil {
		return err
	}

	hosts := inv.ListHosts()
	if len(hosts) == 0 {
		PrintInfo("No hosts configured")
		fmt.Println()
		fmt.Println("Add a host with:")
		fmt.Println("  testfleet host add <name> <user@host>")
		return nil
	}

	fmt.Println("Inventory hosts:")
	fmt.Println()
	for _, name := range hosts {
		h := inv.Hosts[name]
		fmt.Printf("  %s\n", name)
		fmt.Printf("    Host: %s@%s:%d\n", h.User, h.Host, h.Port)
		if h.KeyPath != "" {
			fmt.Printf("    Key:  %s\n", h.KeyPath)
		}
		fmt.Println()
	}

	return nil
}

// hostProbes are run by 'host check', in order
var hostProbes = []struct {
	label   string
	command string
}{
	{"Kernel", "uname -srm"},
	{"Uptime", "uptime"},
	{"Sudo", "id -u | grep -qx 0 && echo root || (command -v sudo >/dev/null && echo available || echo missing)"},
	{"Package manager", "command -v apt-get || command -v dnf || command -v yum || echo none"},
}

func runHostCheck(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := security.ValidateTargetName(name); err != nil {
		return fmt.Errorf("invalid host name: %w", err)
	}

	inv, err := config.LoadUserConfig()
	if err != nil {
		return err
	}
	hostCfg, err := inv.GetHost(name)
	if err != nil {
		return err
	}

	PrintInfo("Checking host '%s'...", name)

	ctx := cmd.Context()
	client := ssh.NewClient(hostCfg.Host, hostCfg.User, hostCfg.Port, hostCfg.KeyPath)
	if err := client.Connect(ctx); err != nil {
		PrintError("Connection failed: %v", err)
		return nil
	}
	defer client.Close()

	PrintSuccess("Connection: OK")
	for _, probe := range hostProbes {
		PrintVerboseCommand(probe.command)
		res, err := client.Exec(ctx, probe.command)
		if err != nil {
			PrintWarning("%s: %v", probe.label, err)
			continue
		}
		fmt.Printf("  %-16s %s\n", probe.label+":", strings.TrimSpace(res.Stdout))
	}
	return nil
}

func runHostRemove(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := security.ValidateTargetName(name); err != nil {
		return fmt.Errorf("invalid host name: %w", err)
	}

	inv, err := config.LoadUserConfig()
	if err != nil {
		return err
	}

	if err := inv.RemoveHost(name); err != nil {
		return err
	}

	if err := config.SaveUserConfig(inv); err != nil {
		return fmt.Errorf("failed to save inventory: %w", err)
	}

	PrintSuccess("Removed host '%s'", name)
	return nil
}

func discoverKeys() ([]ssh.Key, error) {
	dir, err := ssh.DefaultKeyDir()
	if err != nil {
		return nil, err
	}
	return ssh.DiscoverKeys(dir)
}
