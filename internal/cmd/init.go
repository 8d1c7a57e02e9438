package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/testfleet/internal/config"
	"github.com/yoanbernabeu/testfleet/internal/notify"
	"github.com/yoanbernabeu/testfleet/internal/platforms/dockerplatform"
	"github.com/yoanbernabeu/testfleet/internal/platforms/sshplatform"
	"github.com/yoanbernabeu/testfleet/internal/testcase"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a testfleet.yaml runbook",
	Long: `Creates a testfleet.yaml in the current directory selecting the demo
cases. Targets can be declared right away:

  testfleet init --host lab            # SSH host from the inventory
  testfleet init --docker-image debian:12`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var (
	initName        string
	initForce       bool
	initHosts       []string
	initDockerImage string
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initName, "name", "n", "", "Runbook name (default: directory name)")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing runbook")
	initCmd.Flags().StringSliceVar(&initHosts, "host", nil, "Add an SSH target for this inventory host (repeatable)")
	initCmd.Flags().StringVar(&initDockerImage, "docker-image", "", "Add a Docker target running this image")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = config.RunbookFile
	}
	if config.RunbookExists(path) && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	name := initName
	if name == "" {
		cwd, _ := os.Getwd()
		name = sanitizeRunbookName(filepath.Base(cwd))
	}

	rb := newRunbook(name, initHosts, initDockerImage)

	env, err := LoadEnvironment()
	if err != nil {
		return err
	}
	if errors := config.ValidateRunbook(rb, env.Platforms, env.Inventory); errors.HasErrors() {
		PrintWarning("Runbook has validation issues: %s", errors.Error())
	}

	if err := config.SaveRunbook(rb, path); err != nil {
		return fmt.Errorf("failed to save runbook: %w", err)
	}
	PrintSuccess("Created %s", path)

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review the filters and targets in " + path)
	fmt.Println("  2. Run 'testfleet targets validate'")
	fmt.Println("  3. Run 'testfleet run'")
	return nil
}

// newRunbook builds the runbook written by init
func newRunbook(name string, hosts []string, dockerImage string) *config.Runbook {
	rb := config.DefaultRunbook()
	if name != "" {
		rb.Name = name
	}
	rb.TestCase = []testcase.RawFilter{testcase.DefaultFilter()}
	rb.Notifiers = []notify.Spec{{Type: notify.ConsoleSink}, {Type: notify.FileSink, Path: "notification.yaml"}}

	for _, h := range hosts {
		rb.Targets = append(rb.Targets, map[string]any{"name": h, "platform": sshplatform.Name})
	}
	if dockerImage != "" {
		rb.Targets = append(rb.Targets, map[string]any{
			"name":     "container",
			"platform": dockerplatform.Name,
			"image":    dockerImage,
		})
	}
	return rb
}

func sanitizeRunbookName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "-")

	var result strings.Builder
	for _, c := range name {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.' {
			result.WriteRune(c)
		}
	}
	out := strings.TrimLeft(result.String(), "-_.")
	if out == "" || len(out) > 64 {
		return "testfleet"
	}
	return out
}
