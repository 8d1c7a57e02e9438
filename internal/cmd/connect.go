package cmd

import (
	"fmt"
	"os"

	"github.com/yoanbernabeu/testfleet/internal/config"
	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/internal/platforms"
	"github.com/yoanbernabeu/testfleet/internal/security"
	"github.com/yoanbernabeu/testfleet/internal/session"
	"github.com/yoanbernabeu/testfleet/internal/target"
)

// Environment holds the runbook, host inventory and platforms a command
// works with.
type Environment struct {
	Runbook   *config.Runbook
	Inventory *config.UserConfig
	Platforms *target.Registry
}

// LoadEnvironment loads the runbook named by --config or $TESTFLEET_CONFIG,
// or the nearest testfleet.yaml. Without any runbook the defaults are used.
func LoadEnvironment() (*Environment, error) {
	rb, err := loadRunbook()
	if err != nil {
		return nil, err
	}

	inv, err := config.LoadUserConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load host inventory: %w", err)
	}
	if rb.RunRoot == "" && inv.RunRoot != "" {
		rb.RunRoot = inv.RunRoot
	}

	reg := target.NewRegistry()
	if err := platforms.RegisterAll(reg); err != nil {
		return nil, err
	}

	return &Environment{Runbook: rb, Inventory: inv, Platforms: reg}, nil
}

func loadRunbook() (*config.Runbook, error) {
	path := GetConfigFile()
	if path != "" || os.Getenv(constants.EnvConfig) != "" {
		return config.LoadRunbook(path)
	}

	found, err := config.FindRunbook()
	if err != nil {
		PrintVerbose("No %s found, using defaults", config.RunbookFile)
		return config.DefaultRunbook(), nil
	}
	PrintVerbose("Using runbook %s", found)
	return config.LoadRunbook(found)
}

// NewSession builds a run session, applying the global flags on top of
// the runbook.
func (e *Environment) NewSession() (*session.Session, error) {
	opts := session.Options{
		Runbook:     e.Runbook,
		Inventory:   e.Inventory,
		Platforms:   e.Platforms,
		RunRoot:     runRoot,
		MetricsFile: metricsFile,
	}
	if keepTargets {
		keep := true
		opts.KeepTargets = &keep
	}
	return session.New(opts)
}

// Targets validates and returns the configured targets
func (e *Environment) Targets() ([]target.Spec, error) {
	return e.Runbook.ResolveTargets(e.Platforms, e.Inventory)
}

// Target returns the configured target called name
func (e *Environment) Target(name string) (target.Spec, error) {
	if err := security.ValidateTargetName(name); err != nil {
		return target.Spec{}, fmt.Errorf("invalid target name: %w", err)
	}
	specs, err := e.Targets()
	if err != nil {
		return target.Spec{}, err
	}
	for _, s := range specs {
		if s.Name == name {
			return s, nil
		}
	}
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return target.Spec{}, fmt.Errorf("target '%s' not found (configured: %v)", name, names)
}
