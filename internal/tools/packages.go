package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/yoanbernabeu/testfleet/internal/security"
	"github.com/yoanbernabeu/testfleet/internal/target"
)

// PackageManager installs distribution packages on a node
type PackageManager struct {
	Name    string
	install string
	env     map[string]string
}

var packageManagers = []PackageManager{
	{Name: "apt-get", install: "apt-get install -y -q", env: map[string]string{"DEBIAN_FRONTEND": "noninteractive"}},
	{Name: "dnf", install: "dnf install -y -q"},
	{Name: "yum", install: "yum install -y -q"},
}

// DetectPackageManager returns the first known package manager found on node
func DetectPackageManager(ctx context.Context, node Node) (PackageManager, error) {
	for _, pm := range packageManagers {
		res, err := node.Run(ctx, "command -v "+pm.Name, target.RunOptions{})
		if err != nil {
			return PackageManager{}, err
		}
		if res.ExitCode == 0 {
			return pm, nil
		}
	}
	return PackageManager{}, fmt.Errorf("no supported package manager on %s", node)
}

// Install installs pkgs with sudo
func (pm PackageManager) Install(ctx context.Context, node Node, pkgs ...string) error {
	if len(pkgs) == 0 {
		return nil
	}
	for _, p := range pkgs {
		if err := security.ValidatePackageName(p); err != nil {
			return err
		}
	}

	cmd := pm.install + " " + strings.Join(pkgs, " ")
	res, err := node.Run(ctx, cmd, target.RunOptions{Sudo: true, Env: pm.env})
	if err != nil {
		return err
	}
	result := &Result{Command: cmd, ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
	return result.AssertExitCode()
}
