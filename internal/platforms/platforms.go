// Package platforms wires the built-in target platforms into a registry.
package platforms

import (
	"github.com/yoanbernabeu/testfleet/internal/platforms/dockerplatform"
	"github.com/yoanbernabeu/testfleet/internal/platforms/localplatform"
	"github.com/yoanbernabeu/testfleet/internal/platforms/sshplatform"
	"github.com/yoanbernabeu/testfleet/internal/target"
)

// RegisterAll registers the SSH, Docker and Local platforms.
func RegisterAll(reg *target.Registry) error {
	if err := reg.RegisterPlatform(sshplatform.Name, sshplatform.New(nil)); err != nil {
		return err
	}
	if err := reg.RegisterPlatform(dockerplatform.Name, dockerplatform.New(nil)); err != nil {
		return err
	}
	return reg.RegisterPlatform(localplatform.Name, localplatform.New())
}
