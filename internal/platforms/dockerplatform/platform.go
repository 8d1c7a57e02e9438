// Package dockerplatform runs targets as local Docker containers.
package dockerplatform

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-units"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/internal/provision"
	"github.com/yoanbernabeu/testfleet/internal/target"
	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

// Name is the platform name used in runbooks
const Name = "Docker"

// API is the subset of the Docker client the platform uses
type API interface {
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	Close() error
}

var _ API = (*client.Client)(nil)

// Platform deploys one long-running container per target
type Platform struct {
	newClient     func() (API, error)
	readyTimeout  time.Duration
	readyInterval time.Duration

	mu  sync.Mutex
	api API
}

// New creates the Docker platform. A nil factory uses the environment
// (DOCKER_HOST etc.); the client is created on first use.
func New(newClient func() (API, error)) *Platform {
	if newClient == nil {
		newClient = func() (API, error) {
			return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		}
	}
	return &Platform{
		newClient:     newClient,
		readyTimeout:  constants.ReadinessTimeout,
		readyInterval: 500 * time.Millisecond,
	}
}

// SetReadiness overrides the readiness wait budget
func (p *Platform) SetReadiness(timeout, interval time.Duration) {
	p.readyTimeout = timeout
	p.readyInterval = interval
}

func (p *Platform) client() (API, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.api != nil {
		return p.api, nil
	}
	api, err := p.newClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	p.api = api
	return api, nil
}

// Close releases the Docker client
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.api == nil {
		return nil
	}
	err := p.api.Close()
	p.api = nil
	return err
}

// Schema implements target.Platform
func (p *Platform) Schema() target.Schema {
	return target.Schema{Fields: []target.Field{
		{Name: "image", Type: target.StringField, Default: "ubuntu:22.04", Description: "Container image"},
		{Name: "pull", Type: target.BoolField, Default: true, Description: "Pull the image when missing locally"},
		{Name: "privileged", Type: target.BoolField, Default: false, Description: "Run the container privileged"},
		{Name: "memory", Type: target.StringField, Default: "", Description: "Memory limit (e.g. 512m, 2g)"},
		{Name: "env", Type: target.StringListField, Description: "KEY=VALUE environment entries"},
		{Name: "cap_add", Type: target.StringListField, Description: "Linux capabilities to add"},
	}}
}

// Deploy pulls the image if needed, then creates and starts an idle container
func (p *Platform) Deploy(ctx context.Context, params target.Params) (target.Handle, error) {
	api, err := p.client()
	if err != nil {
		return target.Handle{}, err
	}

	ref := params.GetString("image")
	state := provision.NewState(ref)

	hostConfig, err := hostConfigFor(params)
	if err != nil {
		return target.Handle{}, err
	}

	state.Advance(provision.PhasePrepare)
	if err := ensureImage(ctx, api, ref, params.GetBool("pull")); err != nil {
		return target.Handle{}, err
	}

	name := target.NewID()
	resp, err := api.ContainerCreate(ctx,
		&container.Config{
			Image:  ref,
			Cmd:    []string{"sleep", "infinity"},
			Tty:    true,
			Env:    params.GetStrings("env"),
			Labels: map[string]string{"io.testfleet.managed": "true"},
		},
		hostConfig, nil, nil, name)
	if err != nil {
		return target.Handle{}, fmt.Errorf("failed to create container from %s: %w", ref, err)
	}
	state.Created(resp.ID)

	fail := func(err error) (target.Handle, error) {
		if state.NeedsCleanup() {
			logging.Warn("docker-platform", "removing container after failed deploy", "state", state.Describe())
			if rmErr := removeContainer(context.WithoutCancel(ctx), api, resp.ID); rmErr != nil {
				logging.Error("docker-platform", rmErr, "cleanup failed", "container", resp.ID)
			}
		}
		return target.Handle{}, err
	}

	state.Advance(provision.PhaseStart)
	if err := api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fail(fmt.Errorf("failed to start container %s: %w", resp.ID, err))
	}

	state.Advance(provision.PhaseWaitReady)
	checker := provision.NewReadinessChecker(func(ctx context.Context) (bool, string, error) {
		info, err := api.ContainerInspect(ctx, resp.ID)
		if err != nil {
			return false, "", err
		}
		if info.ContainerJSONBase == nil || info.State == nil {
			return false, "no state reported", nil
		}
		if info.State.Running {
			return true, "", nil
		}
		return false, fmt.Sprintf("container not running (status: %s)", info.State.Status), nil
	})
	checker.SetTimeout(p.readyTimeout)
	checker.SetInterval(p.readyInterval)
	if err := checker.Wait(ctx); err != nil {
		return fail(fmt.Errorf("container %s: %w", resp.ID, err))
	}
	state.Advance(provision.PhaseReady)

	logging.Debug("docker-platform", "container ready", "id", resp.ID, "name", name, "image", ref)
	return target.Handle{ID: resp.ID, Address: name, Attrs: map[string]string{"image": ref}}, nil
}

// Delete force-removes the container. Missing containers are not an error.
func (p *Platform) Delete(ctx context.Context, h target.Handle) error {
	api, err := p.client()
	if err != nil {
		return err
	}
	return removeContainer(ctx, api, h.ID)
}

// Connect returns an exec-based connection to the container
func (p *Platform) Connect(ctx context.Context, h target.Handle) (target.Connection, error) {
	api, err := p.client()
	if err != nil {
		return nil, err
	}
	info, err := api.ContainerInspect(ctx, h.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container %s: %w", h.ID, err)
	}
	if info.ContainerJSONBase == nil || info.State == nil || !info.State.Running {
		return nil, fmt.Errorf("container %s is not running", h.ID)
	}
	return &connection{api: api, containerID: h.ID}, nil
}

func hostConfigFor(params target.Params) (*container.HostConfig, error) {
	hc := &container.HostConfig{
		Privileged: params.GetBool("privileged"),
		CapAdd:     params.GetStrings("cap_add"),
	}
	if mem := params.GetString("memory"); mem != "" {
		bytes, err := units.RAMInBytes(mem)
		if err != nil {
			return nil, fmt.Errorf("invalid memory limit %q: %w", mem, err)
		}
		hc.Resources.Memory = bytes
	}
	return hc, nil
}

func ensureImage(ctx context.Context, api API, ref string, pull bool) error {
	_, _, err := api.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}
	if !pull {
		return fmt.Errorf("image %s not present and pull disabled", ref)
	}

	logging.Info("docker-platform", "pulling image", "image", ref)
	reader, err := api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

func removeContainer(ctx context.Context, api API, id string) error {
	err := api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", id, err)
	}
	return nil
}
