// Package sshplatform reaches pre-existing hosts over SSH.
package sshplatform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/internal/provision"
	"github.com/yoanbernabeu/testfleet/internal/security"
	"github.com/yoanbernabeu/testfleet/internal/ssh"
	"github.com/yoanbernabeu/testfleet/internal/target"
	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

// Name is the platform name used in runbooks
const Name = "SSH"

// Dialer opens an executor for the host described by params
type Dialer func(ctx context.Context, params target.Params) (ssh.Executor, error)

// Platform treats an existing SSH host as a target. Deploy waits until the
// host answers; Delete removes the remote working directory.
type Platform struct {
	dial          Dialer
	readyTimeout  time.Duration
	readyInterval time.Duration

	mu    sync.Mutex
	hosts map[string]target.Params
}

// New creates the SSH platform. A nil dialer connects with internal/ssh.
func New(dial Dialer) *Platform {
	if dial == nil {
		dial = DialSSH
	}
	return &Platform{
		dial:          dial,
		readyTimeout:  constants.ReadinessTimeout,
		readyInterval: constants.ReadinessInterval,
		hosts:         make(map[string]target.Params),
	}
}

// SetReadiness overrides the readiness wait budget
func (p *Platform) SetReadiness(timeout, interval time.Duration) {
	p.readyTimeout = timeout
	p.readyInterval = interval
}

// Schema implements target.Platform. Every field has a default so the
// default target validates from an empty entry.
func (p *Platform) Schema() target.Schema {
	return target.Schema{Fields: []target.Field{
		{Name: "host", Type: target.StringField, Default: "localhost", Description: "Hostname or IP address"},
		{Name: "port", Type: target.IntField, Default: 22, Description: "SSH port"},
		{Name: "user", Type: target.StringField, Default: "root", Description: "Remote user"},
		{Name: "key_path", Type: target.StringField, Default: "", Description: "Private key (default: discovered in ~/.ssh)"},
		{Name: "connect_retries", Type: target.IntField, Default: ssh.DefaultMaxRetries, Description: "Dial attempts per connection"},
	}}
}

// DialSSH connects with the parameters of an SSH target
func DialSSH(ctx context.Context, params target.Params) (ssh.Executor, error) {
	if user := params.GetString("user"); user != "" {
		if err := security.ValidateUnixUser(user); err != nil {
			return nil, fmt.Errorf("invalid user: %w", err)
		}
	}
	client := ssh.NewClient(
		params.GetString("host"),
		params.GetString("user"),
		params.GetInt("port"),
		params.GetString("key_path"),
		ssh.WithRetries(params.GetInt("connect_retries")),
	)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// Deploy waits for the host to accept a session
func (p *Platform) Deploy(ctx context.Context, params target.Params) (target.Handle, error) {
	h := target.Handle{
		ID:      fmt.Sprintf("%s@%s:%d", params.GetString("user"), params.GetString("host"), params.GetInt("port")),
		Address: params.GetString("host"),
		Attrs:   map[string]string{"user": params.GetString("user")},
	}

	checker := provision.NewReadinessChecker(func(ctx context.Context) (bool, string, error) {
		exec, err := p.dial(ctx, params)
		if err != nil {
			return false, err.Error(), nil
		}
		defer exec.Close()
		return provision.CommandProbe(exec, "true")(ctx)
	})
	checker.SetTimeout(p.readyTimeout)
	checker.SetInterval(p.readyInterval)

	if err := checker.Wait(ctx); err != nil {
		return target.Handle{}, fmt.Errorf("host %s unreachable: %w", h.ID, err)
	}
	p.mu.Lock()
	p.hosts[h.ID] = params.Clone()
	p.mu.Unlock()

	logging.Debug("ssh-platform", "host ready", "handle", h.ID)
	return h, nil
}

// Delete removes the remote working directory; the host itself is kept
func (p *Platform) Delete(ctx context.Context, h target.Handle) error {
	params, err := p.paramsFor(h)
	if err != nil {
		return err
	}
	exec, err := p.dial(ctx, params)
	if err != nil {
		logging.Warn("ssh-platform", "cannot clean up host", "handle", h.ID, "error", err)
		return nil
	}
	defer exec.Close()

	res, err := exec.Exec(ctx, "rm -rf "+security.ShellEscape(constants.RemoteWorkDir))
	if err != nil {
		return fmt.Errorf("failed to clean up %s: %w", h.ID, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("failed to clean up %s: %s", h.ID, res.Stderr)
	}
	return nil
}

// Connect opens a session channel to the host
func (p *Platform) Connect(ctx context.Context, h target.Handle) (target.Connection, error) {
	params, err := p.paramsFor(h)
	if err != nil {
		return nil, err
	}
	exec, err := p.dial(ctx, params)
	if err != nil {
		return nil, err
	}
	return &connection{exec: exec}, nil
}

func (p *Platform) paramsFor(h target.Handle) (target.Params, error) {
	p.mu.Lock()
	params, ok := p.hosts[h.ID]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown SSH handle %q", h.ID)
	}
	return params, nil
}
