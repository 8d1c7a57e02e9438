package target

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

// Target is one deployed execution environment. Platform and Params never
// change after creation; Features only grow.
type Target struct {
	ID        string
	Name      string
	Platform  string
	Params    Params
	CreatedAt time.Time

	platform Platform

	mu       sync.Mutex
	handle   Handle
	deployed bool
	features map[string]struct{}
	conn     Connection
	priv     privilege
}

type privilege int

const (
	privilegeUnknown privilege = iota
	privilegeRoot
	privilegeSudo
	privilegeNone
)

// New creates an undeployed target with a fresh identity.
func New(spec Spec, p Platform, features []string) *Target {
	t := &Target{
		ID:        NewID(),
		Name:      spec.Name,
		Platform:  spec.Platform,
		Params:    spec.Params.Clone(),
		CreatedAt: time.Now(),
		platform:  p,
		features:  make(map[string]struct{}, len(features)),
	}
	t.AddFeatures(features...)
	return t
}

// NewID returns a unique target identifier
func NewID() string {
	return fmt.Sprintf("%s-%s", constants.TargetIDPrefix, uuid.NewString())
}

// Deploy provisions the target on its platform. Failures are returned as
// *ProvisioningError.
func (t *Target) Deploy(ctx context.Context) error {
	logging.Info("target", "deploying target", "id", t.ID, "platform", t.Platform, "name", t.Name)
	h, err := t.platform.Deploy(ctx, t.Params)
	if err != nil {
		return &ProvisioningError{TargetID: t.ID, Platform: t.Platform, Err: err}
	}
	t.mu.Lock()
	t.handle = h
	t.deployed = true
	t.mu.Unlock()
	return nil
}

// Delete destroys the deployed resource. Deleting an undeployed target is a no-op.
func (t *Target) Delete(ctx context.Context) error {
	t.mu.Lock()
	if !t.deployed {
		t.mu.Unlock()
		return nil
	}
	h := t.handle
	t.mu.Unlock()

	if err := t.CloseConnection(); err != nil {
		logging.Warn("target", "closing connection before delete", "id", t.ID, "error", err)
	}
	logging.Info("target", "deleting target", "id", t.ID, "platform", t.Platform)
	if err := t.platform.Delete(ctx, h); err != nil {
		return fmt.Errorf("failed to delete target %s: %w", t.ID, err)
	}
	t.mu.Lock()
	t.deployed = false
	t.mu.Unlock()
	return nil
}

// Handle returns the platform handle of a deployed target
func (t *Target) Handle() Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle
}

// Open connects to the target if no connection is live.
func (t *Target) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}
	if !t.deployed {
		return fmt.Errorf("target %s is not deployed", t.ID)
	}
	conn, err := t.platform.Connect(ctx, t.handle)
	if err != nil {
		return fmt.Errorf("failed to connect to target %s: %w", t.ID, err)
	}
	t.conn = conn
	return nil
}

// CloseConnection closes the live connection, if any.
func (t *Target) CloseConnection() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Connected reports whether the target has a live connection
func (t *Target) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Run executes cmd on the target through its live connection.
func (t *Target) Run(ctx context.Context, cmd string, opts RunOptions) (*ExecResult, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("%s: %w", t.ID, ErrNotConnected)
	}

	if opts.Sudo {
		priv, err := t.privilege(ctx, conn)
		if err != nil {
			return nil, err
		}
		switch priv {
		case privilegeRoot:
			opts.Sudo = false
		case privilegeNone:
			return nil, fmt.Errorf("target %s doesn't support sudo, cannot execute: %s", t.ID, cmd)
		}
	}

	return conn.Run(ctx, cmd, opts)
}

// SupportsSudo reports whether privileged commands can run on the target,
// either as root or through sudo.
func (t *Target) SupportsSudo(ctx context.Context) (bool, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return false, fmt.Errorf("%s: %w", t.ID, ErrNotConnected)
	}
	priv, err := t.privilege(ctx, conn)
	if err != nil {
		return false, err
	}
	return priv != privilegeNone, nil
}

func (t *Target) privilege(ctx context.Context, conn Connection) (privilege, error) {
	t.mu.Lock()
	cached := t.priv
	t.mu.Unlock()
	if cached != privilegeUnknown {
		return cached, nil
	}

	priv := privilegeNone
	res, err := conn.Run(ctx, "id -u", RunOptions{})
	if err != nil {
		return privilegeUnknown, fmt.Errorf("failed to detect privileges on %s: %w", t.ID, err)
	}
	if res.ExitCode == 0 && strings.TrimSpace(res.Stdout) == "0" {
		priv = privilegeRoot
	} else {
		res, err = conn.Run(ctx, "command -v sudo", RunOptions{})
		if err != nil {
			return privilegeUnknown, fmt.Errorf("failed to detect sudo on %s: %w", t.ID, err)
		}
		if res.ExitCode == 0 {
			priv = privilegeSudo
		} else {
			logging.Debug("target", "target doesn't support sudo, may cause failure later", "id", t.ID)
		}
	}

	t.mu.Lock()
	t.priv = priv
	t.mu.Unlock()
	return priv, nil
}

// AddFeatures records capabilities the target now satisfies
func (t *Target) AddFeatures(features ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range features {
		t.features[f] = struct{}{}
	}
}

// HasFeatures reports whether the target satisfies every requested feature
func (t *Target) HasFeatures(features []string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range features {
		if _, ok := t.features[f]; !ok {
			return false
		}
	}
	return true
}

// Features returns the feature set, sorted
func (t *Target) Features() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.features))
	for f := range t.features {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Matches reports whether the target can serve a request for the given
// platform, params and features.
func (t *Target) Matches(platform string, params Params, features []string) bool {
	return t.Platform == platform && t.Params.Equal(params) && t.HasFeatures(features)
}

func (t *Target) String() string {
	return fmt.Sprintf("%s (%s/%s)", t.ID, t.Platform, t.Name)
}
