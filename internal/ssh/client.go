package ssh

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

const (
	// DefaultTimeout is the dial timeout for a single connection attempt
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRetries is the number of dial attempts before giving up
	DefaultMaxRetries = 3
	// DefaultInitialDelay is the wait before the second attempt
	DefaultInitialDelay = 1 * time.Second
	// DefaultMaxDelay caps the exponential backoff
	DefaultMaxDelay = 10 * time.Second
)

type clientOptions struct {
	timeout      time.Duration
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
}

// ClientOption configures a Client
type ClientOption func(*clientOptions)

// WithTimeout sets the dial timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = d }
}

// WithRetries sets the number of dial attempts
func WithRetries(n int) ClientOption {
	return func(o *clientOptions) {
		if n < 1 {
			n = 1
		}
		o.maxRetries = n
	}
}

// WithInitialDelay sets the first backoff delay
func WithInitialDelay(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.initialDelay = d }
}

// WithMaxDelay caps the backoff delay
func WithMaxDelay(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.maxDelay = d }
}

// Client represents an SSH client connection
type Client struct {
	Host    string
	User    string
	Port    int
	KeyPath string

	opts   clientOptions
	config *ssh.ClientConfig
	client *ssh.Client
}

// NewClient creates a new SSH client
func NewClient(host, user string, port int, keyPath string, opts ...ClientOption) *Client {
	if port == 0 {
		port = 22
	}
	c := &Client{
		Host:    host,
		User:    user,
		Port:    port,
		KeyPath: keyPath,
		opts: clientOptions{
			timeout:      DefaultTimeout,
			maxRetries:   DefaultMaxRetries,
			initialDelay: DefaultInitialDelay,
			maxDelay:     DefaultMaxDelay,
		},
	}
	for _, opt := range opts {
		opt(&c.opts)
	}
	return c
}

// Addr returns host:port
func (c *Client) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Connect establishes an SSH connection, retrying with exponential backoff
func (c *Client) Connect(ctx context.Context) error {
	signer, err := c.loadPrivateKey()
	if err != nil {
		return fmt.Errorf("failed to load private key: %w", err)
	}

	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		return fmt.Errorf("host key verification failed: %w", err)
	}

	c.config = &ssh.ClientConfig{
		User: c.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.opts.timeout,
	}

	return c.dial(ctx)
}

// Reconnect re-dials using the configuration of the previous Connect
func (c *Client) Reconnect(ctx context.Context) error {
	if c.config == nil {
		return fmt.Errorf("cannot reconnect: no previous connection to %s", c.Addr())
	}
	_ = c.Close()
	return c.dial(ctx)
}

func (c *Client) dial(ctx context.Context) error {
	addr := c.Addr()
	var lastErr error
	for attempt := 1; attempt <= c.opts.maxRetries; attempt++ {
		if attempt > 1 {
			delay := c.backoffDelay(attempt - 1)
			logging.Debug("ssh", "retrying connection", "addr", addr, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return fmt.Errorf("connection to %s cancelled: %w", addr, ctx.Err())
			case <-time.After(delay):
			}
		}

		client, err := dialContext(ctx, addr, c.config)
		if err == nil {
			c.client = client
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to connect to %s after %d attempts: %w", addr, c.opts.maxRetries, lastErr)
}

func dialContext(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: config.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// backoffDelay returns initialDelay * 2^(attempt-1), capped at maxDelay
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.opts.initialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.opts.maxDelay {
			return c.opts.maxDelay
		}
	}
	if delay > c.opts.maxDelay {
		return c.opts.maxDelay
	}
	return delay
}

// Close closes the SSH connection
func (c *Client) Close() error {
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c.client != nil
}

// loadPrivateKey loads the SSH private key
func (c *Client) loadPrivateKey() (ssh.Signer, error) {
	// CI/CD: Check for SSH key in environment variable first
	if envKey := os.Getenv(constants.EnvSSHKey); envKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(envKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", constants.EnvSSHKey, err)
		}
		return signer, nil
	}

	keyPath := c.KeyPath
	if keyPath == "" {
		dir, err := DefaultKeyDir()
		if err != nil {
			return nil, err
		}
		keys, err := DiscoverKeys(dir)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if !k.Encrypted {
				keyPath = k.Path
				break
			}
		}
		if keyPath == "" {
			return nil, fmt.Errorf("no usable SSH key found (set %s for CI/CD)", constants.EnvSSHKey)
		}
	}

	keyPath = expandHome(keyPath)

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return signer, nil
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// hostKeyCallback returns the host key callback function
// SECURITY: This function requires a valid known_hosts file by default
// In CI/CD, set TESTFLEET_KNOWN_HOSTS with the content of known_hosts
// or TESTFLEET_SKIP_HOST_KEY_CHECK=true to skip verification (not recommended)
func (c *Client) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if knownHostsContent := os.Getenv(constants.EnvKnownHosts); knownHostsContent != "" {
		tmpFile, err := os.CreateTemp("", "known_hosts")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp known_hosts: %w", err)
		}
		defer os.Remove(tmpFile.Name())

		if _, err := tmpFile.WriteString(knownHostsContent); err != nil {
			tmpFile.Close()
			return nil, fmt.Errorf("failed to write temp known_hosts: %w", err)
		}
		tmpFile.Close()

		callback, err := knownhosts.New(tmpFile.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", constants.EnvKnownHosts, err)
		}
		return callback, nil
	}

	if os.Getenv(constants.EnvSkipHostKeyCheck) == "true" {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	knownHostsPath := filepath.Join(homeDir, ".ssh", "known_hosts")

	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("SSH known_hosts file not found at %s. "+
			"Please connect to the target manually first with: ssh %s@%s -p %d\n"+
			"For CI/CD, set %s or %s=true",
			knownHostsPath, c.User, c.Host, c.Port, constants.EnvKnownHosts, constants.EnvSkipHostKeyCheck)
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read known_hosts: %w", err)
	}

	return callback, nil
}

// NewSession creates a new SSH session
func (c *Client) NewSession() (*ssh.Session, error) {
	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	return c.client.NewSession()
}
