package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/yoanbernabeu/testfleet/internal/constants"
)

const (
	// UserConfigDir is the configuration directory name
	UserConfigDir = "testfleet"
	// UserConfigFile is the user config filename
	UserConfigFile = "config.yaml"
)

// GetUserConfigPath returns the path to the user config file
func GetUserConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, UserConfigDir, UserConfigFile), nil
}

// LoadUserConfig loads the host inventory. A missing file yields defaults.
func LoadUserConfig() (*UserConfig, error) {
	path, err := GetUserConfigPath()
	if err != nil {
		return nil, err
	}
	return loadUserConfigFrom(path)
}

func loadUserConfigFrom(path string) (*UserConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultUserConfig(), nil
		}
		return nil, fmt.Errorf("failed to read user config: %w", err)
	}

	cfg := DefaultUserConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse user config: %w", err)
	}

	if cfg.Hosts == nil {
		cfg.Hosts = make(map[string]HostConfig)
	}

	return cfg, nil
}

// SaveUserConfig saves the host inventory
func SaveUserConfig(cfg *UserConfig) error {
	path, err := GetUserConfigPath()
	if err != nil {
		return err
	}
	return saveUserConfigTo(cfg, path)
}

func saveUserConfigTo(cfg *UserConfig, path string) error {
	// SECURITY: Use 0700 to restrict directory access to owner only
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// SECURITY: Use 0600, the inventory points at private keys
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write user config: %w", err)
	}

	return nil
}

// GetHost retrieves a host by name
func (c *UserConfig) GetHost(name string) (*HostConfig, error) {
	host, ok := c.Hosts[name]
	if !ok {
		return nil, fmt.Errorf("host '%s' not found", name)
	}
	return &host, nil
}

// AddHost adds a new host to the inventory
func (c *UserConfig) AddHost(name string, host HostConfig) error {
	if _, exists := c.Hosts[name]; exists {
		return fmt.Errorf("host '%s' already exists", name)
	}

	if host.Port == 0 {
		host.Port = c.DefaultPort
		if host.Port == 0 {
			host.Port = 22
		}
	}
	if host.User == "" {
		host.User = c.DefaultUser
	}

	c.Hosts[name] = host
	return nil
}

// RemoveHost removes a host from the inventory
func (c *UserConfig) RemoveHost(name string) error {
	if _, exists := c.Hosts[name]; !exists {
		return fmt.Errorf("host '%s' not found", name)
	}

	delete(c.Hosts, name)
	return nil
}

// ListHosts returns all host names, sorted
func (c *UserConfig) ListHosts() []string {
	names := make([]string, 0, len(c.Hosts))
	for name := range c.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// applyHost fills the connection fields of an SSH target entry named after
// an inventory host. Fields set in the entry win.
func (c *UserConfig) applyHost(entry map[string]any) map[string]any {
	if c == nil {
		return entry
	}
	if platform, _ := entry["platform"].(string); platform != constants.DefaultPlatform {
		return entry
	}
	name, _ := entry["name"].(string)
	host, ok := c.Hosts[name]
	if !ok {
		return entry
	}

	out := maps.Clone(entry)
	fill := map[string]any{"host": host.Host, "user": host.User, "port": host.Port, "key_path": host.KeyPath}
	for k, v := range fill {
		if _, set := out[k]; set {
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			continue
		}
		if n, isInt := v.(int); isInt && n == 0 {
			continue
		}
		out[k] = v
	}
	return out
}
