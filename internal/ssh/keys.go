package ssh

import (
	"context"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// Key is a private key found on this machine
type Key struct {
	Path      string
	Type      string // ed25519, rsa, ecdsa, dsa or unknown
	Encrypted bool
}

// Name returns the key file name
func (k Key) Name() string {
	return filepath.Base(k.Path)
}

var keyRank = map[string]int{"ed25519": 0, "rsa": 1, "ecdsa": 2}

func rank(keyType string) int {
	if r, ok := keyRank[keyType]; ok {
		return r
	}
	return len(keyRank)
}

// DefaultKeyDir returns ~/.ssh
func DefaultKeyDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".ssh"), nil
}

// DiscoverKeys lists the private keys in dir, preferred types first.
// Files that do not parse as keys are ignored. A missing dir yields no keys.
func DiscoverKeys(dir string) ([]Key, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var keys []Key
	for _, entry := range entries {
		if entry.IsDir() || !isKeyCandidate(entry.Name()) {
			continue
		}
		key, err := InspectKey(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		keys = append(keys, *key)
	}

	sort.SliceStable(keys, func(i, j int) bool {
		return rank(keys[i].Type) < rank(keys[j].Type)
	})
	return keys, nil
}

func isKeyCandidate(name string) bool {
	if strings.HasSuffix(name, ".pub") {
		return false
	}
	return strings.HasPrefix(name, "id_") || strings.HasSuffix(name, ".pem")
}

// InspectKey parses the key at path. Passphrase-protected keys are reported
// as Encrypted rather than rejected.
func InspectKey(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key := &Key{Path: path}
	signer, err := ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	switch {
	case err == nil:
		key.Type = algorithmType(signer.PublicKey().Type())
	case errors.As(err, &missing):
		key.Encrypted = true
		if missing.PublicKey != nil {
			key.Type = algorithmType(missing.PublicKey.Type())
		} else {
			key.Type = pemType(data)
		}
	default:
		return nil, fmt.Errorf("invalid SSH key: %w", err)
	}
	return key, nil
}

func algorithmType(algo string) string {
	switch {
	case algo == ssh.KeyAlgoED25519:
		return "ed25519"
	case algo == ssh.KeyAlgoRSA:
		return "rsa"
	case strings.HasPrefix(algo, "ecdsa-"):
		return "ecdsa"
	case algo == "ssh-dss":
		return "dsa"
	default:
		return "unknown"
	}
}

// pemType reads the key type from a legacy PEM block header
func pemType(data []byte) string {
	block, _ := pem.Decode(data)
	if block == nil {
		return "unknown"
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return "rsa"
	case "EC PRIVATE KEY":
		return "ecdsa"
	case "DSA PRIVATE KEY":
		return "dsa"
	default:
		return "unknown"
	}
}

// TryConnect performs a single connection attempt with a short timeout
func TryConnect(ctx context.Context, host, user string, port int, keyPath string) error {
	client := NewClient(host, user, port, keyPath,
		WithTimeout(10*time.Second),
		WithRetries(1),
	)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	return client.Close()
}
