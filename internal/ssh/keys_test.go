package ssh

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func writeEd25519Key(t *testing.T, path, passphrase string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "test@testfleet")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "test@testfleet", []byte(passphrase))
	}
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
}

func writeECDSAKey(t *testing.T, path string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
}

func TestDiscoverKeys(t *testing.T) {
	dir := t.TempDir()
	writeECDSAKey(t, filepath.Join(dir, "id_ecdsa"))
	writeEd25519Key(t, filepath.Join(dir, "id_ed25519"), "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "id_ed25519.pub"), []byte("ssh-ed25519 AAAA"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "known_hosts"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "id_broken"), []byte("not a key"), 0600))

	keys, err := DiscoverKeys(dir)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "id_ed25519", keys[0].Name())
	assert.Equal(t, "ed25519", keys[0].Type)
	assert.Equal(t, "id_ecdsa", keys[1].Name())
	assert.Equal(t, "ecdsa", keys[1].Type)
}

func TestDiscoverKeys_MissingDir(t *testing.T) {
	keys, err := DiscoverKeys(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestInspectKey(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "id_ed25519")
	writeEd25519Key(t, plain, "")
	locked := filepath.Join(dir, "id_locked")
	writeEd25519Key(t, locked, "secret")

	t.Run("plain key", func(t *testing.T) {
		key, err := InspectKey(plain)
		require.NoError(t, err)
		assert.Equal(t, "ed25519", key.Type)
		assert.False(t, key.Encrypted)
	})

	t.Run("passphrase protected", func(t *testing.T) {
		key, err := InspectKey(locked)
		require.NoError(t, err)
		assert.True(t, key.Encrypted)
		assert.Equal(t, "ed25519", key.Type)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := InspectKey(filepath.Join(dir, "nonexistent"))
		assert.Error(t, err)
	})

	t.Run("not a key", func(t *testing.T) {
		bad := filepath.Join(dir, "id_bad")
		require.NoError(t, os.WriteFile(bad, []byte("not a key"), 0600))
		_, err := InspectKey(bad)
		assert.Error(t, err)
	})
}

func TestAlgorithmType(t *testing.T) {
	assert.Equal(t, "ed25519", algorithmType(ssh.KeyAlgoED25519))
	assert.Equal(t, "rsa", algorithmType(ssh.KeyAlgoRSA))
	assert.Equal(t, "ecdsa", algorithmType(ssh.KeyAlgoECDSA256))
	assert.Equal(t, "unknown", algorithmType("sk-ssh-ed25519@openssh.com"))
}

func TestPemType(t *testing.T) {
	encode := func(typ string) []byte {
		return pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: []byte{1}})
	}
	assert.Equal(t, "rsa", pemType(encode("RSA PRIVATE KEY")))
	assert.Equal(t, "ecdsa", pemType(encode("EC PRIVATE KEY")))
	assert.Equal(t, "unknown", pemType([]byte("garbage")))
}

func TestIsKeyCandidate(t *testing.T) {
	assert.True(t, isKeyCandidate("id_rsa"))
	assert.True(t, isKeyCandidate("deploy.pem"))
	assert.False(t, isKeyCandidate("id_rsa.pub"))
	assert.False(t, isKeyCandidate("config"))
}
