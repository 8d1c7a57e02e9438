package target_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoanbernabeu/testfleet/internal/target"
	"github.com/yoanbernabeu/testfleet/internal/target/targettest"
)

func TestRegistry_RegisterPlatform(t *testing.T) {
	reg := target.NewRegistry()
	require.NoError(t, reg.RegisterPlatform("Fake", &targettest.FakePlatform{}))
	assert.Error(t, reg.RegisterPlatform("Fake", &targettest.FakePlatform{}), "duplicate")
	assert.Error(t, reg.RegisterPlatform("", &targettest.FakePlatform{}))
	assert.Error(t, reg.RegisterPlatform("Nil", nil))

	_, ok := reg.Get("Fake")
	assert.True(t, ok)
	assert.Equal(t, []string{"Fake"}, reg.Names())
}

func TestRegistry_Resolve(t *testing.T) {
	reg := target.NewRegistry()
	require.NoError(t, reg.RegisterPlatform("Fake", &targettest.FakePlatform{}))

	spec, err := reg.Resolve(map[string]any{"name": "vm1", "platform": "Fake"})
	require.NoError(t, err)
	assert.Equal(t, "vm1", spec.Name)
	assert.Equal(t, "Fake", spec.Platform)
	assert.Equal(t, target.Params{"image": "ubuntu"}, spec.Params)

	_, err = reg.Resolve(map[string]any{"name": "vm1", "platform": "Azure"})
	assert.ErrorContains(t, err, "unknown platform")

	_, err = reg.Resolve(map[string]any{"name": "bad name", "platform": "Fake"})
	assert.Error(t, err)

	_, err = reg.Resolve(map[string]any{"name": "vm1", "platform": "Fake", "gpu": true})
	assert.ErrorContains(t, err, "unknown field")
}

func TestRegistry_DefaultSpec(t *testing.T) {
	reg := target.NewRegistry()
	_, err := reg.DefaultSpec()
	assert.Error(t, err, "SSH platform not registered")

	require.NoError(t, reg.RegisterPlatform("SSH", &targettest.FakePlatform{}))
	spec, err := reg.DefaultSpec()
	require.NoError(t, err)
	assert.Equal(t, "Default", spec.Name)
	assert.Equal(t, "SSH", spec.Platform)
	assert.Equal(t, target.Params{"image": "ubuntu"}, spec.Params)
}
