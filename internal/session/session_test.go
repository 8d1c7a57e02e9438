package session

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoanbernabeu/testfleet/internal/config"
	"github.com/yoanbernabeu/testfleet/internal/target"
	"github.com/yoanbernabeu/testfleet/internal/target/targettest"
	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

func fakeRegistry(t *testing.T) (*target.Registry, *targettest.FakePlatform) {
	t.Helper()
	fake := &targettest.FakePlatform{}
	reg := target.NewRegistry()
	require.NoError(t, reg.RegisterPlatform("Fake", fake))
	return reg, fake
}

func fakeRunbook() *config.Runbook {
	rb := config.DefaultRunbook()
	rb.Targets = []map[string]any{{"name": "box", "platform": "Fake"}}
	return rb
}

func TestNew(t *testing.T) {
	reg, _ := fakeRegistry(t)
	root := t.TempDir()

	s, err := New(Options{
		Runbook:   fakeRunbook(),
		Platforms: reg,
		RunRoot:   root,
		Console:   &bytes.Buffer{},
		Log:       logging.Discard(),
	})
	require.NoError(t, err)

	assert.DirExists(t, s.RunDir)
	assert.Equal(t, root, filepath.Dir(s.RunDir))
	require.Len(t, s.Targets, 1)
	assert.Equal(t, "box", s.Targets[0].Name)
	assert.NotNil(t, s.Pool)
	assert.NotNil(t, s.Binder)
	assert.NotNil(t, s.Notifier)
	assert.NotEmpty(t, s.Cases.Cases(), "built-in suites are registered")
	assert.Equal(t, filepath.Join(s.RunDir, "script_runner"), s.RunnerWorkDir("script"))
	assert.Equal(t, s.RunDir, s.RunnerWorkDir("local"))
}

func TestNew_InvalidRunbook(t *testing.T) {
	reg, _ := fakeRegistry(t)
	rb := fakeRunbook()
	rb.Targets = []map[string]any{{"name": "box", "platform": "Cloud"}}

	_, err := New(Options{Runbook: rb, Platforms: reg, RunRoot: t.TempDir(), Log: logging.Discard()})
	require.Error(t, err)

	var verrs config.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestNew_Overrides(t *testing.T) {
	reg, _ := fakeRegistry(t)
	keep := true

	s, err := New(Options{
		Runbook:     fakeRunbook(),
		Platforms:   reg,
		RunRoot:     t.TempDir(),
		KeepTargets: &keep,
		MetricsFile: "metrics.prom",
		Console:     &bytes.Buffer{},
		Log:         logging.Discard(),
	})
	require.NoError(t, err)
	assert.True(t, s.KeepTargets)
	assert.Equal(t, "metrics.prom", s.MetricsFile)
}

func TestClose(t *testing.T) {
	reg, fake := fakeRegistry(t)
	s, err := New(Options{
		Runbook:     fakeRunbook(),
		Platforms:   reg,
		RunRoot:     t.TempDir(),
		MetricsFile: "metrics.prom",
		Console:     &bytes.Buffer{},
		Log:         logging.Discard(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	tgt, err := s.Pool.Acquire(ctx, s.Targets[0], nil)
	require.NoError(t, err)
	require.NoError(t, s.Pool.Release(tgt))

	report, err := s.Close(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{tgt.ID}, report.Deleted)
	assert.Equal(t, 1, fake.TotalDeletes())

	data, err := os.ReadFile(filepath.Join(s.RunDir, "metrics.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "testfleet_")
}

func TestNewRunID(t *testing.T) {
	at := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	a, b := NewRunID(at), NewRunID(at)

	assert.Regexp(t, `^20240115-120000-[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b)
}
