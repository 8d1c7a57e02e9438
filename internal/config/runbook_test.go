package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/internal/notify"
	"github.com/yoanbernabeu/testfleet/internal/testcase"
)

const sampleRunbook = `name: nightly
run_root: out/runs
keep_targets: false
testcase:
  - type: local
    criteria:
      name: test
      area: demo
  - type: script
    kind: script
    dir: ./scripts
  - area: time
targets:
  - name: lab
    platform: SSH
    host: 10.0.0.5
  - name: box
    platform: Docker
    image: debian:12
notifiers:
  - type: console
  - type: file
    path: run.yaml
retry:
  max_attempts: 5
  delay: 250ms
`

func writeRunbook(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), RunbookFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadRunbook(t *testing.T) {
	path := writeRunbook(t, sampleRunbook)

	rb, err := LoadRunbook(path)
	require.NoError(t, err)
	assert.Equal(t, "nightly", rb.Name)
	assert.Equal(t, path, rb.Path)
	assert.Len(t, rb.TestCase, 3)
	assert.Equal(t, map[string]any{"name": "test", "area": "demo"}, rb.TestCase[0]["criteria"])
	assert.Equal(t, "script", rb.TestCase[1].Type())
	assert.Equal(t, "local", rb.TestCase[2].Type())
	assert.Len(t, rb.Targets, 2)
	assert.Equal(t, []notify.Spec{{Type: "console"}, {Type: "file", Path: "run.yaml"}}, rb.Notifiers)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "out/runs"), rb.ResolveRunRoot())

	policy, err := rb.Retry.Policy()
	require.NoError(t, err)
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, policy.Delay)
}

func TestLoadRunbook_Errors(t *testing.T) {
	_, err := LoadRunbook(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "runbook not found")

	_, err = LoadRunbook(writeRunbook(t, "nmae: typo\n"))
	assert.ErrorContains(t, err, "failed to parse runbook")
}

func TestLoadRunbook_Empty(t *testing.T) {
	rb, err := LoadRunbook(writeRunbook(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "testfleet", rb.Name)
	assert.Equal(t, []testcase.RawFilter{testcase.DefaultFilter()}, rb.RawFilters())
}

func TestLoadRunbook_EnvOverrides(t *testing.T) {
	path := writeRunbook(t, "keep_targets: false\n")
	t.Setenv(constants.EnvConfig, path)
	t.Setenv(constants.EnvKeepTargets, "true")

	rb, err := LoadRunbook("")
	require.NoError(t, err)
	assert.True(t, rb.KeepTargets)

	found, err := FindRunbook()
	require.NoError(t, err)
	assert.Equal(t, path, found)

	t.Setenv(constants.EnvKeepTargets, "maybe")
	_, err = LoadRunbook("")
	assert.ErrorContains(t, err, constants.EnvKeepTargets)
}

func TestFindRunbook_ParentDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, RunbookFile), []byte("name: x\n"), 0644))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	t.Chdir(nested)

	found, err := FindRunbook()
	require.NoError(t, err)
	resolvedRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	resolvedFound, err := filepath.EvalSymlinks(found)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resolvedRoot, RunbookFile), resolvedFound)
}

func TestSaveRunbook_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), RunbookFile)
	rb := DefaultRunbook()
	rb.TestCase = []testcase.RawFilter{{"area": "time"}}
	require.NoError(t, SaveRunbook(rb, path))
	assert.True(t, RunbookExists(path))

	loaded, err := LoadRunbook(path)
	require.NoError(t, err)
	assert.Equal(t, "time", loaded.TestCase[0]["area"])
}

func TestForRunner_CopiesRunbook(t *testing.T) {
	rb, err := ParseRunbook([]byte(sampleRunbook))
	require.NoError(t, err)

	raws := []testcase.RawFilter{rb.TestCase[1]}
	f, err := testcase.NewFilterRegistry().Parse(raws[0])
	require.NoError(t, err)

	sub := rb.ForRunner(raws, []testcase.Filter{f})
	assert.Len(t, sub.TestCase, 1)
	assert.Len(t, sub.Filters, 1)
	assert.Len(t, rb.TestCase, 3, "original untouched")
	assert.Empty(t, rb.Filters)

	sub.Targets[0] = map[string]any{"name": "changed"}
	assert.Equal(t, "lab", rb.Targets[0]["name"])
}

func TestRetryConfig_Policy(t *testing.T) {
	p, err := RetryConfig{}.Policy()
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultRetryAttempts, p.MaxAttempts)

	_, err = RetryConfig{MaxAttempts: -1}.Policy()
	assert.Error(t, err)
	_, err = RetryConfig{Delay: "later"}.Policy()
	assert.Error(t, err)
}
