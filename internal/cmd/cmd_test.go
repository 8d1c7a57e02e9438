package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoanbernabeu/testfleet/internal/config"
	"github.com/yoanbernabeu/testfleet/internal/notify"
	"github.com/yoanbernabeu/testfleet/internal/platforms"
	"github.com/yoanbernabeu/testfleet/internal/target"
	"github.com/yoanbernabeu/testfleet/internal/testcase"
)

func TestParseHostSpec(t *testing.T) {
	tests := []struct {
		spec    string
		user    string
		host    string
		wantErr bool
	}{
		{"root@10.0.0.5", "root", "10.0.0.5", false},
		{"admin@box@lab", "admin", "box@lab", false},
		{"10.0.0.5", "", "", true},
		{"@host", "", "", true},
		{"user@", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			user, host, err := parseHostSpec(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.user, user)
			assert.Equal(t, tt.host, host)
		})
	}
}

func TestPromptSelect(t *testing.T) {
	options := []string{"id_ed25519 (ed25519)", "id_rsa (rsa)"}
	tests := []struct {
		input string
		want  int
	}{
		{"2\n", 1},
		{"1", 0},
		{"0\n", -1},
		{"\n", -1},
		{"3\n", -1},
		{"abc\n", -1},
		{"", -1},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got := promptSelect(strings.NewReader(tt.input), &out, "Select SSH key:", options)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Contains(t, out.String(), "[2] id_rsa (rsa)")
	}

	assert.Equal(t, -1, promptSelect(strings.NewReader("1\n"), &bytes.Buffer{}, "empty", nil))
}

func TestFilterOverride(t *testing.T) {
	defer func() { runName, runArea, runCategory = "", "", "" }()

	assert.Nil(t, filterOverride())

	runArea = "time"
	runName = "ntp"
	f := filterOverride()
	require.IsType(t, map[string]any{}, f["criteria"])
	crit := f["criteria"].(map[string]any)
	assert.Equal(t, "time", crit["area"])
	assert.Equal(t, "ntp", crit["name"])
	assert.NotContains(t, crit, "category")

	parsed, err := testcase.NewFilterRegistry().Parse(f)
	require.NoError(t, err)
	assert.Equal(t, "time", parsed.(*testcase.CriteriaFilter).Criteria.Area)
}

func TestNewRunbook(t *testing.T) {
	rb := newRunbook("nightly", []string{"lab"}, "debian:12")

	assert.Equal(t, "nightly", rb.Name)
	require.Len(t, rb.TestCase, 1)
	assert.Equal(t, testcase.DefaultFilter(), rb.TestCase[0])
	require.Len(t, rb.Targets, 2)
	assert.Equal(t, "SSH", rb.Targets[0]["platform"])
	assert.Equal(t, "debian:12", rb.Targets[1]["image"])
	assert.Equal(t, notify.FileSink, rb.Notifiers[1].Type)

	reg := target.NewRegistry()
	require.NoError(t, platforms.RegisterAll(reg))
	errs := config.ValidateRunbook(rb, reg, config.DefaultUserConfig())
	assert.False(t, errs.HasErrors(), "%v", errs)
}

func TestSanitizeRunbookName(t *testing.T) {
	assert.Equal(t, "my-project", sanitizeRunbookName("My Project"))
	assert.Equal(t, "suite_2.0", sanitizeRunbookName("suite_2.0"))
	assert.Equal(t, "testfleet", sanitizeRunbookName("@@@"))
	assert.Equal(t, "x", sanitizeRunbookName("..x"))
}

func TestRunLogs(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"20240101-000000-aaaa", "20240102-000000-bbbb/script_runner", "20240102-000000-bbbb/custom_runner"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0755))
	}
	latest := filepath.Join(root, "20240102-000000-bbbb")
	require.NoError(t, os.WriteFile(filepath.Join(latest, "script_runner", "script_runner.log"), []byte("script log"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(latest, "custom_runner", "custom_runner.log"), []byte("custom log"), 0644))

	runs, err := listRuns(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"20240101-000000-aaaa", "20240102-000000-bbbb"}, runs)

	files, err := runnerLogs(latest, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	files, err = runnerLogs(latest, "script")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(latest, "script_runner", "script_runner.log")}, files)

	files, err = runnerLogs(filepath.Join(root, "20240101-000000-aaaa"), "")
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = runnerLogs(filepath.Join(root, "missing"), "")
	assert.Error(t, err)

	runs, err = listRuns(filepath.Join(root, "nothing-here"))
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestExitError(t *testing.T) {
	inner := errors.New("boom")
	err := &ExitError{Code: 3, Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, "exit code 7", (&ExitError{Code: 7}).Error())
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range RootCommand().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "cases", "targets", "host", "exec", "shell", "logs", "init"} {
		assert.True(t, names[want], "missing command %s", want)
	}
	for _, flag := range []string{"config", "verbose", "log-format", "keep-targets", "run-root", "metrics-file"} {
		assert.NotNil(t, RootCommand().PersistentFlags().Lookup(flag), "missing flag %s", flag)
	}
}
