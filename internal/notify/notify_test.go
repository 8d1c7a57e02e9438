package notify

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleMessage() Message {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return Message{
		RunID:    "20240501-100000-abcd",
		Status:   StatusFailure,
		Failed:   2,
		ExitCode: 2,
		Started:  start,
		Finished: start.Add(1500 * time.Millisecond),
		Runners:  []RunnerSummary{{Type: "local", Failed: 2}, {Type: "script"}},
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusSuccess, StatusFor(0))
	assert.Equal(t, StatusFailure, StatusFor(3))
	assert.Equal(t, "FAILURE", StatusFailure.String())
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Console{Out: &buf}).Notify(context.Background(), sampleMessage()))
	assert.Equal(t, "run 20240501-100000-abcd finished: FAILURE (2 failed, exit code 2, took 1.5s)\n", buf.String())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "run.yaml")
	require.NoError(t, (&File{Path: path}).Notify(context.Background(), sampleMessage()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, "FAILURE", decoded["status"])
	assert.Equal(t, 2, decoded["exit_code"])
	assert.Len(t, decoded["runners"], 2)
}

func TestBuild(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()

	n, err := Build(nil, &buf, dir)
	require.NoError(t, err)
	require.Len(t, n, 1)
	assert.IsType(t, &Console{}, n[0])

	n, err = Build([]Spec{{Type: "console"}, {Type: "file", Path: "run.yaml"}}, &buf, dir)
	require.NoError(t, err)
	require.Len(t, n, 2)
	assert.Equal(t, filepath.Join(dir, "run.yaml"), n[1].(*File).Path)

	_, err = Build([]Spec{{Type: "slack"}}, &buf, dir)
	assert.ErrorContains(t, err, "unknown notifier type")
	_, err = Build([]Spec{{Type: "file"}}, &buf, dir)
	assert.ErrorContains(t, err, "requires a path")
}

type failing struct{}

func (failing) Notify(context.Context, Message) error { return errors.New("sink down") }

func TestMulti_JoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	err := Multi{failing{}, &Console{Out: &buf}}.Notify(context.Background(), sampleMessage())
	assert.ErrorContains(t, err, "sink down")
	assert.NotEmpty(t, buf.String(), "later sinks still notified")
}
