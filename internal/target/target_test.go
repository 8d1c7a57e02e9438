package target_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoanbernabeu/testfleet/internal/target"
	"github.com/yoanbernabeu/testfleet/internal/target/targettest"
	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

func newSpec() target.Spec {
	return target.Spec{Name: "vm", Platform: "Fake", Params: target.Params{"image": "ubuntu"}}
}

func TestNew_FreshIdentity(t *testing.T) {
	p := &targettest.FakePlatform{}
	a := target.New(newSpec(), p, nil)
	b := target.New(newSpec(), p, nil)

	assert.True(t, strings.HasPrefix(a.ID, "testfleet-"))
	assert.NotEqual(t, a.ID, b.ID)
}

func TestFeatures_GrowOnly(t *testing.T) {
	tg := target.New(newSpec(), &targettest.FakePlatform{}, []string{"ntp"})
	assert.True(t, tg.HasFeatures([]string{"ntp"}))
	assert.True(t, tg.HasFeatures(nil))
	assert.False(t, tg.HasFeatures([]string{"ntp", "gpu"}))

	tg.AddFeatures("gpu", "ntp")
	assert.Equal(t, []string{"gpu", "ntp"}, tg.Features())
}

func TestMatches(t *testing.T) {
	tg := target.New(newSpec(), &targettest.FakePlatform{}, []string{"a", "b"})

	tests := []struct {
		name     string
		platform string
		params   target.Params
		features []string
		want     bool
	}{
		{"exact", "Fake", target.Params{"image": "ubuntu"}, []string{"a", "b"}, true},
		{"subset", "Fake", target.Params{"image": "ubuntu"}, []string{"a"}, true},
		{"no features", "Fake", target.Params{"image": "ubuntu"}, nil, true},
		{"superset", "Fake", target.Params{"image": "ubuntu"}, []string{"a", "c"}, false},
		{"other platform", "SSH", target.Params{"image": "ubuntu"}, nil, false},
		{"other params", "Fake", target.Params{"image": "debian"}, nil, false},
		{"extra param", "Fake", target.Params{"image": "ubuntu", "cpus": 2}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tg.Matches(tt.platform, tt.params, tt.features))
		})
	}
}

func TestDeployOpenRunClose(t *testing.T) {
	p := &targettest.FakePlatform{}
	tg := target.New(newSpec(), p, nil)
	ctx := context.Background()

	_, err := tg.Run(ctx, "true", target.RunOptions{})
	assert.ErrorIs(t, err, target.ErrNotConnected)
	assert.Error(t, tg.Open(ctx), "open before deploy")

	require.NoError(t, tg.Deploy(ctx))
	require.NoError(t, tg.Open(ctx))
	require.NoError(t, tg.Open(ctx), "open is idempotent")
	assert.Len(t, p.Connections(), 1)

	res, err := tg.Run(ctx, "uname -a", target.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	require.NoError(t, tg.CloseConnection())
	assert.False(t, tg.Connected())
	assert.True(t, p.Connections()[0].Closed())

	require.NoError(t, tg.Delete(ctx))
	assert.Equal(t, 1, p.DeleteCount(tg.Handle().ID))
	require.NoError(t, tg.Delete(ctx), "second delete is a no-op")
	assert.Equal(t, 1, p.TotalDeletes())
}

func TestDelete_CloseErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logging.InitForCLI(logging.LevelDebug, &buf, logging.FormatText)
	defer logging.InitForCLI(logging.LevelInfo, io.Discard, logging.FormatText)

	p := &targettest.FakePlatform{CloseErr: errors.New("connection reset")}
	tg := target.New(newSpec(), p, nil)
	ctx := context.Background()
	require.NoError(t, tg.Deploy(ctx))
	require.NoError(t, tg.Open(ctx))

	require.NoError(t, tg.Delete(ctx))
	assert.Equal(t, 1, p.DeleteCount(tg.Handle().ID))
	assert.False(t, tg.Connected())
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "closing connection before delete")
	assert.Contains(t, buf.String(), "connection reset")
}

func TestDeploy_ProvisioningError(t *testing.T) {
	boom := errors.New("quota exceeded")
	p := &targettest.FakePlatform{
		DeployFunc: func(context.Context, target.Params) (target.Handle, error) { return target.Handle{}, boom },
	}
	tg := target.New(newSpec(), p, nil)

	err := tg.Deploy(context.Background())
	require.Error(t, err)
	assert.True(t, target.IsProvisioningError(err))
	assert.ErrorIs(t, err, boom)

	var provErr *target.ProvisioningError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, tg.ID, provErr.TargetID)
	assert.Equal(t, "Fake", provErr.Platform)
}

func TestRun_SudoDetection(t *testing.T) {
	tests := []struct {
		name     string
		uid      string
		hasSudo  bool
		wantErr  bool
		wantSudo bool
	}{
		{"root runs without sudo", "0", false, false, false},
		{"user with sudo", "1000", true, false, true},
		{"user without sudo", "1000", false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotOpts target.RunOptions
			p := &targettest.FakePlatform{
				RunFunc: func(_ context.Context, cmd string, opts target.RunOptions) (*target.ExecResult, error) {
					switch cmd {
					case "id -u":
						return &target.ExecResult{Stdout: tt.uid + "\n"}, nil
					case "command -v sudo":
						if tt.hasSudo {
							return &target.ExecResult{Stdout: "/usr/bin/sudo\n"}, nil
						}
						return &target.ExecResult{ExitCode: 1}, nil
					}
					gotOpts = opts
					return &target.ExecResult{}, nil
				},
			}
			tg := target.New(newSpec(), p, nil)
			ctx := context.Background()
			require.NoError(t, tg.Deploy(ctx))
			require.NoError(t, tg.Open(ctx))

			_, err := tg.Run(ctx, "hwclock --systohc", target.RunOptions{Sudo: true})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSudo, gotOpts.Sudo)

			// detection is cached per target
			_, _ = tg.Run(ctx, "true", target.RunOptions{Sudo: true})
			probes := 0
			for _, c := range p.Connections()[0].Commands() {
				if c == "id -u" {
					probes++
				}
			}
			assert.Equal(t, 1, probes)
		})
	}
}

func TestUploadContent(t *testing.T) {
	p := &targettest.FakePlatform{}
	tg := target.New(newSpec(), p, nil)
	ctx := context.Background()
	require.NoError(t, tg.Deploy(ctx))
	require.NoError(t, tg.Open(ctx))

	require.NoError(t, tg.UploadContent(ctx, []byte("echo $(id)\n"), "/tmp/testfleet/x/run.sh", 0o755))
	cmds := p.Connections()[0].Commands()
	require.Len(t, cmds, 1)
	assert.Contains(t, cmds[0], "base64 -d > '/tmp/testfleet/x/run.sh'")
	assert.Contains(t, cmds[0], "chmod 755")
	assert.NotContains(t, cmds[0], "$(id)")

	assert.Error(t, tg.UploadContent(ctx, nil, "relative/path", 0o644))
}

func TestWorkingPath(t *testing.T) {
	p := &targettest.FakePlatform{}
	tg := target.New(newSpec(), p, nil)
	ctx := context.Background()
	require.NoError(t, tg.Deploy(ctx))
	require.NoError(t, tg.Open(ctx))

	dir, err := tg.WorkingPath(ctx, "/tmp/testfleet")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/testfleet/"+tg.ID, dir)
}
