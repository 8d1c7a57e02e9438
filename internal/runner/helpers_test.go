package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yoanbernabeu/testfleet/internal/config"
	"github.com/yoanbernabeu/testfleet/internal/notify"
	"github.com/yoanbernabeu/testfleet/internal/session"
	"github.com/yoanbernabeu/testfleet/internal/target"
	"github.com/yoanbernabeu/testfleet/internal/target/targettest"
	"github.com/yoanbernabeu/testfleet/internal/testcase"
	"github.com/yoanbernabeu/testfleet/pkg/logging"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.err
}

func (n *recordingNotifier) messages() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.msgs...)
}

type fixture struct {
	session  *session.Session
	platform *targettest.FakePlatform
	notifier *recordingNotifier
}

// newFixture builds a session over a fake platform. cases defaults to an
// empty registry.
func newFixture(t *testing.T, filters []testcase.RawFilter, cases *testcase.Registry) *fixture {
	t.Helper()
	fake := &targettest.FakePlatform{}
	reg := target.NewRegistry()
	require.NoError(t, reg.RegisterPlatform("Fake", fake))

	if cases == nil {
		cases = testcase.NewRegistry()
	}
	rb := config.DefaultRunbook()
	rb.TestCase = filters
	rb.Targets = []map[string]any{{"name": "box", "platform": "Fake"}}

	n := &recordingNotifier{}
	s, err := session.New(session.Options{
		Runbook:   rb,
		Platforms: reg,
		Cases:     cases,
		Notifier:  n,
		RunRoot:   t.TempDir(),
		Log:       logging.Discard(),
	})
	require.NoError(t, err)
	return &fixture{session: s, platform: fake, notifier: n}
}

// fakeRunner is a Runner whose outcome is set by the test
type fakeRunner struct {
	typ     string
	runbook *config.Runbook
	failed  int
	err     error
	panics  bool
	delay   time.Duration

	runs   atomic.Int32
	closes atomic.Int32
}

func (f *fakeRunner) Type() string { return f.typ }

func (f *fakeRunner) Run(ctx context.Context) error {
	f.runs.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panics {
		panic("runner exploded")
	}
	return f.err
}

func (f *fakeRunner) FailedCount() int { return f.failed }

func (f *fakeRunner) Results() []testcase.Result { return nil }

func (f *fakeRunner) Close() error {
	f.closes.Add(1)
	return nil
}

// fakeFactory registers fake runners and remembers every one it built
type fakeFactory struct {
	mu      sync.Mutex
	built   []*fakeRunner
	setup   map[string]func(*fakeRunner)
	failFor map[string]bool
}

func (ff *fakeFactory) registry(t *testing.T, types ...string) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, typ := range types {
		require.NoError(t, reg.Register(typ, ff.construct))
	}
	return reg
}

func (ff *fakeFactory) construct(runnerType string, rb *config.Runbook, _ *session.Session) (Runner, error) {
	if ff.failFor[runnerType] {
		return nil, errors.New("constructor refused")
	}
	r := &fakeRunner{typ: runnerType, runbook: rb}
	if fn := ff.setup[runnerType]; fn != nil {
		fn(r)
	}
	ff.mu.Lock()
	ff.built = append(ff.built, r)
	ff.mu.Unlock()
	return r, nil
}

func (ff *fakeFactory) runners() []*fakeRunner {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return append([]*fakeRunner(nil), ff.built...)
}

func caseRegistry(t *testing.T, cases ...*testcase.Case) *testcase.Registry {
	t.Helper()
	reg := testcase.NewRegistry()
	for _, c := range cases {
		require.NoError(t, reg.Register(c))
	}
	return reg
}

func passing(ctx context.Context, t *testcase.T) error { return nil }

func failing(ctx context.Context, t *testcase.T) error { return errors.New("assertion failed") }
