package tmux

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []runnerCall
	results []runnerResult
}

type runnerCall struct {
	name string
	args []string
}

type runnerResult struct {
	out string
	err error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runnerCall{name: name, args: append([]string(nil), args...)})
	if len(f.results) == 0 {
		return nil, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return []byte(r.out), r.err
}

func stderrErr(args []string, stderr string) error {
	return &CommandError{Args: args, Stderr: stderr, Err: errors.New("exit status 1")}
}

func TestListSessionsParsesFormat(t *testing.T) {
	r := &fakeRunner{results: []runnerResult{{
		out: "work\x1f3\x1f1\nalpha\x1f1\x1f0\n\n",
	}}}
	c := NewClientWithRunner(Config{Binary: "tmux"}, r)

	sessions, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []SessionRecord{
		{Name: "alpha", Windows: 1, Attached: 0},
		{Name: "work", Windows: 3, Attached: 1},
	}, sessions)

	require.Len(t, r.calls, 1)
	assert.Equal(t, "tmux", r.calls[0].name)
	assert.Equal(t, []string{"list-sessions", "-F", "#{session_name}\x1f#{session_windows}\x1f#{session_attached}"}, r.calls[0].args)
}

func TestListSessionsNoServerIsEmpty(t *testing.T) {
	r := &fakeRunner{results: []runnerResult{{
		err: stderrErr([]string{"list-sessions"}, "no server running on /tmp/tmux-1000/default"),
	}}}
	c := NewClientWithRunner(Config{}, r)

	sessions, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, sessions)
	assert.Empty(t, sessions)
}

func TestListSessionsRejectsGarbage(t *testing.T) {
	r := &fakeRunner{results: []runnerResult{{out: "work\x1fmany\x1f0\n"}}}
	c := NewClientWithRunner(Config{}, r)

	_, err := c.ListSessions(context.Background())
	assert.Error(t, err)
}

func TestListSessionsOtherFailure(t *testing.T) {
	r := &fakeRunner{results: []runnerResult{{err: errors.New("signal: killed")}}}
	c := NewClientWithRunner(Config{}, r)

	_, err := c.ListSessions(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoServer)
}

func TestListClients(t *testing.T) {
	r := &fakeRunner{results: []runnerResult{{
		out: "/dev/pts/3\x1fwork\n/dev/pts/7\x1fdev\n",
	}}}
	c := NewClientWithRunner(Config{}, r)

	clients, err := c.ListClients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"/dev/pts/3": "work", "/dev/pts/7": "dev"}, clients)
}

func TestSocketSelection(t *testing.T) {
	tests := []struct {
		socket string
		want   []string
	}{
		{"", nil},
		{"trex", []string{"-L", "trex"}},
		{"/run/user/1000/tmux.sock", []string{"-S", "/run/user/1000/tmux.sock"}},
	}
	for _, tt := range tests {
		c := NewClientWithRunner(Config{Socket: tt.socket}, &fakeRunner{})
		assert.Equal(t, tt.want, c.baseArgs(), "socket %q", tt.socket)
	}
}

func TestHasSessionUsesExactMatch(t *testing.T) {
	r := &fakeRunner{results: []runnerResult{{}}}
	c := NewClientWithRunner(Config{Socket: "trex"}, r)

	require.NoError(t, c.HasSession(context.Background(), "work"))
	assert.Equal(t, []string{"-L", "trex", "has-session", "-t", "=work"}, r.calls[0].args)
}

func TestHasSessionNotFound(t *testing.T) {
	for _, stderr := range []string{"can't find session: work", "no server running on /tmp/tmux-0/default"} {
		r := &fakeRunner{results: []runnerResult{{err: stderrErr([]string{"has-session"}, stderr)}}}
		c := NewClientWithRunner(Config{}, r)

		assert.ErrorIs(t, c.HasSession(context.Background(), "work"), ErrSessionNotFound, stderr)
	}
}

func TestCommandTimeoutIsApplied(t *testing.T) {
	var deadline time.Time
	r := runnerFunc(func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		deadline, _ = ctx.Deadline()
		return nil, nil
	})
	c := NewClientWithRunner(Config{CommandTimeout: 500 * time.Millisecond}, r)

	start := time.Now()
	_, err := c.ListClients(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, start.Add(500*time.Millisecond), deadline, 200*time.Millisecond)
}

type runnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func (f runnerFunc) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}

func TestAttachCommand(t *testing.T) {
	c := NewClientWithRunner(Config{Binary: "/usr/bin/tmux", Socket: "trex", Term: "screen-256color"}, &fakeRunner{})

	cmd := c.AttachCommand("work", nil)
	assert.Equal(t, "/usr/bin/tmux", cmd.Path)
	assert.Equal(t, []string{"-L", "trex", "attach-session", "-t", "=work"}, cmd.Args)
	assert.Contains(t, cmd.Env, "TERM=screen-256color")
	for _, kv := range cmd.Env {
		assert.False(t, strings.HasPrefix(kv, "TMUX"), "leaked %s", kv)
	}

	window := 2
	cmd = c.AttachCommand("work", &window)
	assert.Equal(t, []string{"-L", "trex", "attach-session", "-t", "=work:2"}, cmd.Args)
}

func TestOSRunnerCapturesStderr(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not found")
	}

	_, err = OSRunner{}.Run(context.Background(), sh, "-c", "echo 'no server running' >&2; exit 1")
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "no server running", cmdErr.Stderr)
	assert.ErrorIs(t, classify(err), ErrNoServer)
}

func TestOSRunnerUsesEnv(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not found")
	}

	out, err := OSRunner{Env: []string{"ONLY=this"}}.Run(context.Background(), sh, "-c", "echo $ONLY $TMUX")
	require.NoError(t, err)
	assert.Equal(t, "this", strings.TrimSpace(string(out)))
}

func TestPrepareAttach(t *testing.T) {
	r := &fakeRunner{results: []runnerResult{{}}}
	a := NewAttacher(NewClientWithRunner(Config{}, r), zaptest.NewLogger(t))

	cmd, err := a.Prepare(context.Background(), AttachRequest{SessionName: "work"})
	require.NoError(t, err)
	assert.Equal(t, []string{"attach-session", "-t", "=work"}, cmd.Args)
}

func TestPrepareRejectsInvalidNames(t *testing.T) {
	a := NewAttacher(NewClientWithRunner(Config{}, &fakeRunner{}), zaptest.NewLogger(t))

	for _, name := range []string{"", "a.b", "a:b", "a b", "$(rm -rf)", "x;y", strings.Repeat("a", 129)} {
		_, err := a.Prepare(context.Background(), AttachRequest{SessionName: name})
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}

	negative := -1
	_, err := a.Prepare(context.Background(), AttachRequest{SessionName: "work", WindowIndex: &negative})
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestPrepareUnavailable(t *testing.T) {
	c := NewClientWithRunner(Config{}, &fakeRunner{})
	c.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	a := NewAttacher(c, zaptest.NewLogger(t))

	_, err := a.Prepare(context.Background(), AttachRequest{SessionName: "work"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPrepareMissingSession(t *testing.T) {
	r := &fakeRunner{results: []runnerResult{{err: stderrErr([]string{"has-session"}, "can't find session: ghost")}}}
	a := NewAttacher(NewClientWithRunner(Config{}, r), zaptest.NewLogger(t))

	_, err := a.Prepare(context.Background(), AttachRequest{SessionName: "ghost"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPrepareToleratesCheckFailure(t *testing.T) {
	r := &fakeRunner{results: []runnerResult{{err: context.DeadlineExceeded}}}
	a := NewAttacher(NewClientWithRunner(Config{}, r), zaptest.NewLogger(t))

	cmd, err := a.Prepare(context.Background(), AttachRequest{SessionName: "work"})
	require.NoError(t, err)
	assert.Equal(t, []string{"attach-session", "-t", "=work"}, cmd.Args)
}

func TestPrepareSameSessionTwice(t *testing.T) {
	r := &fakeRunner{results: []runnerResult{{}, {}}}
	a := NewAttacher(NewClientWithRunner(Config{}, r), zaptest.NewLogger(t))

	first, err := a.Prepare(context.Background(), AttachRequest{SessionName: "work"})
	require.NoError(t, err)
	second, err := a.Prepare(context.Background(), AttachRequest{SessionName: "work"})
	require.NoError(t, err)
	assert.Equal(t, first.Args, second.Args)
}

func TestPrepareSkipsCheckWhileTmuxKeepsFailing(t *testing.T) {
	timeout := runnerResult{err: context.DeadlineExceeded}
	r := &fakeRunner{results: []runnerResult{timeout, timeout, timeout}}
	a := NewAttacher(NewClientWithRunner(Config{}, r), zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		_, err := a.Prepare(context.Background(), AttachRequest{SessionName: "work"})
		require.NoError(t, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Len(t, r.calls, 3, "checks stop once the circuit opens")
}

func TestPrepareMissingSessionDoesNotTripCircuit(t *testing.T) {
	missing := runnerResult{err: stderrErr(nil, "can't find session: ghost")}
	r := &fakeRunner{results: []runnerResult{missing, missing, missing, missing}}
	a := NewAttacher(NewClientWithRunner(Config{}, r), zaptest.NewLogger(t))

	for i := 0; i < 4; i++ {
		_, err := a.Prepare(context.Background(), AttachRequest{SessionName: "ghost"})
		require.ErrorIs(t, err, ErrSessionNotFound)
	}
}
