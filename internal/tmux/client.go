package tmux

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/vaughanknight/trex-sub003/internal/terminal"
)

var (
	ErrUnavailable     = errors.New("tmux is not available")
	ErrNoServer        = errors.New("no tmux server running")
	ErrSessionNotFound = errors.New("tmux session not found")
)

// Config selects the tmux binary and server.
type Config struct {
	Binary string
	// Socket is a -L socket name, or a -S path when it contains a slash.
	Socket         string
	CommandTimeout time.Duration
	EnvPrefix      string
	Term           string
}

// Client runs tmux subcommands against one server.
type Client struct {
	cfg      Config
	runner   Runner
	env      []string
	lookPath func(string) (string, error)
}

// NewClient creates a client using local subprocesses. Every tmux command
// runs with the host's TMUX variables removed so queries and attachments
// see the same server.
func NewClient(cfg Config) *Client {
	if cfg.Binary == "" {
		cfg.Binary = "tmux"
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 2 * time.Second
	}
	if cfg.EnvPrefix == "" {
		cfg.EnvPrefix = DefaultEnvPrefix
	}

	env := StripEnv(os.Environ(), cfg.EnvPrefix)
	return &Client{
		cfg:      cfg,
		runner:   OSRunner{Env: env},
		env:      env,
		lookPath: exec.LookPath,
	}
}

// NewClientWithRunner creates a client with a custom runner, for tests.
func NewClientWithRunner(cfg Config, runner Runner) *Client {
	c := NewClient(cfg)
	c.runner = runner
	c.lookPath = func(string) (string, error) { return cfg.Binary, nil }
	return c
}

// Available reports whether the tmux binary can be found.
func (c *Client) Available() bool {
	_, err := c.lookPath(c.cfg.Binary)
	return err == nil
}

func (c *Client) baseArgs() []string {
	switch {
	case c.cfg.Socket == "":
		return nil
	case strings.Contains(c.cfg.Socket, "/"):
		return []string{"-S", c.cfg.Socket}
	default:
		return []string{"-L", c.cfg.Socket}
	}
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
	defer cancel()

	out, err := c.runner.Run(ctx, c.cfg.Binary, append(c.baseArgs(), args...)...)
	if err != nil {
		return "", classify(err)
	}
	return string(out), nil
}

// classify maps tmux stderr onto sentinel errors.
func classify(err error) error {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return err
	}
	switch stderr := cmdErr.Stderr; {
	case strings.Contains(stderr, "no server running"),
		strings.Contains(stderr, "error connecting to"),
		strings.Contains(stderr, "server exited unexpectedly"):
		return errors.Join(ErrNoServer, err)
	case strings.Contains(stderr, "can't find session"),
		strings.Contains(stderr, "session not found"):
		return errors.Join(ErrSessionNotFound, err)
	}
	return err
}

// ListSessions returns the server's sessions sorted by name. A server that
// is not running has no sessions.
func (c *Client) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	out, err := c.run(ctx, "list-sessions", "-F", sessionFormat)
	if err != nil {
		if errors.Is(err, ErrNoServer) {
			return []SessionRecord{}, nil
		}
		return nil, err
	}
	records, err := parseSessions(out)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []SessionRecord{}
	}
	return records, nil
}

// ListClients maps each attached client's tty to its tmux session.
func (c *Client) ListClients(ctx context.Context) (map[string]string, error) {
	out, err := c.run(ctx, "list-clients", "-F", clientFormat)
	if err != nil {
		if errors.Is(err, ErrNoServer) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return parseClients(out)
}

// HasSession checks for an exact session name. It returns nil,
// ErrSessionNotFound, or the underlying failure.
func (c *Client) HasSession(ctx context.Context, name string) error {
	_, err := c.run(ctx, "has-session", "-t", "="+name)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNoServer) {
		return errors.Join(ErrSessionNotFound, err)
	}
	return err
}

// AttachCommand builds the process that attaches a fresh terminal to the
// named session, optionally selecting a window.
func (c *Client) AttachCommand(name string, window *int) terminal.Command {
	target := "=" + name
	if window != nil {
		target += ":" + strconv.Itoa(*window)
	}

	args := append(c.baseArgs(), "attach-session", "-t", target)
	return terminal.Command{
		Path: c.cfg.Binary,
		Args: args,
		Env:  terminal.SetEnv(c.env, "TERM", termOrDefault(c.cfg.Term)),
	}
}

func termOrDefault(term string) string {
	if term == "" {
		return "xterm-256color"
	}
	return term
}
