package terminal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// PTY is the creack/pty backed Terminal.
type PTY struct {
	ptmx *os.File
	path string

	mu     sync.Mutex
	tty    *os.File // nil once handed to the child
	cmd    *exec.Cmd
	closed bool
	done   chan struct{}
	code   int

	closeOnce sync.Once
	closeErr  error
}

var _ Terminal = (*PTY)(nil)

// Open allocates a pending PTY pair. No process is spawned.
func Open() (*PTY, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open pty: %w", err)
	}
	return &PTY{
		ptmx: ptmx,
		tty:  tty,
		path: tty.Name(),
		done: make(chan struct{}),
	}, nil
}

// OpenTerminal adapts Open to an Opener.
func OpenTerminal() (Terminal, error) {
	return Open()
}

func (p *PTY) DevicePath() string { return p.path }

func (p *PTY) Read(b []byte) (int, error) {
	return p.ptmx.Read(b)
}

func (p *PTY) Write(b []byte) (int, error) {
	return p.ptmx.Write(b)
}

// Start sets the initial window size and spawns cmd as a session leader
// with the slave as its controlling terminal.
func (p *PTY) Start(c Command, size Size) error {
	if !size.Valid() {
		return ErrInvalidSize
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.cmd != nil {
		return ErrAlreadyStarted
	}

	if err := pty.Setsize(p.ptmx, winsize(size)); err != nil {
		return fmt.Errorf("failed to set pty size: %w", err)
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir
	cmd.Stdin = p.tty
	cmd.Stdout = p.tty
	cmd.Stderr = p.tty
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", c.Path, err)
	}
	p.cmd = cmd

	// The child holds its own copy; EOF on the master now follows the child.
	_ = p.tty.Close()
	p.tty = nil

	go p.reap()
	return nil
}

func (p *PTY) reap() {
	err := p.cmd.Wait()

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitCode(exitErr)
		} else {
			code = -1
		}
	}

	p.mu.Lock()
	p.code = code
	p.mu.Unlock()
	close(p.done)
}

// exitCode follows the shell convention of 128+signal for signalled exits.
func exitCode(err *exec.ExitError) int {
	if ws, ok := err.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return err.ExitCode()
}

// Resize applies a new window size. It works on a pending pair too.
func (p *PTY) Resize(size Size) error {
	if !size.Valid() {
		return ErrInvalidSize
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	return pty.Setsize(p.ptmx, winsize(size))
}

// Size reads the current window size back from the device.
func (p *PTY) Size() (Size, error) {
	ws, err := pty.GetsizeFull(p.ptmx)
	if err != nil {
		return Size{}, err
	}
	return Size{Rows: ws.Rows, Cols: ws.Cols}, nil
}

func (p *PTY) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *PTY) Done() <-chan struct{} { return p.done }

// ExitCode is valid once Done is closed.
func (p *PTY) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

func (p *PTY) Signal(sig syscall.Signal, group bool) error {
	pid := p.Pid()
	if pid == 0 {
		return ErrNotStarted
	}

	select {
	case <-p.done:
		return nil
	default:
	}

	target := pid
	if group {
		// Setsid makes the child its own process group leader.
		target = -pid
	}
	if err := unix.Kill(target, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("failed to signal pid %d: %w", target, err)
	}
	return nil
}

// Close releases both sides of the pair. It does not signal the process.
func (p *PTY) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		tty := p.tty
		p.tty = nil
		p.mu.Unlock()

		if tty != nil {
			_ = tty.Close()
		}
		// Unblock a reader parked on the master before closing it.
		_ = p.ptmx.SetReadDeadline(time.Now())
		p.closeErr = p.ptmx.Close()
	})
	return p.closeErr
}

// Terminate signals t, waits up to grace for the process to exit and then
// escalates to SIGKILL. It returns once the process has been reaped. A
// terminal that never started is left alone.
func Terminate(t Terminal, sig syscall.Signal, group bool, grace time.Duration) error {
	if t.Pid() == 0 {
		return nil
	}
	if err := t.Signal(sig, group); err != nil {
		return err
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-t.Done():
		return nil
	case <-timer.C:
	}

	if err := t.Signal(syscall.SIGKILL, group); err != nil {
		return err
	}
	<-t.Done()
	return nil
}

func winsize(s Size) *pty.Winsize {
	return &pty.Winsize{Rows: s.Rows, Cols: s.Cols}
}
