// Package terminaltest provides an in-memory terminal.Terminal for tests
// that must not depend on a real PTY.
package terminaltest

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"syscall"

	"github.com/vaughanknight/trex-sub003/internal/terminal"
)

// Fake is a scripted terminal. Output is pushed with Emit and the process
// "exits" with Exit or when signalled.
type Fake struct {
	path string
	outR *io.PipeReader
	outW *io.PipeWriter

	mu       sync.Mutex
	input    bytes.Buffer
	written  chan struct{}
	started  bool
	command  terminal.Command
	sizes    []terminal.Size
	signals  []Signal
	closed   bool
	code     int
	startErr error

	// IgnoreSignals keeps the process alive when signalled, forcing the
	// caller through its escalation path until SIGKILL.
	IgnoreSignals bool

	done     chan struct{}
	exitOnce sync.Once
}

// Signal records one delivered signal.
type Signal struct {
	Sig   syscall.Signal
	Group bool
}

var _ terminal.Terminal = (*Fake)(nil)

func New(path string) *Fake {
	r, w := io.Pipe()
	return &Fake{
		path:    path,
		outR:    r,
		outW:    w,
		written: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (f *Fake) DevicePath() string { return f.path }

func (f *Fake) Read(b []byte) (int, error) {
	return f.outR.Read(b)
}

func (f *Fake) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, terminal.ErrClosed
	}
	f.input.Write(b)
	select {
	case f.written <- struct{}{}:
	default:
	}
	return len(b), nil
}

// FailStart makes the next Start return err.
func (f *Fake) FailStart(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
}

func (f *Fake) Start(cmd terminal.Command, size terminal.Size) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return terminal.ErrClosed
	}
	if f.started {
		return terminal.ErrAlreadyStarted
	}
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	f.command = cmd
	f.sizes = append(f.sizes, size)
	return nil
}

func (f *Fake) Resize(size terminal.Size) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return terminal.ErrClosed
	}
	f.sizes = append(f.sizes, size)
	return nil
}

func (f *Fake) Pid() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return 0
	}
	return 4242
}

func (f *Fake) Done() <-chan struct{} { return f.done }

func (f *Fake) ExitCode() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code
}

func (f *Fake) Signal(sig syscall.Signal, group bool) error {
	f.mu.Lock()
	f.signals = append(f.signals, Signal{Sig: sig, Group: group})
	ignore := f.IgnoreSignals && sig != syscall.SIGKILL
	f.mu.Unlock()

	if !ignore {
		f.Exit(128 + int(sig))
	}
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return f.outW.Close()
}

// Emit makes data readable from the master side. It blocks until read.
func (f *Fake) Emit(data []byte) error {
	_, err := f.outW.Write(data)
	return err
}

// Exit ends the fake process with code and hangs up the output stream.
func (f *Fake) Exit(code int) {
	f.exitOnce.Do(func() {
		f.mu.Lock()
		f.code = code
		f.mu.Unlock()
		_ = f.outW.Close()
		close(f.done)
	})
}

// Fail breaks the output stream with err.
func (f *Fake) Fail(err error) {
	_ = f.outW.CloseWithError(err)
}

func (f *Fake) Input() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input.String()
}

// Written is signalled after each Write.
func (f *Fake) Written() <-chan struct{} { return f.written }

func (f *Fake) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *Fake) Command() terminal.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.command
}

func (f *Fake) Sizes() []terminal.Size {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]terminal.Size(nil), f.sizes...)
}

func (f *Fake) Signals() []Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Signal(nil), f.signals...)
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Factory hands out a new Fake per Open call.
type Factory struct {
	mu    sync.Mutex
	terms []*Fake
	// OpenErr, when set, fails every Open.
	OpenErr error
	// StartErr is installed on every new Fake.
	StartErr error
}

func (f *Factory) Open() (terminal.Terminal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	t := New(fmt.Sprintf("/dev/pts/%d", len(f.terms)))
	if f.StartErr != nil {
		t.FailStart(f.StartErr)
	}
	f.terms = append(f.terms, t)
	return t, nil
}

// Terms returns every Fake opened so far.
func (f *Factory) Terms() []*Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Fake(nil), f.terms...)
}

// Last returns the most recently opened Fake, or nil.
func (f *Factory) Last() *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.terms) == 0 {
		return nil
	}
	return f.terms[len(f.terms)-1]
}
