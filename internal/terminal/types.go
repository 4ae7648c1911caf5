package terminal

import (
	"errors"
	"io"
	"os"
	"syscall"
)

var (
	ErrAlreadyStarted = errors.New("process already started")
	ErrNotStarted     = errors.New("process not started")
	ErrClosed         = errors.New("terminal closed")
	ErrInvalidSize    = errors.New("invalid terminal size")
)

// Size is a window size in character cells
type Size struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// Valid reports whether both dimensions are non-zero
func (s Size) Valid() bool {
	return s.Rows > 0 && s.Cols > 0
}

// Command describes the process to run on the slave side
type Command struct {
	Path string
	Args []string // argv[1:]
	Env  []string
	Dir  string
}

// Terminal is a PTY pair plus the process started on it.
type Terminal interface {
	io.ReadWriter

	// DevicePath is the slave device path, e.g. /dev/pts/3.
	DevicePath() string

	// Start spawns cmd with the given initial size. It may be called once.
	Start(cmd Command, size Size) error
	Resize(size Size) error

	Pid() int
	// Done is closed once a started process has been reaped.
	Done() <-chan struct{}
	ExitCode() int

	// Signal delivers sig to the process, or to its whole process group
	// when group is set. Signalling an exited process is not an error.
	Signal(sig syscall.Signal, group bool) error

	Close() error
}

// Opener opens a fresh pending terminal.
type Opener func() (Terminal, error)

// IsEndOfStream reports whether a read error means the slave side has gone
// away rather than a genuine I/O failure. Linux reports a hung-up master
// with EIO instead of EOF.
func IsEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.EIO) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, ErrClosed)
}
