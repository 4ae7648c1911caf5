package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vaughanknight/trex-sub003/internal/domain/bridge"
	"github.com/vaughanknight/trex-sub003/internal/shared/id"
	"github.com/vaughanknight/trex-sub003/internal/terminal"
)

// Session is one terminal plus the process spawned on it
type Session struct {
	ID        id.SessionID
	Kind      Kind
	CreatedAt time.Time

	term   terminal.Terminal
	launch Launch
	bridge *bridge.Bridge
	onExit func(Exit)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.RWMutex
	state      State         // Protected by mu
	closing    bool          // Protected by mu
	size       terminal.Size // Protected by mu
	pid        int           // Protected by mu
	reason     Reason        // Protected by mu
	annotation string        // Protected by mu
	exit       Exit          // Protected by mu
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Size returns the last applied window size
func (s *Session) Size() terminal.Size {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Pid returns the spawned process id, or 0 while pending
func (s *Session) Pid() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pid
}

// Binding returns the tmux target for attachment sessions
func (s *Session) Binding() *TmuxBinding {
	return s.launch.Binding
}

// Cwd returns the working directory the process was launched in
func (s *Session) Cwd() string {
	return s.launch.Command.Dir
}

func (s *Session) DevicePath() string {
	return s.term.DevicePath()
}

// Annotation returns the external tmux session this terminal was last
// seen attached to
func (s *Session) Annotation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.annotation
}

// Input forwards keystrokes to the terminal
func (s *Session) Input(data []byte) error {
	if err := s.bridge.Input(data); err != nil {
		return ErrClosed
	}
	return nil
}

// Done is closed once teardown has finished
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Exit returns the final outcome. It is only meaningful after Done.
func (s *Session) Exit() Exit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exit
}

// Info returns a snapshot for listings
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:           s.ID,
		Kind:         s.Kind,
		State:        s.state.String(),
		Rows:         s.size.Rows,
		Cols:         s.size.Cols,
		Cwd:          s.launch.Command.Dir,
		Pid:          s.pid,
		DevicePath:   s.term.DevicePath(),
		Tmux:         s.launch.Binding,
		AttachedTmux: s.annotation,
		CreatedAt:    s.CreatedAt,
	}
}

// end records why the session is going away and starts teardown. The first
// recorded reason wins.
func (s *Session) end(reason Reason) {
	s.mu.Lock()
	if s.reason == "" {
		s.reason = reason
	}
	s.mu.Unlock()
	s.cancel()
}

func (s *Session) bridgeEnded(err error) {
	if terminal.IsEndOfStream(err) {
		s.end(ReasonExited)
		return
	}
	s.end(ReasonIOError)
}

// resize spawns the process on the first call and resizes afterwards.
func (s *Session) resize(size terminal.Size, grace time.Duration) error {
	if !size.Valid() {
		return terminal.ErrInvalidSize
	}

	s.mu.Lock()
	if s.closing || s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}

	if s.state == StateRunning {
		err := s.term.Resize(size)
		if err == nil {
			s.size = size
		}
		s.mu.Unlock()
		if errors.Is(err, terminal.ErrClosed) {
			return ErrClosed
		}
		return err
	}

	if err := s.term.Start(s.launch.Command, size); err != nil {
		s.mu.Unlock()
		s.end(ReasonSpawnFailed)
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	s.state = StateRunning
	s.size = size
	s.pid = s.term.Pid()
	s.mu.Unlock()

	go s.watchProcess(grace)
	return nil
}

// watchProcess covers a process that exits while something else keeps the
// slave open, so the output pump never sees end of stream.
func (s *Session) watchProcess(grace time.Duration) {
	select {
	case <-s.term.Done():
	case <-s.ctx.Done():
		return
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-s.bridge.OutputDone():
	case <-timer.C:
	case <-s.ctx.Done():
		return
	}
	s.end(ReasonExited)
}

// beginTeardown marks the session closing and reports whether a process was
// started, plus the recorded reason.
func (s *Session) beginTeardown() (bool, Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	if s.reason == "" {
		s.reason = ReasonDisconnected
	}
	return s.state == StateRunning, s.reason
}

func (s *Session) finish(exit Exit) {
	s.mu.Lock()
	s.state = StateClosed
	s.exit = exit
	s.mu.Unlock()
}
