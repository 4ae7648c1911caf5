package session

import (
	"errors"
	"time"

	"github.com/vaughanknight/trex-sub003/internal/shared/id"
	"github.com/vaughanknight/trex-sub003/internal/terminal"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrClosed        = errors.New("session closed")
	ErrSpawnFailed   = errors.New("failed to spawn session process")
	ErrNotAttachment = errors.New("session is not a tmux attachment")
)

// State is the lifecycle position of a session
type State int32

const (
	StatePending State = iota
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Kind distinguishes plain shells from tmux attachments
type Kind string

const (
	KindShell Kind = "shell"
	KindTmux  Kind = "tmux"
)

// Reason records why a session ended
type Reason string

const (
	ReasonExited       Reason = "exited"
	ReasonIOError      Reason = "io_error"
	ReasonClosed       Reason = "closed"
	ReasonDetached     Reason = "detached"
	ReasonDisconnected Reason = "disconnected"
	ReasonSpawnFailed  Reason = "spawn_failed"
	ReasonShutdown     Reason = "shutdown"
)

// Notify reports whether the owner should be sent an exit message for this
// reason. Explicit closes and detaches are acknowledged by the session
// disappearing, not by an exit.
func (r Reason) Notify() bool {
	return r == ReasonExited || r == ReasonIOError
}

// TmuxBinding names the external tmux target of an attachment session
type TmuxBinding struct {
	SessionName string `json:"tmuxSessionName"`
	WindowIndex *int   `json:"tmuxWindowIndex,omitempty"`
}

// Launch describes the process a pending session spawns on first resize
type Launch struct {
	Kind    Kind
	Command terminal.Command
	Binding *TmuxBinding
}

// Exit is delivered to the owner once a session is fully torn down
type Exit struct {
	SessionID id.SessionID
	Code      int
	Reason    Reason
	// Started is false when no process was ever spawned.
	Started bool
}

// Info is a read-only view of a session
type Info struct {
	ID           id.SessionID `json:"sessionId"`
	Kind         Kind         `json:"kind"`
	State        string       `json:"state"`
	Rows         uint16       `json:"rows"`
	Cols         uint16       `json:"cols"`
	Cwd          string       `json:"cwd"`
	Pid          int          `json:"pid,omitempty"`
	DevicePath   string       `json:"tty"`
	Tmux         *TmuxBinding `json:"tmux,omitempty"`
	AttachedTmux string       `json:"attachedTmux,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// Annotation pairs a session with the external tmux session its terminal
// is currently attached to. An empty name means no longer attached.
type Annotation struct {
	SessionID       id.SessionID `json:"sessionId"`
	TmuxSessionName string       `json:"tmuxSessionName"`
}
