package protocol

// Type discriminates messages on the channel
type Type string

// Client to server
const (
	TypeCreate           Type = "create"
	TypeInput            Type = "input"
	TypeResize           Type = "resize"
	TypeClose            Type = "close"
	TypeDetach           Type = "detach"
	TypeListTmuxSessions Type = "list_tmux_sessions"
)

// Server to client
const (
	TypeSessionCreated Type = "session_created"
	TypeOutput         Type = "output"
	TypeError          Type = "error"
	TypeExit           Type = "exit"
	TypeTmuxStatus     Type = "tmux_status"
	TypeTmuxSessions   Type = "tmux_sessions"
)

// Inbound is the union of every client message. Which fields are
// meaningful depends on Type.
type Inbound struct {
	Type            Type   `json:"type"`
	SessionID       string `json:"sessionId,omitempty"`
	RequestID       string `json:"requestId,omitempty"`
	Data            string `json:"data,omitempty"`
	Rows            int    `json:"rows,omitempty"`
	Cols            int    `json:"cols,omitempty"`
	Cwd             string `json:"cwd,omitempty"`
	TmuxSessionName string `json:"tmuxSessionName,omitempty"`
	TmuxWindowIndex *int   `json:"tmuxWindowIndex,omitempty"`
}

// IsAttach reports whether a create asks for a tmux attachment
func (m Inbound) IsAttach() bool {
	return m.TmuxSessionName != "" || m.TmuxWindowIndex != nil
}

type SessionCreated struct {
	Type            Type   `json:"type"`
	SessionID       string `json:"sessionId"`
	RequestID       string `json:"requestId,omitempty"`
	Cwd             string `json:"cwd"`
	TmuxSessionName string `json:"tmuxSessionName,omitempty"`
	TmuxWindowIndex *int   `json:"tmuxWindowIndex,omitempty"`
}

type Output struct {
	Type      Type   `json:"type"`
	SessionID string `json:"sessionId"`
	Data      string `json:"data"`
}

type Error struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
}

type Exit struct {
	Type      Type   `json:"type"`
	SessionID string `json:"sessionId"`
	Code      int    `json:"code"`
	Reason    string `json:"reason"`
}

// TmuxAnnotation links a session to the tmux session its terminal is
// attached to. An empty name means it is no longer attached.
type TmuxAnnotation struct {
	SessionID       string `json:"sessionId"`
	TmuxSessionName string `json:"tmuxSessionName"`
}

type TmuxStatus struct {
	Type     Type             `json:"type"`
	Sessions []TmuxAnnotation `json:"sessions"`
}

type TmuxSession struct {
	Name     string `json:"name"`
	Windows  int    `json:"windows"`
	Attached int    `json:"attached"`
}

type TmuxSessions struct {
	Type      Type          `json:"type"`
	Available bool          `json:"available"`
	Sessions  []TmuxSession `json:"sessions"`
}

func NewOutput(sessionID string, data []byte) Output {
	return Output{Type: TypeOutput, SessionID: sessionID, Data: string(data)}
}

func NewError(kind ErrorKind, message string) Error {
	return Error{Type: TypeError, Kind: kind, Message: message}
}

func NewExit(sessionID string, code int, reason string) Exit {
	return Exit{Type: TypeExit, SessionID: sessionID, Code: code, Reason: reason}
}
