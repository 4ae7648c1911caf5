// Package ws multiplexes terminal sessions over one WebSocket per client.
//
// Each connection runs a single read loop that decodes frames and routes
// them through a per-connection dispatch table keyed by session id. All
// writes for a connection (output batches, errors, exits, broadcasts) go
// through one write lock, so frames never interleave. Closing the socket
// cancels the connection context, which tears down every session the
// connection created.
//
// Message Types (Client → Server):
//   - create: new shell, or tmux attachment when tmuxSessionName is set
//   - input / resize / close / detach: address one session by sessionId
//   - list_tmux_sessions: request the latest tmux discovery snapshot
//
// Message Types (Server → Client):
//   - session_created, output, exit, error
//   - tmux_sessions: discovery snapshot, also broadcast on change
//   - tmux_status: which of this client's sessions are attached to tmux
//
// Example Usage:
//
//	handler := ws.NewHandler(ws.Options{Registry: reg, Attacher: attacher, Tmux: monitor})
//	router.GET("/ws", handler.HandleConnection)
package ws
