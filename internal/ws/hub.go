package ws

import (
	"sync"

	"go.uber.org/zap"

	"github.com/vaughanknight/trex-sub003/internal/domain/session"
	"github.com/vaughanknight/trex-sub003/internal/protocol"
	"github.com/vaughanknight/trex-sub003/internal/tmux"
)

// Hub tracks live connections for broadcasts
type Hub struct {
	mu     sync.RWMutex
	conns  map[*Conn]struct{} // Protected by mu
	logger *zap.Logger
}

func newHub(logger *zap.Logger) *Hub {
	return &Hub{
		conns:  make(map[*Conn]struct{}),
		logger: logger,
	}
}

func (h *Hub) add(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

func (h *Hub) snapshot() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	return conns
}

// Len returns the number of live connections
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// BroadcastTmuxSessions sends the discovery snapshot to every connection
func (h *Hub) BroadcastTmuxSessions(snap tmux.Snapshot) {
	msg := tmuxSessionsMessage(snap)
	for _, c := range h.snapshot() {
		if err := c.send(msg, protocol.TypeTmuxSessions); err != nil {
			c.logger.Debug("tmux_sessions broadcast failed", zap.Error(err))
		}
	}
}

// BroadcastTmuxStatus delivers annotation changes to the connections that
// own the affected sessions.
func (h *Hub) BroadcastTmuxStatus(changes []session.Annotation) {
	if len(changes) == 0 {
		return
	}
	for _, c := range h.snapshot() {
		var mine []protocol.TmuxAnnotation
		for _, a := range changes {
			if c.owns(a.SessionID) {
				mine = append(mine, protocol.TmuxAnnotation{
					SessionID:       a.SessionID.String(),
					TmuxSessionName: a.TmuxSessionName,
				})
			}
		}
		if len(mine) == 0 {
			continue
		}
		msg := protocol.TmuxStatus{Type: protocol.TypeTmuxStatus, Sessions: mine}
		if err := c.send(msg, protocol.TypeTmuxStatus); err != nil {
			c.logger.Debug("tmux_status broadcast failed", zap.Error(err))
		}
	}
}

// CloseAll sends a going-away close frame to every connection and closes
// it. Each connection's read loop then tears down its sessions.
func (h *Hub) CloseAll() {
	conns := h.snapshot()
	for _, c := range conns {
		c.closeWithReason("server shutting down")
	}
	if len(conns) > 0 {
		h.logger.Info("closed client connections", zap.Int("count", len(conns)))
	}
}

func tmuxSessionsMessage(snap tmux.Snapshot) protocol.TmuxSessions {
	sessions := make([]protocol.TmuxSession, 0, len(snap.Sessions))
	for _, s := range snap.Sessions {
		sessions = append(sessions, protocol.TmuxSession{Name: s.Name, Windows: s.Windows, Attached: s.Attached})
	}
	return protocol.TmuxSessions{
		Type:      protocol.TypeTmuxSessions,
		Available: snap.Available,
		Sessions:  sessions,
	}
}
