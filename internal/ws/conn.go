package ws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vaughanknight/trex-sub003/internal/domain/session"
	"github.com/vaughanknight/trex-sub003/internal/protocol"
	"github.com/vaughanknight/trex-sub003/internal/shared/id"
	"github.com/vaughanknight/trex-sub003/internal/terminal"
	"github.com/vaughanknight/trex-sub003/internal/tmux"
)

var errConnClosed = errors.New("connection closed")

const maxDimension = 1<<16 - 1

// Conn is one client channel and the sessions it owns
type Conn struct {
	id     id.ConnID
	ws     *websocket.Conn
	h      *Handler
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	writeMu sync.Mutex
	closed  atomic.Bool

	mu       sync.RWMutex
	sessions map[id.SessionID]*session.Session // Protected by mu

	limiter *rate.Limiter
	wg      sync.WaitGroup
}

func newConn(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, h *Handler) *Conn {
	cid := id.NewConnID()
	return &Conn{
		id:       cid,
		ws:       ws,
		h:        h,
		ctx:      ctx,
		cancel:   cancel,
		logger:   h.logger.With(zap.String("conn_id", cid.String())),
		sessions: make(map[id.SessionID]*session.Session),
		limiter:  h.newLimiter(),
	}
}

func (c *Conn) readLoop() {
	pongWait := 2 * c.h.cfg.PingInterval

	c.ws.SetReadLimit(c.h.cfg.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.keepalive()

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		c.dispatch(data)
	}
}

func (c *Conn) keepalive() {
	ticker := time.NewTicker(c.h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.h.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				_ = c.ws.Close()
				return
			}
		}
	}
}

// shutdown cancels the connection, which tears down its sessions, and
// waits for them to finish.
func (c *Conn) shutdown() {
	c.cancel()
	c.wg.Wait()

	for _, s := range c.owned() {
		<-s.Done()
	}

	c.closed.Store(true)
	_ = c.ws.Close()
}

func (c *Conn) closeWithReason(reason string) {
	deadline := time.Now().Add(c.h.cfg.WriteTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = c.ws.Close()
}

func (c *Conn) dispatch(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		c.logger.Debug("invalid message", zap.Error(err))
		c.sendError(protocol.Inbound{}, protocol.KindInvalidMessage, err.Error())
		return
	}
	if c.h.metrics != nil {
		c.h.metrics.RecordWSMessage("in", string(msg.Type))
	}

	switch msg.Type {
	case protocol.TypeCreate:
		c.async(func() { c.create(msg) })
	case protocol.TypeInput:
		c.input(msg)
	case protocol.TypeResize:
		c.resize(msg)
	case protocol.TypeClose:
		c.async(func() { c.closeSession(msg) })
	case protocol.TypeDetach:
		c.async(func() { c.detach(msg) })
	case protocol.TypeListTmuxSessions:
		c.listTmuxSessions()
	default:
		c.logger.Warn("ignoring unknown message type", zap.String("type", string(msg.Type)))
	}
}

// async runs slow operations (tmux queries, process teardown) off the read
// loop so other sessions keep flowing.
func (c *Conn) async(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func (c *Conn) create(msg protocol.Inbound) {
	if !c.limiter.Allow() {
		c.sendError(msg, kindOf(errRateLimited), errRateLimited.Error())
		return
	}

	launch, err := c.launchFor(msg)
	if err != nil {
		c.sendError(msg, kindOf(err), err.Error())
		return
	}

	s, err := c.h.registry.Create(c.ctx, session.CreateRequest{
		Launch: launch,
		Sink:   c,
		OnExit: c.sessionExited,
	})
	if err != nil {
		c.logger.Warn("session create failed", zap.Error(err))
		c.sendError(msg, kindOf(err), err.Error())
		return
	}
	c.track(s)

	created := protocol.SessionCreated{
		Type:      protocol.TypeSessionCreated,
		SessionID: s.ID.String(),
		RequestID: msg.RequestID,
		Cwd:       s.Cwd(),
	}
	if b := s.Binding(); b != nil {
		created.TmuxSessionName = b.SessionName
		created.TmuxWindowIndex = b.WindowIndex
	}
	if err := c.send(created, protocol.TypeSessionCreated); err != nil {
		c.logger.Debug("session_created not delivered", zap.Error(err))
		return
	}

	// A poll between Create and track annotated the session unseen
	if name := s.Annotation(); name != "" {
		status := protocol.TmuxStatus{
			Type:     protocol.TypeTmuxStatus,
			Sessions: []protocol.TmuxAnnotation{{SessionID: s.ID.String(), TmuxSessionName: name}},
		}
		_ = c.send(status, protocol.TypeTmuxStatus)
	}
}

func (c *Conn) launchFor(msg protocol.Inbound) (session.Launch, error) {
	if !msg.IsAttach() {
		return session.Launch{
			Kind:    session.KindShell,
			Command: terminal.ShellCommand(c.h.shell, msg.Cwd),
		}, nil
	}

	if c.h.attacher == nil {
		return session.Launch{}, tmux.ErrUnavailable
	}
	cmd, err := c.h.attacher.Prepare(c.ctx, tmux.AttachRequest{
		SessionName: msg.TmuxSessionName,
		WindowIndex: msg.TmuxWindowIndex,
	})
	if err != nil {
		return session.Launch{}, err
	}
	cmd.Dir = terminal.ResolveDir(msg.Cwd, c.h.shell.WorkDir)

	return session.Launch{
		Kind:    session.KindTmux,
		Command: cmd,
		Binding: &session.TmuxBinding{
			SessionName: msg.TmuxSessionName,
			WindowIndex: msg.TmuxWindowIndex,
		},
	}, nil
}

func (c *Conn) input(msg protocol.Inbound) {
	s, ok := c.lookup(msg)
	if !ok {
		return
	}
	if err := s.Input([]byte(msg.Data)); err != nil {
		c.logger.Debug("input dropped", zap.String("session_id", msg.SessionID), zap.Error(err))
	}
}

func (c *Conn) resize(msg protocol.Inbound) {
	s, ok := c.lookup(msg)
	if !ok {
		c.sendError(msg, protocol.KindUnknownSession, session.ErrNotFound.Error())
		return
	}
	if msg.Rows <= 0 || msg.Cols <= 0 || msg.Rows > maxDimension || msg.Cols > maxDimension {
		c.sendError(msg, protocol.KindInvalidSize, terminal.ErrInvalidSize.Error())
		return
	}

	size := terminal.Size{Rows: uint16(msg.Rows), Cols: uint16(msg.Cols)}
	if err := c.h.registry.Resize(s.ID, size); err != nil {
		c.sendError(msg, kindOf(err), err.Error())
	}
}

func (c *Conn) closeSession(msg protocol.Inbound) {
	s, ok := c.lookup(msg)
	if !ok {
		return
	}
	if err := c.h.registry.Close(s.ID); err != nil {
		c.sendError(msg, kindOf(err), err.Error())
	}
}

func (c *Conn) detach(msg protocol.Inbound) {
	s, ok := c.lookup(msg)
	if !ok {
		c.sendError(msg, protocol.KindUnknownSession, session.ErrNotFound.Error())
		return
	}
	if err := c.h.registry.Detach(s.ID); err != nil {
		c.sendError(msg, kindOf(err), err.Error())
	}
}

func (c *Conn) listTmuxSessions() {
	snap := tmux.Snapshot{Sessions: []tmux.SessionRecord{}}
	if c.h.tmux != nil {
		snap = c.h.tmux.Snapshot()
	}
	if err := c.send(tmuxSessionsMessage(snap), protocol.TypeTmuxSessions); err != nil {
		c.logger.Debug("tmux_sessions not delivered", zap.Error(err))
	}
}

// SendOutput implements bridge.Sink
func (c *Conn) SendOutput(sid id.SessionID, data []byte) error {
	return c.send(protocol.NewOutput(sid.String(), data), protocol.TypeOutput)
}

func (c *Conn) sessionExited(exit session.Exit) {
	c.untrack(exit.SessionID)
	if !exit.Reason.Notify() {
		return
	}
	msg := protocol.NewExit(exit.SessionID.String(), exit.Code, string(exit.Reason))
	if err := c.send(msg, protocol.TypeExit); err != nil {
		c.logger.Debug("exit not delivered", zap.String("session_id", exit.SessionID.String()), zap.Error(err))
	}
}

func (c *Conn) send(v any, msgType protocol.Type) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return errConnClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.h.cfg.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		// A dead writer means a dead channel; unblock the read loop too.
		c.closed.Store(true)
		_ = c.ws.Close()
		return err
	}
	if c.h.metrics != nil {
		c.h.metrics.RecordWSMessage("out", string(msgType))
	}
	return nil
}

func (c *Conn) sendError(msg protocol.Inbound, kind protocol.ErrorKind, message string) {
	e := protocol.NewError(kind, message)
	e.SessionID = msg.SessionID
	e.RequestID = msg.RequestID
	if err := c.send(e, protocol.TypeError); err != nil {
		c.logger.Debug("error not delivered", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (c *Conn) track(s *session.Session) {
	c.mu.Lock()
	c.sessions[s.ID] = s
	c.mu.Unlock()

	// The session may already have finished before it was tracked.
	select {
	case <-s.Done():
		c.untrack(s.ID)
	default:
	}
}

func (c *Conn) untrack(sid id.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sid)
}

func (c *Conn) owns(sid id.SessionID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sessions[sid]
	return ok
}

func (c *Conn) owned() []*session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*session.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out
}

// lookup resolves a session id through this connection's dispatch table.
// Ids the connection does not own are logged and dropped.
func (c *Conn) lookup(msg protocol.Inbound) (*session.Session, bool) {
	sid := id.SessionID(msg.SessionID)
	c.mu.RLock()
	s, ok := c.sessions[sid]
	c.mu.RUnlock()
	if !ok {
		c.logger.Warn("message for unknown session",
			zap.String("type", string(msg.Type)),
			zap.String("session_id", msg.SessionID))
	}
	return s, ok
}
