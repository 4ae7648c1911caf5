package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/vaughanknight/trex-sub003/internal/domain/bridge"
	"github.com/vaughanknight/trex-sub003/internal/infrastructure/monitoring"
	"github.com/vaughanknight/trex-sub003/internal/shared/id"
	"github.com/vaughanknight/trex-sub003/internal/terminal"
)

const defaultCloseGrace = 2 * time.Second

// Options configures a Registry
type Options struct {
	Opener     terminal.Opener
	Bridge     bridge.Config
	CloseGrace time.Duration
	Logger     *zap.Logger
	Metrics    *monitoring.Metrics
}

// CreateRequest describes a new session
type CreateRequest struct {
	Launch Launch
	Sink   bridge.Sink
	// OnExit runs once teardown has released every resource, just before
	// Done is closed. It must not wait on the registry.
	OnExit func(Exit)
}

// Stats summarises registry activity
type Stats struct {
	Active  int    `json:"active"`
	Created uint64 `json:"created"`
}

// Registry tracks live sessions by identifier
type Registry struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*Session // Protected by mu

	opener  terminal.Opener
	bridge  bridge.Config
	grace   time.Duration
	logger  *zap.Logger
	metrics *monitoring.Metrics

	created atomic.Uint64
	wg      sync.WaitGroup
}

// NewRegistry creates an empty registry
func NewRegistry(opts Options) *Registry {
	if opts.Opener == nil {
		opts.Opener = terminal.OpenTerminal
	}
	if opts.CloseGrace <= 0 {
		opts.CloseGrace = defaultCloseGrace
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Registry{
		sessions: make(map[id.SessionID]*Session),
		opener:   opts.Opener,
		bridge:   opts.Bridge,
		grace:    opts.CloseGrace,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Create opens a pending terminal and registers a session for it. The
// session lives until ctx is cancelled, it is closed, or its process ends.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	if req.Sink == nil {
		return nil, errors.New("session sink is required")
	}
	kind := req.Launch.Kind
	if kind == "" {
		kind = KindShell
	}

	term, err := r.opener()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	sid := id.NewSessionID()
	sctx, cancel := context.WithCancel(ctx)

	s := &Session{
		ID:        sid,
		Kind:      kind,
		CreatedAt: time.Now(),
		term:      term,
		launch:    req.Launch,
		onExit:    req.OnExit,
		ctx:       sctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StatePending,
	}
	s.bridge = bridge.New(sid, term, req.Sink, r.bridge, r.logger)
	if r.metrics != nil {
		s.bridge.OnFlush = r.metrics.RecordOutput
	}

	r.mu.Lock()
	r.sessions[sid] = s
	active := len(r.sessions)
	r.mu.Unlock()
	r.created.Add(1)

	if r.metrics != nil {
		r.metrics.SessionCreated(string(kind))
		r.metrics.SetSessionsActive(active)
	}

	r.wg.Add(1)
	s.bridge.Start(sctx, s.bridgeEnded)
	go r.supervise(s)

	fields := []zap.Field{
		zap.String("session_id", sid.String()),
		zap.String("kind", string(kind)),
		zap.String("tty", term.DevicePath()),
	}
	if b := req.Launch.Binding; b != nil {
		fields = append(fields, zap.String("tmux_session", b.SessionName))
	}
	r.logger.Info("session created", fields...)

	return s, nil
}

// Get looks up a live session
func (r *Registry) Get(sid id.SessionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sid]
	return s, ok
}

// Resize applies a window size. The first resize of a pending session
// spawns its process; a spawn failure tears the session down.
func (r *Registry) Resize(sid id.SessionID, size terminal.Size) error {
	s, ok := r.Get(sid)
	if !ok {
		return ErrNotFound
	}
	if err := s.resize(size, r.grace); err != nil {
		if errors.Is(err, ErrSpawnFailed) {
			r.logger.Warn("session spawn failed",
				zap.String("session_id", sid.String()),
				zap.String("command", s.launch.Command.Path),
				zap.Error(err))
		}
		return err
	}
	return nil
}

// Input forwards keystrokes to a session
func (r *Registry) Input(sid id.SessionID, data []byte) error {
	s, ok := r.Get(sid)
	if !ok {
		return ErrNotFound
	}
	return s.Input(data)
}

// Close tears a session down and waits for it to leave the registry.
// Closing an attachment only detaches its tmux client. Unknown or already
// closed identifiers are a no-op.
func (r *Registry) Close(sid id.SessionID) error {
	s, ok := r.Get(sid)
	if !ok {
		return nil
	}

	reason := ReasonClosed
	if s.Kind == KindTmux {
		reason = ReasonDetached
	}
	s.end(reason)
	<-s.done
	return nil
}

// Detach ends an attachment session without touching the tmux session
// it was attached to.
func (r *Registry) Detach(sid id.SessionID) error {
	s, ok := r.Get(sid)
	if !ok {
		return ErrNotFound
	}
	if s.Kind != KindTmux {
		return ErrNotAttachment
	}
	s.end(ReasonDetached)
	<-s.done
	return nil
}

// List returns every live session, oldest first
func (r *Registry) List() []Info {
	sessions := r.snapshot()
	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stats returns registry counters
func (r *Registry) Stats() Stats {
	return Stats{
		Active:  r.Len(),
		Created: r.created.Load(),
	}
}

// Annotate correlates tmux clients (tty -> tmux session) with sessions by
// terminal device path and returns the sessions whose attachment changed.
// Attachment sessions are skipped: their binding is already known.
func (r *Registry) Annotate(clients map[string]string) []Annotation {
	var changes []Annotation
	for _, s := range r.snapshot() {
		if s.Kind == KindTmux {
			continue
		}
		name := clients[s.DevicePath()]

		s.mu.Lock()
		if s.annotation != name && s.state != StateClosed {
			s.annotation = name
			changes = append(changes, Annotation{SessionID: s.ID, TmuxSessionName: name})
		}
		s.mu.Unlock()
	}
	return changes
}

// Annotations returns the current non-empty annotations
func (r *Registry) Annotations() []Annotation {
	var out []Annotation
	for _, s := range r.snapshot() {
		if name := s.Annotation(); name != "" {
			out = append(out, Annotation{SessionID: s.ID, TmuxSessionName: name})
		}
	}
	return out
}

// Shutdown tears down every session and waits for teardown to finish or
// ctx to expire.
func (r *Registry) Shutdown(ctx context.Context) error {
	for _, s := range r.snapshot() {
		s.end(ReasonShutdown)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ID < sessions[j].ID
	})
	return sessions
}

// supervise owns teardown: process, terminal, pumps, registry entry, owner
// notification, in that order.
func (r *Registry) supervise(s *Session) {
	defer r.wg.Done()

	<-s.ctx.Done()
	started, reason := s.beginTeardown()

	logger := r.logger.With(
		zap.String("session_id", s.ID.String()),
		zap.String("reason", string(reason)),
	)

	if started {
		// Shells lose their whole process group; an attachment only loses
		// its tmux client so the tmux session itself survives.
		sig, group := unix.SIGHUP, true
		if s.Kind == KindTmux {
			sig, group = unix.SIGTERM, false
		}
		if err := terminal.Terminate(s.term, sig, group, r.grace); err != nil {
			logger.Warn("failed to terminate session process", zap.Error(err))
		}
	}

	if err := s.term.Close(); err != nil {
		logger.Debug("terminal close failed", zap.Error(err))
	}
	if !s.bridge.WaitTimeout(r.grace) {
		logger.Warn("bridge pumps still running after terminal close")
	}

	exit := Exit{SessionID: s.ID, Reason: reason, Started: started}
	if started {
		exit.Code = s.term.ExitCode()
	}

	r.mu.Lock()
	delete(r.sessions, s.ID)
	active := len(r.sessions)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SessionExited(string(reason))
		r.metrics.SetSessionsActive(active)
	}

	s.finish(exit)
	logger.Info("session closed", zap.Int("exit_code", exit.Code), zap.Bool("started", started))

	if s.onExit != nil {
		s.onExit(exit)
	}
	close(s.done)
}
