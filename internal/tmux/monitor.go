package tmux

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vaughanknight/trex-sub003/internal/infrastructure/monitoring"
)

// MonitorState describes what the discovery loop is doing
type MonitorState int32

const (
	StateDisabled MonitorState = iota
	StateIdle
	StatePolling
)

func (s MonitorState) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	default:
		return "unknown"
	}
}

const (
	querySessions = "sessions"
	queryClients  = "clients"
)

// Querier is the subset of Client the Monitor polls
type Querier interface {
	Available() bool
	ListSessions(ctx context.Context) ([]SessionRecord, error)
	ListClients(ctx context.Context) (map[string]string, error)
}

// MonitorConfig controls polling cadence and back-off
type MonitorConfig struct {
	Disabled         bool
	ClientInterval   time.Duration
	SessionInterval  time.Duration
	FailureThreshold int
	MaxBackoff       time.Duration
}

// DefaultMonitorConfig returns the standard cadence
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ClientInterval:   2 * time.Second,
		SessionInterval:  5 * time.Second,
		FailureThreshold: 3,
		MaxBackoff:       60 * time.Second,
	}
}

// Snapshot is the latest known view of the tmux server
type Snapshot struct {
	Available bool              `json:"available"`
	Sessions  []SessionRecord   `json:"sessions"`
	Clients   map[string]string `json:"-"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// SessionsDelta lists session names that changed since the previous poll
type SessionsDelta struct {
	Added   []string
	Changed []string
	Removed []string
}

func (d SessionsDelta) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// track is the per-query cadence. The effective interval doubles every
// failure once FailureThreshold consecutive failures are reached, up to
// MaxBackoff, and snaps back on the next success.
type track struct {
	base     time.Duration
	interval atomic.Int64
	failures int
}

func newTrack(base time.Duration) *track {
	t := &track{base: base}
	t.interval.Store(int64(base))
	return t
}

func (t *track) current() time.Duration {
	return time.Duration(t.interval.Load())
}

// succeed reports whether the interval changed
func (t *track) succeed() bool {
	t.failures = 0
	if t.current() == t.base {
		return false
	}
	t.interval.Store(int64(t.base))
	return true
}

// fail reports whether the interval changed
func (t *track) fail(threshold int, ceiling time.Duration) bool {
	t.failures++
	if t.failures < threshold {
		return false
	}
	next := t.current() * 2
	if next > ceiling {
		next = ceiling
	}
	if next == t.current() {
		return false
	}
	t.interval.Store(int64(next))
	return true
}

// Monitor polls tmux in the background and reports changes to subscribers.
// Queries that fail keep the previous result; nothing is reported for a
// failed cycle.
type Monitor struct {
	q       Querier
	cfg     MonitorConfig
	logger  *zap.Logger
	metrics *monitoring.Metrics

	state    atomic.Int32
	snapshot atomic.Pointer[Snapshot]

	subMu      sync.RWMutex
	onSessions []func([]SessionRecord, SessionsDelta)
	onClients  []func(map[string]string)

	// Owned by the polling goroutine.
	sessions      *track
	clients       *track
	lastSessions  []SessionRecord
	sessionsKnown bool
	lastClients   map[string]string
	clientsKnown  bool
}

// NewMonitor creates a monitor. Availability is decided once, here.
func NewMonitor(q Querier, cfg MonitorConfig, logger *zap.Logger, metrics *monitoring.Metrics) *Monitor {
	def := DefaultMonitorConfig()
	if cfg.ClientInterval <= 0 {
		cfg.ClientInterval = def.ClientInterval
	}
	if cfg.SessionInterval <= 0 {
		cfg.SessionInterval = def.SessionInterval
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Monitor{
		q:        q,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		sessions: newTrack(cfg.SessionInterval),
		clients:  newTrack(cfg.ClientInterval),
	}

	available := !cfg.Disabled && q != nil && q.Available()
	if available {
		m.state.Store(int32(StateIdle))
	} else {
		m.state.Store(int32(StateDisabled))
	}
	m.snapshot.Store(&Snapshot{Available: available, Sessions: []SessionRecord{}, Clients: map[string]string{}})
	return m
}

// OnSessions registers a callback for session list changes. Callbacks run
// on the polling goroutine.
func (m *Monitor) OnSessions(fn func([]SessionRecord, SessionsDelta)) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.onSessions = append(m.onSessions, fn)
}

// OnClients registers a callback for client attachment changes.
func (m *Monitor) OnClients(fn func(map[string]string)) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.onClients = append(m.onClients, fn)
}

func (m *Monitor) State() MonitorState {
	return MonitorState(m.state.Load())
}

// Snapshot returns the latest published view without blocking the poller.
func (m *Monitor) Snapshot() Snapshot {
	return *m.snapshot.Load()
}

// Interval returns the effective poll interval for "sessions" or "clients".
func (m *Monitor) Interval(query string) time.Duration {
	if query == queryClients {
		return m.clients.current()
	}
	return m.sessions.current()
}

// Run polls until ctx is cancelled. It returns immediately when disabled.
func (m *Monitor) Run(ctx context.Context) {
	if m.State() == StateDisabled {
		m.logger.Info("tmux discovery disabled")
		return
	}
	m.logger.Info("tmux discovery started",
		zap.Duration("session_interval", m.sessions.current()),
		zap.Duration("client_interval", m.clients.current()))

	m.pollSessions(ctx)
	m.pollClients(ctx)

	sessionTimer := time.NewTimer(m.sessions.current())
	clientTimer := time.NewTimer(m.clients.current())
	defer sessionTimer.Stop()
	defer clientTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("tmux discovery stopped")
			return
		case <-sessionTimer.C:
			m.pollSessions(ctx)
			sessionTimer.Reset(m.sessions.current())
		case <-clientTimer.C:
			m.pollClients(ctx)
			clientTimer.Reset(m.clients.current())
		}
	}
}

func (m *Monitor) pollSessions(ctx context.Context) []SessionRecord {
	m.state.Store(int32(StatePolling))
	defer m.state.Store(int32(StateIdle))

	records, err := m.q.ListSessions(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.failed(querySessions, m.sessions, err)
		}
		return m.lastSessions
	}
	m.succeeded(querySessions, m.sessions)

	delta := diffSessions(m.lastSessions, records)
	first := !m.sessionsKnown
	m.lastSessions = records
	m.sessionsKnown = true

	m.publish(func(s *Snapshot) { s.Sessions = records })
	if m.metrics != nil {
		m.metrics.SetTmuxSessions(len(records))
	}

	if delta.Empty() && !first {
		return records
	}
	m.logger.Debug("tmux sessions changed",
		zap.Strings("added", delta.Added),
		zap.Strings("changed", delta.Changed),
		zap.Strings("removed", delta.Removed))

	m.subMu.RLock()
	subs := m.onSessions
	m.subMu.RUnlock()
	for _, fn := range subs {
		fn(records, delta)
	}
	return records
}

func (m *Monitor) pollClients(ctx context.Context) map[string]string {
	m.state.Store(int32(StatePolling))
	defer m.state.Store(int32(StateIdle))

	clients, err := m.q.ListClients(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.failed(queryClients, m.clients, err)
		}
		return m.lastClients
	}
	m.succeeded(queryClients, m.clients)

	changed := !m.clientsKnown || !equalClients(m.lastClients, clients)
	m.lastClients = clients
	m.clientsKnown = true

	m.publish(func(s *Snapshot) { s.Clients = clients })

	if !changed {
		return clients
	}

	m.subMu.RLock()
	subs := m.onClients
	m.subMu.RUnlock()
	for _, fn := range subs {
		fn(clients)
	}
	return clients
}

func (m *Monitor) failed(query string, t *track, err error) {
	if m.metrics != nil {
		m.metrics.RecordTmuxPoll(query, false)
	}
	if t.fail(m.cfg.FailureThreshold, m.cfg.MaxBackoff) {
		m.logger.Warn("tmux query failing, backing off",
			zap.String("query", query),
			zap.Int("failures", t.failures),
			zap.Duration("interval", t.current()),
			zap.Error(err))
		if m.metrics != nil {
			m.metrics.SetTmuxPollInterval(query, t.current())
		}
		return
	}
	m.logger.Debug("tmux query failed", zap.String("query", query), zap.Error(err))
}

func (m *Monitor) succeeded(query string, t *track) {
	if m.metrics != nil {
		m.metrics.RecordTmuxPoll(query, true)
	}
	if t.succeed() {
		m.logger.Info("tmux query recovered", zap.String("query", query), zap.Duration("interval", t.current()))
		if m.metrics != nil {
			m.metrics.SetTmuxPollInterval(query, t.current())
		}
	}
}

// publish swaps in a modified copy of the snapshot. Only the polling
// goroutine writes, so load-modify-store cannot lose updates.
func (m *Monitor) publish(update func(*Snapshot)) {
	next := *m.snapshot.Load()
	update(&next)
	next.UpdatedAt = time.Now()
	m.snapshot.Store(&next)
}

func diffSessions(prev, next []SessionRecord) SessionsDelta {
	var delta SessionsDelta

	old := make(map[string]SessionRecord, len(prev))
	for _, r := range prev {
		old[r.Name] = r
	}
	for _, r := range next {
		before, ok := old[r.Name]
		switch {
		case !ok:
			delta.Added = append(delta.Added, r.Name)
		case before != r:
			delta.Changed = append(delta.Changed, r.Name)
		}
		delete(old, r.Name)
	}
	for _, r := range prev {
		if _, gone := old[r.Name]; gone {
			delta.Removed = append(delta.Removed, r.Name)
		}
	}
	return delta
}

func equalClients(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for tty, name := range a {
		if other, ok := b[tty]; !ok || other != name {
			return false
		}
	}
	return true
}
