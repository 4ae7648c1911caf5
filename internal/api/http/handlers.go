package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vaughanknight/trex-sub003/internal/domain/session"
	"github.com/vaughanknight/trex-sub003/internal/infrastructure/monitoring"
	"github.com/vaughanknight/trex-sub003/internal/shared/id"
	"github.com/vaughanknight/trex-sub003/internal/tmux"
)

const inspectTimeout = 500 * time.Millisecond

// TmuxView exposes tmux discovery state
type TmuxView interface {
	Snapshot() tmux.Snapshot
	State() tmux.MonitorState
	Interval(query string) time.Duration
}

// Options wires Handlers. Tmux may be nil when tmux support is off.
type Options struct {
	Registry *session.Registry
	Tmux     TmuxView
	Metrics  *monitoring.Metrics
	Inspect  ProcessInspector
	Version  string
	Logger   *zap.Logger
}

// Handlers contains all HTTP handlers
type Handlers struct {
	registry *session.Registry
	tmux     TmuxView
	metrics  *monitoring.Metrics
	inspect  ProcessInspector
	version  string
	logger   *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(opts Options) *Handlers {
	h := &Handlers{
		registry: opts.Registry,
		tmux:     opts.Tmux,
		metrics:  opts.Metrics,
		inspect:  opts.Inspect,
		version:  opts.Version,
		logger:   opts.Logger,
	}
	if h.inspect == nil {
		h.inspect = InspectProcess
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// SessionView is a session as listed over REST
type SessionView struct {
	session.Info
	Process *ProcessInfo `json:"process,omitempty"`
}

// Root handles the bare liveness probe
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "trex",
		"version": h.version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	resp := gin.H{
		"status":   "healthy",
		"sessions": h.registry.Stats(),
		"tmux":     h.tmuxHealth(),
	}
	if h.metrics != nil {
		resp["connections"] = h.metrics.Snapshot().ActiveConnections
		resp["uptime_seconds"] = h.metrics.UptimeDuration().Seconds()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) tmuxHealth() gin.H {
	if h.tmux == nil {
		return gin.H{"state": tmux.StateDisabled.String()}
	}
	snap := h.tmux.Snapshot()
	return gin.H{
		"state":            h.tmux.State().String(),
		"available":        snap.Available,
		"sessions":         len(snap.Sessions),
		"session_interval": h.tmux.Interval("sessions").String(),
		"client_interval":  h.tmux.Interval("clients").String(),
		"updated_at":       snap.UpdatedAt,
	}
}

// ListSessions lists all live sessions with their process details
func (h *Handlers) ListSessions(c *gin.Context) {
	infos := h.registry.List()
	views := make([]SessionView, 0, len(infos))
	for _, info := range infos {
		views = append(views, h.view(c.Request.Context(), info))
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": views,
		"stats":    h.registry.Stats(),
	})
}

// GetSession returns one session
func (h *Handlers) GetSession(c *gin.Context) {
	sid := c.Param("id")
	if !id.IsSessionID(sid) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	s, ok := h.registry.Get(id.SessionID(sid))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": session.ErrNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, h.view(c.Request.Context(), s.Info()))
}

func (h *Handlers) view(ctx context.Context, info session.Info) SessionView {
	v := SessionView{Info: info}
	if info.Pid <= 0 {
		return v
	}

	ctx, cancel := context.WithTimeout(ctx, inspectTimeout)
	defer cancel()
	proc, err := h.inspect(ctx, info.Pid)
	if err != nil {
		h.logger.Debug("process inspection failed",
			zap.String("session_id", info.ID.String()),
			zap.Int("pid", info.Pid),
			zap.Error(err))
		return v
	}
	v.Process = &proc
	return v
}

// ListTmuxSessions returns the latest discovery snapshot
func (h *Handlers) ListTmuxSessions(c *gin.Context) {
	if h.tmux == nil {
		c.JSON(http.StatusOK, gin.H{
			"available": false,
			"sessions":  []tmux.SessionRecord{},
		})
		return
	}

	snap := h.tmux.Snapshot()
	sessions := snap.Sessions
	if sessions == nil {
		sessions = []tmux.SessionRecord{}
	}
	// Managed shells the user attached to tmux by hand.
	attached := h.registry.Annotations()
	if attached == nil {
		attached = []session.Annotation{}
	}
	c.JSON(http.StatusOK, gin.H{
		"available":  snap.Available,
		"sessions":   sessions,
		"attached":   attached,
		"updated_at": snap.UpdatedAt,
	})
}
