package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vaughanknight/trex-sub003/internal/domain/session"
	"github.com/vaughanknight/trex-sub003/internal/infrastructure/monitoring"
	"github.com/vaughanknight/trex-sub003/internal/terminal"
	"github.com/vaughanknight/trex-sub003/internal/tmux"
)

// Attacher prepares the command for a tmux attachment session
type Attacher interface {
	Prepare(ctx context.Context, req tmux.AttachRequest) (terminal.Command, error)
}

// TmuxView exposes the latest tmux discovery snapshot
type TmuxView interface {
	Snapshot() tmux.Snapshot
}

// Config holds channel transport settings
type Config struct {
	AllowedOrigins []string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	CreateRate     float64
	CreateBurst    int
}

// DefaultConfig returns the standard transport settings
func DefaultConfig() Config {
	return Config{
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
		ReadLimit:    1 << 20,
		CreateRate:   10,
		CreateBurst:  20,
	}
}

// Options wires a Handler. Attacher and Tmux may be nil when tmux support
// is off.
type Options struct {
	Registry *session.Registry
	Attacher Attacher
	Tmux     TmuxView
	Shell    terminal.ShellConfig
	Config   Config
	Logger   *zap.Logger
	Metrics  *monitoring.Metrics
}

// Handler manages WebSocket connections
type Handler struct {
	registry *session.Registry
	attacher Attacher
	tmux     TmuxView
	shell    terminal.ShellConfig
	cfg      Config
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewHandler creates a new WebSocket handler
func NewHandler(opts Options) *Handler {
	cfg := opts.Config
	def := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}
	if cfg.CreateRate <= 0 {
		cfg.CreateRate = def.CreateRate
	}
	if cfg.CreateBurst <= 0 {
		cfg.CreateBurst = def.CreateBurst
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Handler{
		registry: opts.Registry,
		attacher: opts.Attacher,
		tmux:     opts.Tmux,
		shell:    opts.Shell,
		cfg:      cfg,
		hub:      newHub(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		},
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Hub returns the set of live connections
func (h *Handler) Hub() *Hub {
	return h.hub
}

// HandleConnection upgrades the request and serves the connection until
// it closes
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.serve(c.Request.Context(), conn)
}

func (h *Handler) serve(parent context.Context, ws *websocket.Conn) {
	ctx, cancel := context.WithCancel(parent)
	c := newConn(ctx, cancel, ws, h)

	h.hub.add(c)
	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}
	c.logger.Info("client connected", zap.String("remote", ws.RemoteAddr().String()))

	defer func() {
		h.hub.remove(c)
		c.shutdown()
		if h.metrics != nil {
			h.metrics.DecWSConnections()
		}
		c.logger.Info("client disconnected")
	}()

	c.readLoop()
}

func (h *Handler) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(h.cfg.CreateRate), h.cfg.CreateBurst)
}

// checkOrigin allows any origin when the list is empty, otherwise only
// listed origins. "*" allows everything. Requests without an Origin header
// are not from a browser and are allowed.
func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
