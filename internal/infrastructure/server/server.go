package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/vaughanknight/trex-sub003/internal/api/http"
	"github.com/vaughanknight/trex-sub003/internal/api/middleware"
	"github.com/vaughanknight/trex-sub003/internal/domain/bridge"
	"github.com/vaughanknight/trex-sub003/internal/domain/session"
	"github.com/vaughanknight/trex-sub003/internal/infrastructure/config"
	"github.com/vaughanknight/trex-sub003/internal/infrastructure/logging"
	"github.com/vaughanknight/trex-sub003/internal/infrastructure/monitoring"
	"github.com/vaughanknight/trex-sub003/internal/terminal"
	"github.com/vaughanknight/trex-sub003/internal/tmux"
	"github.com/vaughanknight/trex-sub003/internal/ws"
)

// Version is reported by the root endpoint
var Version = "dev"

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	registry   *session.Registry
	monitor    *tmux.Monitor
	wsHandler  *ws.Handler
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
}

// Option customises a Server, mostly for tests
type Option func(*options)

type options struct {
	opener  terminal.Opener
	querier tmux.Querier
	logger  *logging.Logger
}

// WithOpener replaces the PTY opener
func WithOpener(opener terminal.Opener) Option {
	return func(o *options) { o.opener = opener }
}

// WithTmuxQuerier replaces the tmux client used for discovery
func WithTmuxQuerier(q tmux.Querier) Option {
	return func(o *options) { o.querier = q }
}

// WithLogger replaces the configured logger
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		l, err := logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l
	}

	logger.Info("Initializing trex server",
		zap.String("addr", cfg.Server.Addr()),
		zap.Bool("tmux", cfg.Tmux.Enabled),
	)

	metrics := monitoring.NewMetrics()

	registry := session.NewRegistry(session.Options{
		Opener: o.opener,
		Bridge: bridge.Config{
			Window:     cfg.Terminal.BatchWindow,
			MaxBatch:   cfg.Terminal.MaxBatch,
			InputQueue: cfg.Terminal.InputQueue,
		},
		CloseGrace: cfg.Terminal.CloseGrace,
		Logger:     logger.Component("registry"),
		Metrics:    metrics,
	})

	var (
		monitor  *tmux.Monitor
		attacher ws.Attacher
		view     ws.TmuxView
		httpView apihttp.TmuxView
	)
	if cfg.Tmux.Enabled {
		client := tmux.NewClient(tmux.Config{
			Binary:         cfg.Tmux.Binary,
			Socket:         cfg.Tmux.Socket,
			CommandTimeout: cfg.Tmux.CommandTimeout,
			EnvPrefix:      cfg.Tmux.EnvPrefix,
			Term:           cfg.Terminal.Term,
		})
		querier := o.querier
		if querier == nil {
			querier = client
		}
		monitor = tmux.NewMonitor(querier, tmux.MonitorConfig{
			ClientInterval:   cfg.Tmux.ClientInterval,
			SessionInterval:  cfg.Tmux.SessionInterval,
			FailureThreshold: cfg.Tmux.FailureThreshold,
			MaxBackoff:       cfg.Tmux.MaxBackoff,
		}, logger.Component("tmux"), metrics)
		attacher = tmux.NewAttacher(client, logger.Component("tmux"))
		view, httpView = monitor, monitor

		if monitor.State() == tmux.StateDisabled {
			logger.Warn("tmux not found, discovery disabled", zap.String("binary", cfg.Tmux.Binary))
		}
	}

	wsHandler := ws.NewHandler(ws.Options{
		Registry: registry,
		Attacher: attacher,
		Tmux:     view,
		Shell: terminal.ShellConfig{
			Shell:   cfg.Terminal.Shell,
			Args:    cfg.Terminal.ShellArgs,
			WorkDir: cfg.Terminal.WorkDir,
			Term:    cfg.Terminal.Term,
		},
		Config: ws.Config{
			AllowedOrigins: cfg.WebSocket.AllowedOrigins,
			PingInterval:   cfg.WebSocket.PingInterval,
			WriteTimeout:   cfg.WebSocket.WriteTimeout,
			ReadLimit:      cfg.WebSocket.ReadLimit,
			CreateRate:     cfg.WebSocket.CreateRate,
			CreateBurst:    cfg.WebSocket.CreateBurst,
		},
		Logger:  logger.Component("ws"),
		Metrics: metrics,
	})

	if monitor != nil {
		hub := wsHandler.Hub()
		monitor.OnSessions(func([]tmux.SessionRecord, tmux.SessionsDelta) {
			hub.BroadcastTmuxSessions(monitor.Snapshot())
		})
		monitor.OnClients(func(clients map[string]string) {
			hub.BroadcastTmuxStatus(registry.Annotate(clients))
		})
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLog(logger.Component("access")))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.WebSocket.AllowedOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(apihttp.Options{
		Registry: registry,
		Tmux:     httpView,
		Metrics:  metrics,
		Version:  Version,
		Logger:   logger.Component("http"),
	})

	// Register routes
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	api := router.Group("/api")
	api.GET("/sessions", handlers.ListSessions)
	api.GET("/sessions/:id", handlers.GetSession)
	api.GET("/tmux/sessions", handlers.ListTmuxSessions)

	// Metrics endpoints
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/metrics/json", handlers.Metrics)

	// WebSocket
	router.GET("/ws", wsHandler.HandleConnection)

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		registry:  registry,
		monitor:   monitor,
		wsHandler: wsHandler,
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
	}, nil
}

// Router returns the HTTP handler, for tests and embedding
func (s *Server) Router() http.Handler {
	return s.router
}

// Registry returns the session registry
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// Run serves until ctx is cancelled or the listener fails, then shuts
// down: stop accepting, close every client channel, and wait for every
// session to release its terminal.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if s.monitor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.monitor.Run(ctx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	cancel()
	shutdownErr := s.Close()
	wg.Wait()
	return errors.Join(runErr, shutdownErr)
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP shutdown failed", zap.Error(err))
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// Hijacked WebSocket connections are not covered by Shutdown
	s.wsHandler.Hub().CloseAll()

	if err := s.registry.Shutdown(ctx); err != nil {
		s.logger.Error("Session shutdown incomplete", zap.Error(err))
		errs = append(errs, fmt.Errorf("session shutdown: %w", err))
	}
	s.logger.Info("Server stopped", zap.Int("sessions_left", s.registry.Len()))

	_ = s.logger.Sync()
	return errors.Join(errs...)
}
