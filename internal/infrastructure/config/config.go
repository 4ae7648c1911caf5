package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Terminal  TerminalConfig  `yaml:"terminal"`
	Tmux      TmuxConfig      `yaml:"tmux"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LogConfig       `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" yaml:"port"`
	Host string `envconfig:"HOST" yaml:"host"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// TerminalConfig controls how shell sessions are spawned and bridged.
type TerminalConfig struct {
	Shell       string        `envconfig:"SHELL" yaml:"shell"`
	ShellArgs   []string      `envconfig:"SHELL_ARGS" yaml:"shell_args"`
	WorkDir     string        `envconfig:"WORK_DIR" yaml:"work_dir"`
	Term        string        `envconfig:"TERM_TYPE" yaml:"term"`
	BatchWindow time.Duration `envconfig:"OUTPUT_BATCH_WINDOW" yaml:"batch_window"`
	MaxBatch    int           `envconfig:"OUTPUT_MAX_BATCH" yaml:"max_batch"`
	CloseGrace  time.Duration `envconfig:"CLOSE_GRACE" yaml:"close_grace"`
	InputQueue  int           `envconfig:"INPUT_QUEUE" yaml:"input_queue"`
}

// TmuxConfig controls discovery polling and attach-mode sessions.
type TmuxConfig struct {
	Enabled          bool          `envconfig:"TMUX_ENABLED" yaml:"enabled"`
	Binary           string        `envconfig:"TMUX_BINARY" yaml:"binary"`
	Socket           string        `envconfig:"TMUX_SOCKET" yaml:"socket"`
	ClientInterval   time.Duration `envconfig:"TMUX_CLIENT_INTERVAL" yaml:"client_interval"`
	SessionInterval  time.Duration `envconfig:"TMUX_SESSION_INTERVAL" yaml:"session_interval"`
	CommandTimeout   time.Duration `envconfig:"TMUX_COMMAND_TIMEOUT" yaml:"command_timeout"`
	FailureThreshold int           `envconfig:"TMUX_FAILURE_THRESHOLD" yaml:"failure_threshold"`
	MaxBackoff       time.Duration `envconfig:"TMUX_MAX_BACKOFF" yaml:"max_backoff"`
	EnvPrefix        string        `envconfig:"TMUX_ENV_PREFIX" yaml:"env_prefix"`
}

// WebSocketConfig holds channel transport settings.
type WebSocketConfig struct {
	AllowedOrigins []string      `envconfig:"WS_ALLOWED_ORIGINS" yaml:"allowed_origins"`
	PingInterval   time.Duration `envconfig:"WS_PING_INTERVAL" yaml:"ping_interval"`
	WriteTimeout   time.Duration `envconfig:"WS_WRITE_TIMEOUT" yaml:"write_timeout"`
	ReadLimit      int64         `envconfig:"WS_READ_LIMIT" yaml:"read_limit"`
	CreateRate     float64       `envconfig:"WS_CREATE_RATE" yaml:"create_rate"`
	CreateBurst    int           `envconfig:"WS_CREATE_BURST" yaml:"create_burst"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development"`
}

// RateLimitConfig holds HTTP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "127.0.0.1",
		},
		Terminal: TerminalConfig{
			Term:        "xterm-256color",
			ShellArgs:   []string{"-l"},
			BatchWindow: 20 * time.Millisecond,
			MaxBatch:    64 * 1024,
			CloseGrace:  2 * time.Second,
			InputQueue:  64,
		},
		Tmux: TmuxConfig{
			Enabled:          true,
			Binary:           "tmux",
			ClientInterval:   2 * time.Second,
			SessionInterval:  5 * time.Second,
			CommandTimeout:   2 * time.Second,
			FailureThreshold: 3,
			MaxBackoff:       60 * time.Second,
			EnvPrefix:        "TMUX",
		},
		WebSocket: WebSocketConfig{
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
			ReadLimit:    1 << 20,
			CreateRate:   10,
			CreateBurst:  20,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Load builds configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (later wins). An empty path
// falls back to $TREX_CONFIG.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("TREX_CONFIG")
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load("")
	if err != nil {
		return Default()
	}
	return cfg
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Terminal.BatchWindow <= 0 {
		errs = append(errs, errors.New("terminal batch window must be positive"))
	}
	if c.Terminal.MaxBatch <= 0 {
		errs = append(errs, errors.New("terminal max batch must be positive"))
	}
	if c.Terminal.InputQueue <= 0 {
		errs = append(errs, errors.New("terminal input queue must be positive"))
	}
	if c.Tmux.Enabled {
		if c.Tmux.Binary == "" {
			errs = append(errs, errors.New("tmux binary is required when tmux is enabled"))
		}
		if c.Tmux.ClientInterval <= 0 || c.Tmux.SessionInterval <= 0 {
			errs = append(errs, errors.New("tmux poll intervals must be positive"))
		}
		if c.Tmux.CommandTimeout <= 0 {
			errs = append(errs, errors.New("tmux command timeout must be positive"))
		}
		if c.Tmux.FailureThreshold <= 0 {
			errs = append(errs, errors.New("tmux failure threshold must be positive"))
		}
		if c.Tmux.EnvPrefix == "" {
			errs = append(errs, errors.New("tmux env prefix must not be empty"))
		}
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.WriteTimeout <= 0 {
		errs = append(errs, errors.New("websocket ping interval and write timeout must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
