// Package config provides 12-factor configuration management for the terminal server.
//
// Configuration is layered: built-in defaults, then an optional YAML file
// (--config or TREX_CONFIG), then environment variables. CLI flags are applied
// on top by cmd/server.
//
// Configuration Sections:
//   - Server: HTTP listen address
//   - Terminal: shell, working directory, output batching, close grace
//   - Tmux: discovery poll intervals, back-off, socket, env-marker prefix
//   - WebSocket: origins, keepalive, read limit, create rate limit
//   - Logging: Log level and output format
//   - RateLimit: Per-IP HTTP rate limiting
//
// Environment Variables:
//   - PORT, HOST
//   - SHELL, SHELL_ARGS, WORK_DIR, TERM_TYPE, OUTPUT_BATCH_WINDOW, OUTPUT_MAX_BATCH, CLOSE_GRACE, INPUT_QUEUE
//   - TMUX_ENABLED, TMUX_BINARY, TMUX_SOCKET, TMUX_CLIENT_INTERVAL, TMUX_SESSION_INTERVAL,
//     TMUX_COMMAND_TIMEOUT, TMUX_FAILURE_THRESHOLD, TMUX_MAX_BACKOFF, TMUX_ENV_PREFIX
//   - WS_ALLOWED_ORIGINS, WS_PING_INTERVAL, WS_WRITE_TIMEOUT, WS_READ_LIMIT, WS_CREATE_RATE, WS_CREATE_BURST
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
