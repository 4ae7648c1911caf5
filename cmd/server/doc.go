// Package main is the entry point for the trex terminal server.
//
// The server spawns shell and tmux-attach sessions on pseudo-terminals
// and multiplexes them to browser clients over one WebSocket per client.
//
// Configuration, lowest precedence first:
//   - Built-in defaults
//   - YAML file (--config or $TREX_CONFIG)
//   - Environment variables (PORT, HOST, SHELL, TMUX_ENABLED, ...)
//   - CLI flags
//
// Usage:
//
//	# Serve on the default address
//	trex
//
//	# Development mode (colored logs, debug level)
//	trex serve --dev --port 3000
//
//	# Inspect the local tmux server
//	trex tmux-sessions
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
