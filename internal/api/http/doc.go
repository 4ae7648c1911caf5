// Package http provides the REST endpoints served next to the terminal
// channel.
//
// Endpoints:
//   - Health: / and /health
//   - Sessions: /api/sessions, /api/sessions/:id
//   - Tmux: /api/tmux/sessions
//   - Metrics: /metrics/json (Prometheus text is served at /metrics)
//
// Everything here is read-only. Sessions are created and driven over the
// WebSocket channel, never over REST.
package http
