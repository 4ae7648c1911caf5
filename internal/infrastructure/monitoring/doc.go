/*
Package monitoring provides Prometheus metrics for the terminal server.

# Overview

Each Metrics value owns a private registry, so constructing several
collectors in one process never trips duplicate registration.

# Metrics

- HTTP request count and latency (gin middleware)
- Session lifecycle: active gauge, creations by kind, exits by reason
- Bridge throughput: output bytes and batches
- WebSocket connections and messages by direction and type
- tmux discovery: polls by query and outcome, known sessions, effective poll interval

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
