// Package middleware provides the HTTP middleware stack for the REST
// endpoints and the WebSocket upgrade route.
//
// Middleware stack includes:
//   - RequestLog: request identifiers and zap access logging
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket rate limiting
//
// Rate Limiting:
//   - Per-IP tracking; idle clients are forgotten after ten minutes
//   - Global rate limiting option
//
// Example Usage:
//
//	router.Use(middleware.RequestLog(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig(origins)))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
