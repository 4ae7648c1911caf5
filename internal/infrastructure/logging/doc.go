// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Subsystems take a named child logger so every line carries its origin:
//
//	logger := logging.MustNew(logging.Config{Level: "info"})
//	reg := session.NewRegistry(opener, logger.Component("registry"), ...)
//	logger.Info("Server starting", zap.String("addr", addr))
package logging
