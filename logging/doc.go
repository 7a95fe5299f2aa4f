// Package logging provides the minimal logging interface used across
// agentloop and adapters for log/slog.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) with slog-style key/value arguments. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping *slog.Logger
//   - NoOpLogger for silent operation (tests, library defaults)
//   - NewLogger for building a JSON or text slog handler from a Config
//
// Usage:
//
//	logger := logging.NewLogger(logging.LoggerConfig{Level: "debug", Format: "text"})
//	loop := agentloop.New(func(o *agentloop.Options) { o.Logger = logger })
package logging
