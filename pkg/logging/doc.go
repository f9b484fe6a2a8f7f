// Package logging provides structured logging configuration for wshandshake.
//
// This package wraps log/slog so that the dialer, the transport and the CLI
// log the same way. It supports configurable log levels and output formats.
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelDebug,
//	    Format: logging.FormatJSON,
//	})
//
//	log := logging.WithComponent(logger, "dialer")
//	log.Debug("state transition", logging.KeyState, "connecting")
//
// # Log Levels
//
// Four log levels are supported:
//   - Debug: every handshake state transition and transport step
//   - Info: handshake outcomes
//   - Warn: authentication and certificate problems
//   - Error: failures the caller did not ask for
//
// # Fan-out
//
// Tee combines handlers, for example stderr plus a log file.
//
// # Integration
//
// Components accept a *slog.Logger in their options. If none is provided
// they use logging.Nop().
package logging
