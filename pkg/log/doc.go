// Package log provides protocol capture for INDI connections.
//
// This package defines the Logger interface and Event types for recording
// INDI traffic at multiple layers (transport, wire, service). It is separate
// from operational logging (slog): a capture is a machine-readable trace
// for debugging drivers and clients.
//
// # Basic Usage
//
//	// Development: log to console via slog
//	cfg.Logger = log.NewSlogAdapter(slog.Default())
//
//	// Production: write a capture file
//	fl, _ := log.NewFileLogger("/var/log/indi/server.ilog")
//	cfg.Logger = fl
//
//	// Both
//	cfg.Logger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: raw XML elements (FrameEvent)
//   - Wire: decoded messages (MessageEvent)
//   - Service: connection and session state changes (StateChangeEvent)
//
// Errors, including decode errors with the offending fragment, have their
// own event type.
//
// # File Format
//
// Capture files are a concatenation of CBOR-encoded events with the .ilog
// extension. The indi-log command views, filters and summarizes them.
package log
