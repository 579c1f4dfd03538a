// Package log provides structured event logging for service discovery.
//
// This package defines the Logger interface and Event types for capturing
// scan-level events: outgoing multicast queries, received answers, session
// and cache state changes, and errors. It is separate from operational
// logging (slog) - event capture provides a complete machine-readable trace
// of a scan session for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.Logger = log.NewSlogAdapter(slog.Default())
//
//	// For offline analysis: write to binary file
//	cfg.Logger, _ = log.NewFileLogger("scan.sdlog")
//
//	// Both: use MultiLogger
//	cfg.Logger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with integer keys.
// Reader streams them back, optionally filtered by session, direction,
// category, service type, instance, or time window.
package log
