// Package logging builds the slog loggers used across the daemon and CLI.
//
// It provides console and JSON handlers, standardized attribute keys for
// job identity, and small helpers (NewComponentLogger, WithJob, NewNop) so
// every subsystem logs with the same shape.
package logging
