// Package logging builds the slog loggers used across the triage daemon and
// CLI. It wires level/format configuration, multi-destination output (stdout
// plus the daemon log file), and exposes thin attribute helpers so callers
// never import log/slog field constructors directly.
package logging
