// Package logging builds the slog loggers used across the engine and its
// adapters.
package logging

import (
	"log/slog"
	"os"
)

// normalizeAttrs keeps log output grep-friendly across packages: errors
// always appear under "err" and sessions under "session_id", whichever key
// the call site used.
func normalizeAttrs(groups []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case "error":
		a.Key = "err"
	case "session":
		a.Key = "session_id"
	}
	return a
}

// New creates the application logger. Output goes to stderr: stdout carries
// conversation text in the chat command and JSON-RPC in the MCP stdio
// transport, so it must stay clean.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: normalizeAttrs,
	}))
}

// NewNop returns a logger that discards everything. Constructors default to
// it so a missing WithLogger option never panics.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
