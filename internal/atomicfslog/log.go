// Package atomicfslog provides the structured logger used across the
// storage stack. It wraps zerolog the way the rest of the corpus wraps its
// chosen logging library: a single package-level constructor, a leveled
// logger value threaded through constructors, no global logger mutation
// from library code.
package atomicfslog

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger is the structured logger type used throughout internal/jbs and
// internal/afs. It is a thin alias over zerolog.Logger so call sites can
// use zerolog's chained event API directly.
type Logger = zerolog.Logger

// New builds a logger writing JSON lines to w at the given minimum
// level. Pass os.Stderr and zerolog.InfoLevel for CLI use; tests typically
// pass io.Discard.
func New(w io.Writer, level zerolog.Level) Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Nop returns a logger that discards everything, for tests and library
// callers that have not configured logging.
func Nop() Logger {
	return New(io.Discard, zerolog.Disabled)
}

// Default returns a JSON-lines stderr logger at info level, the
// logger cmd/atomicfs installs unless -v/-q changes the level.
func Default() Logger {
	return New(os.Stderr, zerolog.InfoLevel)
}

// NewOperationID returns a random UUID string for use as a correlation ID.
// Nothing attaches it to log lines automatically; no caller in this
// repository calls it.
func NewOperationID() string {
	return uuid.NewString()
}
