// Package govlog wraps zerolog for the governor's internal diagnostics.
//
// Unlike an application logger, a library logger must never mutate global
// state on import (no package init(), no SetGlobalLevel) and must default
// to doing nothing when the caller hasn't configured one — silence is the
// correct default for an imported package.
package govlog

import (
	"io"

	"github.com/rs/zerolog"
)

// Logger is a thin wrapper around a zerolog.Logger, giving the governor a
// small, stable logging surface independent of zerolog's own API.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger writing structured records to w.
func New(w io.Writer) *Logger {
	return &Logger{zl: zerolog.New(w).With().Timestamp().Logger()}
}

// Noop returns a logger that discards everything. Used as the governor's
// default when no logger is supplied in Config.
func Noop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Debug returns a debug-level event builder.
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }

// Warn returns a warn-level event builder.
func (l *Logger) Warn() *zerolog.Event { return l.zl.Warn() }

// With returns a child-logger context for attaching persistent fields.
func (l *Logger) With() zerolog.Context { return l.zl.With() }
