// Package logging builds the zerolog loggers shared by the pool owner, its
// workers and the CLI client.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ParseLevel maps a level name to a zerolog level. Empty and unknown names
// mean info; "off" disables logging.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "disabled":
		return zerolog.Disabled
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New returns a logger writing JSON lines to w, tagging every line with the
// current process id.
func New(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Int("pid", os.Getpid()).
		Logger()
}

// NewConsole is New with human-readable output, used by interactive CLI commands.
func NewConsole(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return New(level, zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
}
