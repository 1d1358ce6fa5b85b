// Package log configures the process-wide zerolog logger.
package log

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger so callers can pass the bare logger around.
type Logger struct {
	zerolog.Logger
}

// New builds a logger with the given level and output style. Unknown levels
// fall back to info.
func New(level string, pretty bool) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out = os.Stdout
	logger := zerolog.New(out)
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	logger = logger.Level(lvl).With().Timestamp().Logger()
	return Logger{logger}
}

// Nop returns a disabled logger for tests.
func Nop() Logger {
	return Logger{zerolog.Nop()}
}
