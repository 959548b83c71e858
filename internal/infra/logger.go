package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs a zerolog.Logger for the studio. Development builds get
// debug level and human readable console output.
func NewLogger(appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("app", "loom").
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}

// Logger aliases the zerolog.Logger so callers outside the infra package can
// depend on the logging contract without importing the third-party module
// directly.
type Logger = zerolog.Logger

// DiscardLogger is used by components constructed without a logger.
func DiscardLogger() Logger {
	return zerolog.New(io.Discard)
}

// OrDiscard dereferences l, substituting a discarding logger for nil.
func OrDiscard(l *Logger) Logger {
	if l == nil {
		return DiscardLogger()
	}
	return *l
}
