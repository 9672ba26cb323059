package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config controls the process logger. Output defaults to stdout as JSON;
// compliance tooling ingests these lines, so there is no console mode.
type Config struct {
	// Level is one of debug, info, warn, error. Unrecognized values fall
	// back to info.
	Level  string
	Output io.Writer
}

// Logger owns the root zerolog instance. Packages that log take a
// *zerolog.Logger; this wrapper exists only to build it consistently.
type Logger struct {
	zl zerolog.Logger
}

func NewLogger(cfg *Config) *Logger {
	if cfg == nil {
		cfg = &Config{}
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	zl := zerolog.New(out).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "phicore").
		Logger()

	return &Logger{zl: zl}
}

// Zerolog exposes the underlying logger for packages that take *zerolog.Logger.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

// With returns a child logger carrying the given component field.
func (l *Logger) With(component string) *zerolog.Logger {
	child := l.zl.With().Str("component", component).Logger()
	return &child
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
