// Package logger provides leveled logging with support for debug, info, warn, and error levels.
// It wraps zerolog: "json" format writes one JSON object per line, "text" writes
// human-readable console lines.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu            sync.RWMutex
	defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	pretty        bool
)

// ParseLevel maps a level name onto a zerolog level. Unknown names fall back
// to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init initializes the default logger with the specified level and format
func Init(level string, format string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	mu.Lock()
	defer mu.Unlock()
	pretty = strings.ToLower(format) == "text"
	defaultLogger = build(os.Stderr).Level(ParseLevel(level))
}

// SetOutput redirects the default logger, keeping its level and format.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = build(w).Level(defaultLogger.GetLevel())
}

func build(w io.Writer) zerolog.Logger {
	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000", NoColor: true}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// Component returns a child logger that tags every entry with name.
func Component(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger.With().Str("component", name).Logger()
}

// Base returns the default logger for packages that tag their own entries.
func Base() zerolog.Logger {
	return *current()
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := defaultLogger
	return &l
}

// Debug logs a message at DebugLevel
func Debug(format string, args ...interface{}) {
	current().Debug().Msgf(format, args...)
}

// Info logs a message at InfoLevel
func Info(format string, args ...interface{}) {
	current().Info().Msgf(format, args...)
}

// Warn logs a message at WarnLevel
func Warn(format string, args ...interface{}) {
	current().Warn().Msgf(format, args...)
}

// Error logs a message at ErrorLevel
func Error(format string, args ...interface{}) {
	current().Error().Msgf(format, args...)
}

// Fatal logs a message at FatalLevel and exits
func Fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	current().WithLevel(zerolog.FatalLevel).Msg(msg)
	os.Exit(1)
}
