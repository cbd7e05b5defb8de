// Package logger provides leveled logging with support for debug, info, warn,
// and error levels. It wraps zerolog to provide level-based filtering with
// either JSON or human-readable console output.
package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var defaultLogger zerolog.Logger = zerolog.Nop()

// Init initializes the default logger with the specified level and format.
// Format "text" selects the console writer; anything else emits JSON.
func Init(level string, format string) {
	var l zerolog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = zerolog.DebugLevel
	case "info":
		l = zerolog.InfoLevel
	case "warn":
		l = zerolog.WarnLevel
	case "error":
		l = zerolog.ErrorLevel
	default:
		l = zerolog.InfoLevel
	}

	var out = os.Stderr
	if strings.ToLower(format) == "text" {
		writer := zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
		defaultLogger = zerolog.New(writer).Level(l).With().Timestamp().Logger()
		return
	}
	defaultLogger = zerolog.New(out).Level(l).With().Timestamp().Logger()
}

// Debug logs a message at debug level.
func Debug(format string, args ...interface{}) {
	defaultLogger.Debug().Msg(fmt.Sprintf(format, args...))
}

// Info logs a message at info level.
func Info(format string, args ...interface{}) {
	defaultLogger.Info().Msg(fmt.Sprintf(format, args...))
}

// Warn logs a message at warn level.
func Warn(format string, args ...interface{}) {
	defaultLogger.Warn().Msg(fmt.Sprintf(format, args...))
}

// Error logs a message at error level.
func Error(format string, args ...interface{}) {
	defaultLogger.Error().Msg(fmt.Sprintf(format, args...))
}

// Fatal logs a message at fatal level and exits.
func Fatal(format string, args ...interface{}) {
	defaultLogger.Fatal().Msg(fmt.Sprintf(format, args...))
	os.Exit(1)
}
