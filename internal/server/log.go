package server

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the service-wide structured logger. Format "pretty"
// switches to a console writer for local runs; everything else is JSON.
func NewLogger(level, format string) zerolog.Logger {
	var lvl zerolog.Level
	switch level {
	case "debug":
		lvl = zerolog.DebugLevel
	case "warn":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	default:
		lvl = zerolog.InfoLevel
	}

	var output io.Writer = os.Stdout
	if format == "pretty" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "gamerelay").
		Logger()
}

// recoverPanic contains a panic inside a long-lived goroutine. Used by the
// killer and the pump loops: a crashing victim cleanup or pipeline must not
// take the process down.
func recoverPanic(logger zerolog.Logger, where string) {
	if r := recover(); r != nil {
		logger.Error().
			Str("goroutine", where).
			Interface("panic_value", r).
			Str("stack_trace", string(debug.Stack())).
			Msg("Recovered panic")
	}
}
