// Package logging builds the zerolog loggers used by the peer and the
// bootstrap server.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "15:04:05.000"

// Options selects level, encoding and destination.
type Options struct {
	Level string
	JSON  bool
	// Writer defaults to stderr so stdout stays free for the command surface.
	Writer io.Writer
}

// New returns a logger with a timestamp and the requested level. Unknown
// levels fall back to info.
func New(opts Options) zerolog.Logger {
	zerolog.ErrorFieldName = "err"
	out := opts.Writer
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: consoleTimeFormat}
	}
	return zerolog.New(out).
		Level(ParseLevel(opts.Level, zerolog.InfoLevel)).
		With().
		Timestamp().
		Logger()
}

// ParseLevel maps "debug", "warn", ... to a zerolog level.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return def
	}
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return def
	}
	return lvl
}

// CronLogger adapts a zerolog logger to the cron.Logger interface. Info
// chatter from the cron run loop is demoted to trace.
type CronLogger struct {
	Log zerolog.Logger
}

func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Log.Trace().Fields(keysAndValues).Msg("cron " + msg)
}

func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Log.Error().Err(err).Fields(keysAndValues).Msg("cron " + msg)
}
