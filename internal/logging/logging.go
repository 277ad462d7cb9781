// Package logging builds the zerolog logger that the CLI installs as the
// process-wide global logger; components log through that global.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger: pretty console output when pretty is
// true, JSON otherwise, at the level named by levelName. Matches
// the teacher's console-vs-JSON split for local runs versus production.
func New(w io.Writer, levelName string, pretty bool) zerolog.Logger {
	level := parseLevel(levelName)

	var out io.Writer = w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Default returns a logger writing JSON to stderr at info level, the
// production default when no explicit configuration is supplied.
func Default() zerolog.Logger {
	return New(os.Stderr, "info", false)
}

func parseLevel(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	case "", "info":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
