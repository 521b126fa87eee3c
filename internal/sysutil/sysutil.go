// Package sysutil holds process-level helpers shared by the binaries.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var levels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
	"panic":   zerolog.PanicLevel,
}

// ParseLevel maps a configured level name to zerolog, case-insensitively.
// Unknown or empty names mean info.
func ParseLevel(name string) zerolog.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(name))]; ok {
		return l
	}
	return zerolog.InfoLevel
}

// SetLogLevel sets the zerolog global level from a level name.
func SetLogLevel(name string) { zerolog.SetGlobalLevel(ParseLevel(name)) }

// ConfigureLogger installs the global logger on w (stderr if nil): JSON lines
// by default, a console writer when pretty is set.
func ConfigureLogger(level string, pretty bool, w io.Writer) {
	SetLogLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if w == nil {
		w = os.Stderr
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// WarnInsecureDefaults emits one warning per setting that still holds a
// shipped placeholder.
func WarnInsecureDefaults(logger zerolog.Logger, environment string, settings []string) {
	for _, name := range settings {
		logger.Warn().
			Str("setting", name).
			Str("environment", environment).
			Msg("insecure default in use; override before exposing the service")
	}
}

// IsTruthy accepts 1, true, yes, y and on in any case.
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// FirstNonEmpty returns the first argument that is not blank, unmodified.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
