// Package logging provides structured logging for hadeploy via zerolog.
//
// User-facing progress is printed by the CLI layer; these logs carry
// diagnostic detail and always go to stderr so they never mix with
// --json output on stdout.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	Init(nil)
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
}

// Init configures the package logger. A nil writer selects a console
// writer on stderr.
func Init(w io.Writer) {
	if w == nil {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	logger = zerolog.New(w).With().Timestamp().Logger()
}

// SetVerbose lowers the global level to debug.
func SetVerbose(verbose bool) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
}

// Debug returns a debug event scoped to the given component.
func Debug(component string) *zerolog.Event {
	return logger.Debug().Str("component", component)
}

// Info returns an info event scoped to the given component.
func Info(component string) *zerolog.Event {
	return logger.Info().Str("component", component)
}

// Warn returns a warn event scoped to the given component.
func Warn(component string) *zerolog.Event {
	return logger.Warn().Str("component", component)
}

// Error returns an error event scoped to the given component.
func Error(component string) *zerolog.Event {
	return logger.Error().Str("component", component)
}
