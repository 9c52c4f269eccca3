// Package logging builds the structured loggers used across chatbus.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const serviceName = "chatbus"

// New returns a logger tagged with the service and instance names.
func New(w io.Writer, level, instance string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).
		Level(lvl).
		With().
		Str("service", serviceName).
		Str("instance", instance).
		Timestamp().
		Logger()
}

// NewConsole returns a human-readable logger on stderr for CLI use.
func NewConsole(level, instance string) zerolog.Logger {
	return New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
		NoColor:    true,
	}, level, instance)
}
