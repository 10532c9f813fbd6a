// Package logging builds the zerolog loggers used across leaguesched.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EnvVar selects the output format. "dev" switches to a human readable
// console writer; anything else writes JSON lines.
const EnvVar = "LEAGUESCHED_ENV"

// New returns a logger writing to stderr tagged with component. Stdout is
// left to schedule output.
func New(component string) zerolog.Logger {
	return NewWithWriter(os.Stderr, component)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, component string) zerolog.Logger {
	if strings.ToLower(os.Getenv(EnvVar)) == "dev" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Str("component", component).Logger()
}

// Level parses a level name, falling back to info.
func Level(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil || name == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
