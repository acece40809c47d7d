//go:build !logless

// Package logger provides the structured logger shared by the mapping and
// localization components. Logging is a side channel: building with the
// logless tag compiles it away without affecting results.
package logger

import (
	"os"

	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
)

var Log = logger.With().Caller().Logger().Output(zerolog.ConsoleWriter{Out: os.Stderr})

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

// Component returns a child logger tagged with the component name.
func Component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}
