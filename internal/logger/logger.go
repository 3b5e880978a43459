// Package logger configures the process-wide zerolog logger.
package logger

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var once sync.Once

// Init configures the global logger. level accepts zerolog level names
// ("debug", "info", ...); pretty switches to the console writer for
// interactive use. Init is safe to call more than once; only the first
// call takes effect.
func Init(level string, pretty bool) {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339

		lvl, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil || level == "" {
			lvl = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(lvl)

		if pretty {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		} else {
			log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		}
	})
}

// Get returns the global logger.
func Get() zerolog.Logger {
	return log.Logger
}

// With returns a child logger tagged with a component name.
func With(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}
