// Package log configures the global zerolog logger once at startup,
// shared by both CLI entrypoints (run, backfill). Mirrors the
// teacher's cmd/cprotocol/main.go inline setup, pulled into a reusable
// helper since this module has two entrypoints that both need it.
package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the package-level zerolog logger for env
// ("development" or "production"): development gets a human-readable
// console writer, production gets structured JSON on stdout.
func Setup(env string) {
	zerolog.TimeFieldFormat = time.RFC3339

	if env == "production" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}
