// Package logging configures the global zerolog logger for the binaries.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup installs the console writer (or plain JSON lines) on stderr and sets the global level.
// Unknown levels fall back to info.
func Setup(level string, jsonOutput bool) {
	setup(os.Stderr, level, jsonOutput)
}

func setup(out io.Writer, level string, jsonOutput bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if jsonOutput {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out})
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
