package utils

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the root logger. debug overrides level.
func NewLogger(level string, pretty, debug bool) (zerolog.Logger, error) {
	var output io.Writer = os.Stdout
	if pretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	lvl := zerolog.InfoLevel
	if debug {
		lvl = zerolog.DebugLevel
	} else if level != "" {
		var err error
		lvl, err = zerolog.ParseLevel(level)
		if err != nil {
			return zerolog.New(output).With().Timestamp().Logger(), err
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(output).Level(lvl).With().Timestamp().Logger(), nil
}
