package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates a zerolog logger writing to out (stderr when nil).
// Supports console/json format and level names understood by zerolog.
func New(logLevel, logFormat string, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if out == nil {
		out = os.Stderr
	}
	writer := out
	switch logFormat {
	case "json":
	case "", "console":
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", logFormat)
	}

	return zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger(), nil
}
