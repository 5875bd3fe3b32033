package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. format is "console" for
// human-readable output or "json".
func Setup(level, format string) error {
	return SetupWriter(os.Stdout, level, format)
}

func SetupWriter(out io.Writer, level, format string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = out
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		w = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
			cw.Out = out
			cw.TimeFormat = time.RFC3339
		})
	case "json":
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	log.Logger = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	// Code paths without a request-scoped logger fall back to the global one.
	zerolog.DefaultContextLogger = &log.Logger
	return nil
}
