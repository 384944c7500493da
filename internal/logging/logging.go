package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfoltran/webstart/internal/config"
)

// New builds the process logger. Console format renders human-readable lines
// with RFC3339 timestamps; json writes one JSON object per event.
func New(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	var w io.Writer
	switch cfg.Format {
	case "json":
		w = out
	default:
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(w).With().Timestamp().Logger()

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}
