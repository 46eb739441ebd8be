// Package platform holds process-level helpers shared by the commands.
package platform

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig selects the process logger's level and encoding.
type LogConfig struct {
	Level  string
	Format string // json or console
	// Output defaults to stdout.
	Output io.Writer
}

// InitLogger builds the process logger and installs it as the global
// zerolog logger. JSON goes to cfg.Output unless console output is requested
// or ENV=development.
func InitLogger(cfg LogConfig) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	return newLogger(cfg, out)
}

func newLogger(cfg LogConfig, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if strings.EqualFold(cfg.Format, "console") || os.Getenv("ENV") == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}
