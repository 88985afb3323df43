package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level   string `json:"level"`   // debug, info, warn, error
	Output  string `json:"output"`  // "stdout", "stderr", or file path
	Console bool   `json:"console"` // Human-readable console output instead of JSON
}

// New creates the root logger. Components derive their own loggers via
// logger.With().Str("component", ...).Logger().
func New(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			output = file
		}
	}

	if cfg.Console {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	level := parseLevel(cfg.Level)
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
