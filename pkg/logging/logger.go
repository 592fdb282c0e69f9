// Package logging configures structured logging using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs per-attempt request traces and scheduler waves.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs currency progress and run summaries.
	LevelInfo LogLevel = "info"

	// LevelWarn logs retries and degraded parses.
	LevelWarn LogLevel = "warn"

	// LevelError logs failed currencies and fatal configuration problems.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel `yaml:"level"`

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool `yaml:"pretty"`

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer `yaml:"-"`
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a LogLevel to a zerolog.Level. Unknown values map to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
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

// NewLogger creates a logger derived from the global one, tagged with a component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: request flow detail
//   - One line per fetch attempt (method, url, attempt)
//   - Scheduler run start/finish, cache hits
//   - Page metadata tokens that failed to parse
//
// Info: normal progress
//   - Currency discovered / started / written
//   - Run summary
//
// Warn: degraded but recoverable
//   - Non-200 responses being retried, timeouts being retried
//   - Cache or sink errors that do not abort the run
//
// Error: failures
//   - Pipeline failures (no output written for that currency)
//   - Configuration errors
//
// Context Fields:
//   - run_id: identifier of one CLI invocation
//   - currency: the entity being scraped
//   - page: 1-based page number
//   - attempt: fetch attempt number
//   - status: HTTP status code
//   - error_class: timeout, server, client, network
//   - duration: elapsed time
