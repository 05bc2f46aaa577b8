package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig contains logger configuration options.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string

	// Format is the output format (json, console, pretty).
	Format string

	// Output is the output destination (stdout, stderr). The loader defaults to
	// stderr so that stdout stays free for the progress stream.
	Output string

	// AddSource adds source file and line number to log entries.
	AddSource bool

	// TimeFormat is the time format for timestamps.
	TimeFormat string
}

// DefaultLoggingConfig returns a LoggingConfig with sensible defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stderr",
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// NewLogger creates a new zerolog logger based on configuration.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	var output io.Writer

	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	default:
		output = os.Stderr
	}

	return NewLoggerTo(output, cfg)
}

// NewLoggerTo creates a logger writing to output.
func NewLoggerTo(output io.Writer, cfg LoggingConfig) zerolog.Logger {
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	if strings.ToLower(cfg.Format) == "console" || strings.ToLower(cfg.Format) == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: zerolog.TimeFieldFormat,
		}
	}

	lc := zerolog.New(output).With().Timestamp().Str("service", "medline-loader")
	if cfg.AddSource {
		lc = lc.Caller()
	}

	return lc.Logger().Level(parseLevel(cfg.Level))
}

// parseLevel maps a configured level name to zerolog, accepting "warning"
// as an alias. Unknown or empty names fall back to info.
func parseLevel(level string) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = zerolog.LevelWarnValue
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || name == "" || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithRunLogContext adds the run ID and input source to a logger.
func WithRunLogContext(logger zerolog.Logger, runID, source string) zerolog.Logger {
	return logger.With().
		Str("run_id", runID).
		Str("source", source).
		Logger()
}

// WithCitationContext adds the pmid of the record being processed.
func WithCitationContext(logger zerolog.Logger, pmid string) zerolog.Logger {
	return logger.With().
		Str("pmid", pmid).
		Logger()
}

// WithComponent tags log lines with the emitting component.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}
