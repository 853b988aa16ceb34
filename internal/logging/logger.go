// Package logging wraps rs/zerolog into the structured logger every other
// package in this module takes as a dependency, with an optional
// diode-backed async writer for the hot I/O paths (frame receipt, dispatch).
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
)

// Logger wraps a configured zerolog.Logger.
type Logger struct {
	logger zerolog.Logger
	config *Config
}

// Config controls level, format and destination.
type Config struct {
	Level      string `mapstructure:"level"`      // debug, info, warn, error
	Format     string `mapstructure:"format"`      // console, json
	Output     string `mapstructure:"output"`      // stdout, stderr, or a file path
	TimeFormat string `mapstructure:"timeFormat"`
	Caller     bool   `mapstructure:"caller"`
	Async      bool   `mapstructure:"async"`
}

// DefaultConfig returns the production-reasonable defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
		Caller:     true,
		Async:      false,
	}
}

// New builds a Logger from config. A nil config uses DefaultConfig.
func New(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	zerolog.TimeFieldFormat = config.TimeFormat

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.Level, err)
	}

	var output io.Writer
	switch strings.ToLower(config.Output) {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		if err := ensureDir(filepath.Dir(config.Output)); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", config.Output, err)
		}
		output = file
	}

	if config.Async {
		output = diode.NewWriter(output, 1000, 10*time.Millisecond, func(missed int) {
			fmt.Fprintf(os.Stderr, "logger dropped %d messages\n", missed)
		})
	}

	var zl zerolog.Logger
	switch strings.ToLower(config.Format) {
	case "console":
		zl = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: config.TimeFormat})
	case "json":
		zl = zerolog.New(output)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", config.Format)
	}

	zl = zl.With().Timestamp().Logger()
	if config.Caller {
		zl = zl.With().Caller().Logger()
	}
	zl = zl.Level(level)

	return &Logger{logger: zl, config: config}, nil
}

// Raw exposes the underlying zerolog.Logger for callers that want to attach
// fields (e.g. With().Str("chargePointId", id)).
func (l *Logger) Raw() zerolog.Logger { return l.logger }

func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}
func (l *Logger) Info(msg string) { l.logger.Info().Msg(msg) }
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}
func (l *Logger) Warn(msg string) { l.logger.Warn().Msg(msg) }
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}
func (l *Logger) Error(msg string) { l.logger.Error().Msg(msg) }
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}
func (l *Logger) ErrorWithErr(err error, msg string) { l.logger.Error().Err(err).Msg(msg) }

// With returns a child logger carrying chargePointId on every subsequent
// line, the shape nearly every handler/connection log call needs.
func (l *Logger) With(chargePointID string) *Logger {
	child := l.logger.With().Str("chargePointId", chargePointID).Logger()
	return &Logger{logger: child, config: l.config}
}

func ensureDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
