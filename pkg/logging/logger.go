// Package logging configures the process-wide zerolog logger.
//
// Console output is always written. When a file is configured, JSON lines are
// also written to a lumberjack-rotated file; a file that cannot be opened
// degrades to console-only logging instead of failing startup.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel is a textual level as it appears in configuration.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level written. Unknown values mean info.
	Level LogLevel

	// Pretty switches the console to zerolog's human-readable writer.
	Pretty bool

	// Output receives console logs (default os.Stderr).
	Output io.Writer

	// Service is attached to every line when set.
	Service string

	// File, when set, also receives JSON logs with rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Output:     os.Stderr,
		Service:    "image-proxy",
		MaxSizeMB:  100,
		MaxBackups: 10,
		Compress:   true,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup installs the global logger and returns it with a Closer for the log
// file. The Closer is never nil.
func Setup(cfg Config) (zerolog.Logger, io.Closer) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	console := cfg.Output
	if console == nil {
		console = os.Stderr
	}
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05.000"}
	}

	var closer io.Closer = nopCloser{}
	output := console
	rotator, fileErr := openRotator(cfg)
	if rotator != nil {
		output = zerolog.MultiLevelWriter(console, rotator)
		closer = rotator
	}

	lctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		lctx = lctx.Str("service", cfg.Service)
	}
	logger := lctx.Logger()
	log.Logger = logger

	if fileErr != nil {
		logger.Warn().Err(fileErr).Str("file", cfg.File).Msg("Log file unavailable, logging to console only")
	}
	return logger, closer
}

// openRotator returns nil, nil when no file is configured.
func openRotator(cfg Config) (*lumberjack.Logger, error) {
	if cfg.File == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}, nil
}

func parseLevel(level LogLevel) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(string(level)))
	if name == "warning" {
		name = "warn"
	}
	l, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		return zerolog.InfoLevel
	}
	return l
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Levels as used across the proxy:
//
//	debug  tier lookups, retry backoff, circuit-open fast fails
//	info   served requests, cache purges, startup and shutdown, metrics reports
//	warn   rejected paths, remote failures that fall back, breaker transitions, shared cache errors
//	error  recovered panics, 5xx responses, configuration errors
//
// Common fields: request_id, path, tier, status, duration, error_class, attempt.
