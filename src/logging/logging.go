// Package logging provides a structured logger with info/warn/error/debug
// levels, backed by log/slog with rotating file output via lumberjack.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config tunes the rotating file sink. An empty File disables file
// output entirely and logs to stderr instead.
type Config struct {
	Level      string // debug, info, warn, error (default: info)
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultConfig logs at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: "info"}
}

// Logger is the structured logger passed to the registry, executor,
// and scheduler manager.
type Logger struct {
	slog *slog.Logger
}

// New builds a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	var sink io.Writer = os.Stderr
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, err
		}
		maxSize := cfg.MaxSizeMB
		if maxSize == 0 {
			maxSize = 10
		}
		maxBackups := cfg.MaxBackups
		if maxBackups == 0 {
			maxBackups = 5
		}
		maxAge := cfg.MaxAgeDays
		if maxAge == 0 {
			maxAge = 30
		}
		sink = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
			Compress:   cfg.Compress,
		}
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	return &Logger{slog: slog.New(slog.NewJSONHandler(sink, opts))}, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) Info(msg string, fields map[string]any)  { l.slog.Info(msg, attrs(fields)...) }
func (l *Logger) Warn(msg string, fields map[string]any)  { l.slog.Warn(msg, attrs(fields)...) }
func (l *Logger) Error(msg string, fields map[string]any) { l.slog.Error(msg, attrs(fields)...) }
func (l *Logger) Debug(msg string, fields map[string]any) { l.slog.Debug(msg, attrs(fields)...) }

func attrs(fields map[string]any) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}
