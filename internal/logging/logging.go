// Package logging wraps log/slog behind a context-aware Logger so every
// component logs with the same fields and request correlation.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is a structured attribute attached to a log record.
type Field = slog.Attr

func String(key, value string) Field                 { return slog.String(key, value) }
func Int(key string, value int) Field                { return slog.Int(key, value) }
func Float(key string, value float64) Field          { return slog.Float64(key, value) }
func Duration(key string, value time.Duration) Field { return slog.Duration(key, value) }
func Any(key string, value any) Field                { return slog.Any(key, value) }

// Err records err's message under "error".
func Err(err error) Field {
	if err == nil {
		return slog.Any("error", nil)
	}
	return slog.String("error", err.Error())
}

// Logger is the logging surface used across the module.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Config selects level, encoding and destination.
type Config struct {
	Level     string // debug | info | warn | error
	Format    string // text | json
	AddSource bool

	// File routes output to a lumberjack-rotated file.
	File       string
	MaxSizeMB  int
	MaxBackups int

	// Output is used when File is empty; nil means stderr.
	Output io.Writer
}

const defaultMaxSizeMB = 50

// ConfigFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_FILE and LOG_SOURCE.
func ConfigFromEnv() Config {
	return Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		File:      os.Getenv("LOG_FILE"),
		AddSource: strings.EqualFold(os.Getenv("LOG_SOURCE"), "true"),
	}
}

// New builds a slog-backed Logger writing to cfg.Output. Unknown levels
// fall back to info and unknown formats to text. A configured File is
// ignored here; use Open so the file can be closed.
func New(cfg Config) Logger {
	cfg.File = ""
	l, _ := Open(cfg)
	return l
}

// Open is New with file support. The returned closer releases the rotated
// log file, or does nothing when logs go to a stream.
func Open(cfg Config) (Logger, io.Closer) {
	w, closer := cfg.writer()
	opts := &slog.HandlerOptions{Level: levelOf(cfg.Level), AddSource: cfg.AddSource}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	return &slogLogger{l: slog.New(h)}, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (c Config) writer() (io.Writer, io.Closer) {
	switch {
	case c.File != "":
		size := c.MaxSizeMB
		if size <= 0 {
			size = defaultMaxSizeMB
		}
		lj := &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    size,
			MaxBackups: c.MaxBackups,
			Compress:   true,
		}
		return lj, lj
	case c.Output != nil:
		return c.Output, nopCloser{}
	default:
		return os.Stderr, nopCloser{}
	}
}

func levelOf(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) With(fields ...Field) Logger {
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	return &slogLogger{l: s.l.With(args...)}
}

func (s *slogLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelDebug, msg, fields...)
}

func (s *slogLogger) Info(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelInfo, msg, fields...)
}

func (s *slogLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelWarn, msg, fields...)
}

func (s *slogLogger) Error(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelError, msg, fields...)
}

// Noop returns a Logger that discards everything.
func Noop() Logger { return discard{} }

type discard struct{}

func (discard) With(...Field) Logger                    { return discard{} }
func (discard) Debug(context.Context, string, ...Field) {}
func (discard) Info(context.Context, string, ...Field)  {}
func (discard) Warn(context.Context, string, ...Field)  {}
func (discard) Error(context.Context, string, ...Field) {}
