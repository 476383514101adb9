package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level represents log severity levels.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel parses debug, info, warn or error. An empty string is info.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level %q", level)
	}
}

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// F creates a new Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger is the interface for all logger implementations.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
}

// SlogLogger writes through a log/slog handler.
type SlogLogger struct {
	l *slog.Logger
}

// New creates a logger writing to w in the given format.
func New(w io.Writer, level Level, format Format) *SlogLogger {
	opts := &slog.HandlerOptions{Level: level.slogLevel()}

	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &SlogLogger{l: slog.New(h)}
}

// NewStderrLogger creates a text logger that writes to stderr.
func NewStderrLogger(level Level) *SlogLogger {
	return New(os.Stderr, level, FormatText)
}

// Nop returns a logger that discards everything.
func Nop() *SlogLogger {
	return New(io.Discard, LevelError, FormatText)
}

// Slog exposes the underlying *slog.Logger.
func (s *SlogLogger) Slog() *slog.Logger { return s.l }

func (s *SlogLogger) Debug(msg string, fields ...Field) { s.log(slog.LevelDebug, msg, fields) }
func (s *SlogLogger) Info(msg string, fields ...Field)  { s.log(slog.LevelInfo, msg, fields) }
func (s *SlogLogger) Warn(msg string, fields ...Field)  { s.log(slog.LevelWarn, msg, fields) }
func (s *SlogLogger) Error(msg string, fields ...Field) { s.log(slog.LevelError, msg, fields) }

func (s *SlogLogger) WithFields(fields ...Field) Logger {
	return &SlogLogger{l: s.l.With(toArgs(fields)...)}
}

func (s *SlogLogger) log(level slog.Level, msg string, fields []Field) {
	s.l.Log(context.Background(), level, msg, toArgs(fields)...)
}

func toArgs(fields []Field) []any {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, slog.Any(f.Key, f.Value))
	}
	return args
}

// FileLogger logs to a file.
type FileLogger struct {
	*SlogLogger
	file *os.File
}

// NewFileLogger creates a logger that appends to a file.
func NewFileLogger(path string, level Level, format Format) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &FileLogger{
		SlogLogger: New(file, level, format),
		file:       file,
	}, nil
}

// Close closes the log file.
func (l *FileLogger) Close() error {
	return l.file.Close()
}

// MultiLogger composes multiple loggers together.
type MultiLogger struct {
	loggers []Logger
	fields  []Field
}

// NewMultiLogger creates a logger that writes to multiple destinations.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) Debug(msg string, fields ...Field) {
	for _, l := range m.loggers {
		l.Debug(msg, m.merge(fields)...)
	}
}

func (m *MultiLogger) Info(msg string, fields ...Field) {
	for _, l := range m.loggers {
		l.Info(msg, m.merge(fields)...)
	}
}

func (m *MultiLogger) Warn(msg string, fields ...Field) {
	for _, l := range m.loggers {
		l.Warn(msg, m.merge(fields)...)
	}
}

func (m *MultiLogger) Error(msg string, fields ...Field) {
	for _, l := range m.loggers {
		l.Error(msg, m.merge(fields)...)
	}
}

func (m *MultiLogger) WithFields(fields ...Field) Logger {
	newLoggers := make([]Logger, len(m.loggers))
	copy(newLoggers, m.loggers)
	return &MultiLogger{
		loggers: newLoggers,
		fields:  m.merge(fields),
	}
}

func (m *MultiLogger) merge(fields []Field) []Field {
	out := make([]Field, 0, len(m.fields)+len(fields))
	out = append(out, m.fields...)
	return append(out, fields...)
}
