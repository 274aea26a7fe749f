package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config captures logging configuration options.
type Config struct {
	Level    string
	Dir      string
	Filename string
}

// Logger wraps slog with the tag-prefix convention used across the server:
// messages start with a module tag such as [PIPELINE] or [CACHE].
type Logger struct {
	slogger *slog.Logger
	handler *tagHandler
	file    *os.File
}

var DefaultLogger = &Logger{
	slogger: slog.New(newTagHandler(os.Stdout, slog.LevelInfo)),
}

const (
	colorReset = "\x1b[0m"
	colorTime  = "\x1b[90m"
	colorDebug = "\x1b[36m"
	colorInfo  = "\x1b[32m"
	colorWarn  = "\x1b[33m"
	colorError = "\x1b[31m"
)

var tagColors = map[string]string{
	"BOOT":     "\x1b[96m",
	"HTTP":     "\x1b[95m",
	"WS":       "\x1b[92m",
	"PIPELINE": "\x1b[94m",
	"AUDIO":    "\x1b[36m",
	"ASR":      "\x1b[35m",
	"MT":       "\x1b[34m",
	"TTS":      "\x1b[95m",
	"CACHE":    "\x1b[93m",
	"SIM":      "\x1b[92m",
	"HISTORY":  "\x1b[90m",
}

type tagHandler struct {
	console io.Writer
	file    io.Writer
	level   slog.Level
	mu      sync.Mutex
}

func newTagHandler(console io.Writer, level slog.Level) *tagHandler {
	return &tagHandler{console: console, level: level}
}

func (h *tagHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *tagHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	timeStr := r.Time.Format("2006-01-02 15:04:05.000")
	levelStr, levelColor := levelInfo(r.Level)

	msg := r.Message
	line := fmt.Sprintf("%s[%s]%s %s[%s]%s %s",
		colorTime, timeStr, colorReset,
		levelColor, levelStr, colorReset,
		colorizeTag(msg),
	)

	attrs := ""
	r.Attrs(func(a slog.Attr) bool {
		attrs += fmt.Sprintf(" %s=%v", a.Key, a.Value)
		return true
	})

	if _, err := fmt.Fprintln(h.console, line+attrs); err != nil {
		return err
	}
	if h.file != nil {
		plain := fmt.Sprintf("[%s] [%s] %s%s", timeStr, levelStr, msg, attrs)
		if _, err := fmt.Fprintln(h.file, plain); err != nil {
			return err
		}
	}
	return nil
}

func (h *tagHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *tagHandler) WithGroup(string) slog.Handler      { return h }

func levelInfo(level slog.Level) (string, string) {
	switch {
	case level >= slog.LevelError:
		return "ERROR", colorError
	case level >= slog.LevelWarn:
		return "WARN", colorWarn
	case level >= slog.LevelInfo:
		return "INFO", colorInfo
	default:
		return "DEBUG", colorDebug
	}
}

func colorizeTag(msg string) string {
	if !strings.HasPrefix(msg, "[") {
		return msg
	}
	end := strings.Index(msg, "]")
	if end < 0 {
		return msg
	}
	tag := msg[1:end]
	color, ok := tagColors[tag]
	if !ok {
		return msg
	}
	return color + msg[:end+1] + colorReset + msg[end+1:]
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a Logger writing coloured output to stdout and, when a
// directory is configured, plain text to a log file.
func New(cfg Config) (*Logger, error) {
	handler := newTagHandler(os.Stdout, parseLevel(cfg.Level))

	var file *os.File
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		name := cfg.Filename
		if name == "" {
			name = "server.log"
		}
		f, err := os.OpenFile(filepath.Join(cfg.Dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		handler.file = f
		file = f
	}

	return &Logger{
		slogger: slog.New(handler),
		handler: handler,
		file:    file,
	}, nil
}

// Slog exposes the structured logger for integrations that expect slog.
func (l *Logger) Slog() *slog.Logger {
	return l.slogger
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) Debug(format string, args ...any) {
	l.slogger.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...any) {
	l.slogger.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.slogger.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.slogger.Error(fmt.Sprintf(format, args...))
}

// DebugTag logs with a module tag prefix, e.g. DebugTag("CACHE", "miss %s", k).
func (l *Logger) DebugTag(tag, format string, args ...any) {
	l.slogger.Debug(fmt.Sprintf("[%s] ", tag) + fmt.Sprintf(format, args...))
}

func (l *Logger) InfoTag(tag, format string, args ...any) {
	l.slogger.Info(fmt.Sprintf("[%s] ", tag) + fmt.Sprintf(format, args...))
}

func (l *Logger) WarnTag(tag, format string, args ...any) {
	l.slogger.Warn(fmt.Sprintf("[%s] ", tag) + fmt.Sprintf(format, args...))
}

func (l *Logger) ErrorTag(tag, format string, args ...any) {
	l.slogger.Error(fmt.Sprintf("[%s] ", tag) + fmt.Sprintf(format, args...))
}
