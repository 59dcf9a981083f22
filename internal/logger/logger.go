package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Logger struct {
	*slog.Logger
}

func New(logLevel string) *Logger {
	return NewWithWriter(os.Stdout, logLevel)
}

// NewWithWriter builds a JSON logger writing to w.
func NewWithWriter(w io.Writer, logLevel string) *Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(logLevel),
		AddSource: logLevel == "debug",
	}

	handler := slog.NewJSONHandler(w, opts)

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything, for tests and tools.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
	}
}

func (l *Logger) WithFields(fields ...interface{}) *Logger {
	return &Logger{
		Logger: l.Logger.With(fields...),
	}
}

// RouteRequest logs the outcome of a kernel set/delete request.
func (l *Logger) RouteRequest(action, prefix string, hops int, duration int64, result string) {
	l.Info("Route request completed",
		slog.String("action", action),
		slog.String("prefix", prefix),
		slog.Int("hops", hops),
		slog.Int64("duration_ms", duration),
		slog.String("result", result))
}

// MessageDropped logs a notification that did not produce an object.
// Policy drops are routine and go to debug; malformed input is reported at
// info with the reason.
func (l *Logger) MessageDropped(channel string, malformed bool, reason string) {
	if malformed {
		l.Info("Malformed netlink message dropped",
			slog.String("channel", channel),
			slog.String("reason", reason))
		return
	}
	l.Debug("Netlink message filtered",
		slog.String("channel", channel),
		slog.String("reason", reason))
}

func (l *Logger) PublishFailed(channel, key string, err error) {
	l.Warn("Failed to publish object",
		slog.String("channel", channel),
		slog.String("key", key),
		slog.Any("error", err))
}

func (l *Logger) ResyncIssued(channel string, family int, seq uint32) {
	l.Info("Full table dump requested",
		slog.String("channel", channel),
		slog.Int("family", family),
		slog.Uint64("seq", uint64(seq)))
}

func (l *Logger) ServiceStart(version, pid string) {
	l.Info("Service starting",
		slog.String("version", version),
		slog.String("pid", pid))
}

func (l *Logger) ServiceStop() {
	l.Info("Service stopping")
}

func (l *Logger) ConfigLoaded(file string, channels int) {
	l.Info("Configuration loaded",
		slog.String("config_file", file),
		slog.Int("channels", channels))
}

func (l *Logger) Performance(operation string, metrics map[string]interface{}) {
	args := []interface{}{
		"operation", operation,
	}

	for k, v := range metrics {
		args = append(args, k, v)
	}

	l.Debug("performance metrics", args...)
}
