package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5/middleware"
)

// Logger writes JSON lines tagged with the service, host, action and the
// request id that chi's RequestID middleware stored in the context.
type Logger struct {
	service  string
	hostname string
	handler  *slog.Logger
}

func New(service string) *Logger {
	return NewWithWriter(service, os.Stdout)
}

func NewWithWriter(service string, w io.Writer) *Logger {
	hostname, _ := os.Hostname()
	return &Logger{
		service:  service,
		hostname: hostname,
		handler: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})),
	}
}

// Discard is used by tests and by components constructed without a logger.
func Discard() *Logger {
	return NewWithWriter("discard", io.Discard)
}

func (l *Logger) Debug(ctx context.Context, action, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelDebug, action, msg, attrs)
}

func (l *Logger) Info(ctx context.Context, action, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelInfo, action, msg, attrs)
}

func (l *Logger) Warn(ctx context.Context, action, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelWarn, action, msg, attrs)
}

func (l *Logger) Error(ctx context.Context, action, msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.log(ctx, slog.LevelError, action, msg, attrs)
}

func (l *Logger) log(ctx context.Context, level slog.Level, action, msg string, attrs []slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	base := []slog.Attr{
		slog.String("service", l.service),
		slog.String("hostname", l.hostname),
		slog.String("action", action),
	}
	if id := middleware.GetReqID(ctx); id != "" {
		base = append(base, slog.String("request_id", id))
	}
	l.handler.LogAttrs(ctx, level, msg, append(base, attrs...)...)
}
