// Package logger wraps zerolog with context-carried fields so request,
// contract and event identifiers follow a call through every layer.
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/assuredfarming/assured-farming-backend/pkg/env"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type Options struct {
	ServiceName string
	// Level is a zerolog level name. Empty or unknown means info.
	Level string
	// WarnStack attaches a stack trace to warn lines as well as errors.
	WarnStack bool
	Output    io.Writer
	// Format is json or console. Empty falls back to ASSURED_LOG_FORMAT.
	Format string
	// Instance tags every line when set.
	Instance string
}

type Logger struct {
	root      zerolog.Logger
	warnStack bool
}

type fieldsKey struct{}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

func writerFor(out io.Writer, format string) io.Writer {
	if out == nil {
		out = os.Stdout
	}
	if format == "" {
		format = env.Get("LOG_FORMAT", FormatJSON)
	}
	if strings.EqualFold(strings.TrimSpace(format), FormatConsole) {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	return out
}

func New(opts Options) *Logger {
	level := ParseLevel(opts.Level)

	zc := zerolog.New(writerFor(opts.Output, opts.Format)).With().
		Timestamp().
		Str("service", opts.ServiceName)
	if opts.Instance != "" {
		zc = zc.Str("instance", opts.Instance)
	}
	return &Logger{root: zc.Logger().Level(level), warnStack: opts.WarnStack}
}

// ParseLevel maps a config string to a level. Unknown values mean info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) from(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if zl, ok := ctx.Value(fieldsKey{}).(zerolog.Logger); ok {
			return zl
		}
	}
	return l.root
}

func (l *Logger) with(ctx context.Context, add func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, fieldsKey{}, add(l.from(ctx).With()).Logger())
}

// DebugEnabled lets callers skip building expensive debug fields.
func (l *Logger) DebugEnabled() bool {
	return l.root.GetLevel() <= zerolog.DebugLevel
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) })
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Fields(fields) })
}

func (l *Logger) str(ctx context.Context, key, value string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Str(key, value) })
}

func (l *Logger) WithRequestID(ctx context.Context, id string) context.Context {
	return l.str(ctx, "request_id", id)
}

func (l *Logger) WithUserID(ctx context.Context, id string) context.Context {
	return l.str(ctx, "user_id", id)
}

func (l *Logger) WithContractID(ctx context.Context, id string) context.Context {
	return l.str(ctx, "contract_id", id)
}

func (l *Logger) WithEscrowID(ctx context.Context, id string) context.Context {
	return l.str(ctx, "escrow_id", id)
}

func (l *Logger) WithActorRole(ctx context.Context, role string) context.Context {
	return l.str(ctx, "actor_role", role)
}

// WithEvent tags lines emitted while handling one outbox or webhook event.
func (l *Logger) WithEvent(ctx context.Context, eventType, eventID string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str("event_type", eventType).Str("event_id", eventID)
	})
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	zl := l.from(ctx)
	zl.Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	zl := l.from(ctx)
	zl.Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	zl := l.from(ctx)
	ev := zl.Warn()
	if l.warnStack {
		ev = ev.Str("stack", stack())
	}
	ev.Msg(msg)
}

// Error always carries a stack trace. err may be nil.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	zl := l.from(ctx)
	ev := zl.Error()
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Str("stack", stack()).Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
