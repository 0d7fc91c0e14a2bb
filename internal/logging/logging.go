package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured logging attribute.
type Field struct {
	Key   string
	Value any
}

// Convenience helpers for common field types.
func String(key, value string) Field             { return Field{Key: key, Value: value} }
func Int(key string, value int) Field            { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field    { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field          { return Field{Key: key, Value: value} }
func Duration(key string, d time.Duration) Field { return Field{Key: key, Value: d} }
func Any(key string, value any) Field            { return Field{Key: key, Value: value} }

// Err attaches err under the "error" key.
func Err(err error) Field { return Field{Key: "error", Value: err} }

// Logger is a small structured logging interface. The default implementation
// is backed by zap; tests can inject any core through NewWithCore.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Config controls basic logger behaviour.
type Config struct {
	Level     string `koanf:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format    string `koanf:"format" validate:"omitempty,oneof=json console text"`
	AddSource bool   `koanf:"add_source"`
}

// New constructs a Logger writing to stdout with the provided config.
func New(cfg Config) Logger {
	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "json":
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(ec)
	default:
		ec := zap.NewDevelopmentEncoderConfig()
		enc = zapcore.NewConsoleEncoder(ec)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), parseLevel(cfg.Level))
	var opts []zap.Option
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	return &zapLogger{l: zap.New(core, opts...)}
}

// NewWithCore wraps an arbitrary zap core, typically an observer in tests.
func NewWithCore(core zapcore.Core) Logger {
	return &zapLogger{l: zap.New(core)}
}

// Noop returns a logger that drops all logs.
func Noop() Logger { return noopLogger{} }

type zapLogger struct {
	l *zap.Logger
}

func (z *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{l: z.l.With(toZap(fields)...)}
}

func (z *zapLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	z.l.Debug(msg, withContext(ctx, fields)...)
}

func (z *zapLogger) Info(ctx context.Context, msg string, fields ...Field) {
	z.l.Info(msg, withContext(ctx, fields)...)
}

func (z *zapLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	z.l.Warn(msg, withContext(ctx, fields)...)
}

func (z *zapLogger) Error(ctx context.Context, msg string, fields ...Field) {
	z.l.Error(msg, withContext(ctx, fields)...)
}

type noopLogger struct{}

func (noopLogger) With(fields ...Field) Logger             { return noopLogger{} }
func (noopLogger) Debug(context.Context, string, ...Field) {}
func (noopLogger) Info(context.Context, string, ...Field)  {}
func (noopLogger) Warn(context.Context, string, ...Field)  {}
func (noopLogger) Error(context.Context, string, ...Field) {}

// withContext appends the poll_id carried by ctx, if any.
func withContext(ctx context.Context, fields []Field) []zap.Field {
	zf := toZap(fields)
	if id := PollIDFromContext(ctx); id != "" {
		zf = append(zf, zap.String("poll_id", id))
	}
	return zf
}

func toZap(fields []Field) []zap.Field {
	zf := make([]zap.Field, 0, len(fields)+1)
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			if v == nil {
				continue
			}
			zf = append(zf, zap.NamedError(f.Key, v))
		case time.Duration:
			zf = append(zf, zap.Duration(f.Key, v))
		default:
			zf = append(zf, zap.Any(f.Key, v))
		}
	}
	return zf
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ---- Poll-scoped helpers ----

type ctxKey string

const (
	pollIDKey ctxKey = "poll_id"
	loggerKey ctxKey = "logger"
)

// EnsurePollID attaches a poll_id to the context if absent and returns the
// updated context plus the ID. One ID spans a feed fetch and every arc
// spawned from its records.
func EnsurePollID(ctx context.Context) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if id := PollIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return ContextWithPollID(ctx, id), id
}

// ContextWithPollID stores poll_id in context.
func ContextWithPollID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, pollIDKey, id)
}

// PollIDFromContext extracts poll_id from context.
func PollIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(pollIDKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithLogger stores a logger on the context.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	if l == nil {
		l = Noop()
	}
	return context.WithValue(ctx, loggerKey, l)
}

// LoggerFromContext fetches a logger from context if present; otherwise it
// returns Noop.
func LoggerFromContext(ctx context.Context) Logger {
	if ctx == nil {
		return Noop()
	}
	if v, ok := ctx.Value(loggerKey).(Logger); ok {
		return v
	}
	return Noop()
}
