package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const redactedPlaceholder = "[redacted]"

// Logger is the subset of structured logging used across the module. Args
// are alternating key/value pairs or zap fields.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// New returns a Logger backed by the provided zap logger. Passing nil
// returns [Nop].
func New(logger *zap.Logger) Logger {
	if logger == nil {
		return Nop()
	}
	return &zapLogger{logger: logger.Sugar()}
}

// NewDevelopment returns a human-readable logger at the given level.
func NewDevelopment(level zapcore.Level) (Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return New(l), nil
}

// Nop returns a Logger that discards every entry.
func Nop() Logger {
	return &zapLogger{logger: zap.NewNop().Sugar()}
}

type zapLogger struct {
	logger *zap.SugaredLogger
}

func (l *zapLogger) Debug(msg string, args ...any) { l.logger.Debugw(msg, args...) }

func (l *zapLogger) Info(msg string, args ...any) { l.logger.Infow(msg, args...) }

func (l *zapLogger) Warn(msg string, args ...any) { l.logger.Warnw(msg, args...) }

func (l *zapLogger) Error(msg string, args ...any) { l.logger.Errorw(msg, args...) }

func (l *zapLogger) With(args ...any) Logger {
	return &zapLogger{logger: l.logger.With(args...)}
}

// Redacted marks a field whose value was intentionally withheld.
func Redacted(key string) zap.Field {
	return zap.String(key, redactedPlaceholder)
}

// Placeholder returns the canonical string that represents a redacted value.
func Placeholder() string {
	return redactedPlaceholder
}
