// Package logger provides the structured logging interface used across
// the docop core and its surrounding command surface.
package logger

import (
	"context"

	"go.uber.org/zap"
)

// Logger is the structured logging interface every docop component takes
// as a dependency instead of reaching for a package-level logger.
type Logger interface {
	Debug(string, ...zap.Field)
	Info(string, ...zap.Field)
	Warn(string, ...zap.Field)
	Error(string, ...zap.Field)

	DebugWithContext(context.Context, string, ...zap.Field)
	InfoWithContext(context.Context, string, ...zap.Field)
	WarnWithContext(context.Context, string, ...zap.Field)
	ErrorWithContext(context.Context, string, ...zap.Field)

	With(fields ...zap.Field) Logger
}

// ZapLogger is the zap-backed implementation used in production and by the
// docopbench CLI harness.
type ZapLogger struct {
	*zap.Logger
}

// MustNewZap builds a ZapLogger with the given level, panicking on
// construction failure since this only happens on malformed config.
func MustNewZap(level zap.AtomicLevel) *ZapLogger {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return &ZapLogger{Logger: l}
}

// NewNop returns a Logger that discards everything, for tests and as the
// default when an op is constructed with a nil logger.
func NewNop() *ZapLogger {
	return &ZapLogger{Logger: zap.NewNop()}
}

func (l *ZapLogger) With(fields ...zap.Field) Logger {
	return &ZapLogger{Logger: l.Logger.With(fields...)}
}

func (l *ZapLogger) Debug(msg string, fields ...zap.Field) { l.Logger.Debug(msg, fields...) }
func (l *ZapLogger) Info(msg string, fields ...zap.Field)  { l.Logger.Info(msg, fields...) }
func (l *ZapLogger) Warn(msg string, fields ...zap.Field)  { l.Logger.Warn(msg, fields...) }
func (l *ZapLogger) Error(msg string, fields ...zap.Field) { l.Logger.Error(msg, fields...) }

// The *WithContext variants exist so call sites can later thread
// request-scoped fields (trace id, statement id) without changing their
// signature; today they defer straight to the context-less form, ahead
// of trace correlation being wired in.
func (l *ZapLogger) DebugWithContext(_ context.Context, msg string, fields ...zap.Field) {
	l.Logger.Debug(msg, fields...)
}

func (l *ZapLogger) InfoWithContext(_ context.Context, msg string, fields ...zap.Field) {
	l.Logger.Info(msg, fields...)
}

func (l *ZapLogger) WarnWithContext(_ context.Context, msg string, fields ...zap.Field) {
	l.Logger.Warn(msg, fields...)
}

func (l *ZapLogger) ErrorWithContext(_ context.Context, msg string, fields ...zap.Field) {
	l.Logger.Error(msg, fields...)
}
