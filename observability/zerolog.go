package observability

import (
	"io"

	"github.com/rs/zerolog"
)

// zerologLogger adapts a zerolog.Logger to the Logger interface.
type zerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger returns a Logger writing JSON lines to w at the given
// level ("debug", "info", "warn", "error"; unknown values fall back to info).
//
//nolint:ireturn // Factory returns the interface for dependency injection
func NewZerologLogger(w io.Writer, level string) Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return &zerologLogger{
		log: zerolog.New(w).Level(lvl).With().Timestamp().Logger(),
	}
}

// WrapZerolog adapts an existing zerolog.Logger.
//
//nolint:ireturn // Factory returns the interface for dependency injection
func WrapZerolog(log zerolog.Logger) Logger {
	return &zerologLogger{log: log}
}

func (l *zerologLogger) Debug(msg string, fields ...Field) {
	l.emit(l.log.Debug(), msg, fields)
}

func (l *zerologLogger) Info(msg string, fields ...Field) {
	l.emit(l.log.Info(), msg, fields)
}

func (l *zerologLogger) Warn(msg string, fields ...Field) {
	l.emit(l.log.Warn(), msg, fields)
}

func (l *zerologLogger) Error(msg string, fields ...Field) {
	l.emit(l.log.Error(), msg, fields)
}

//nolint:ireturn // Must return the interface to satisfy Logger
func (l *zerologLogger) With(fields ...Field) Logger {
	ctx := l.log.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &zerologLogger{log: ctx.Logger()}
}

func (l *zerologLogger) emit(ev *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}
