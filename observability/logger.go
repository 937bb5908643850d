// Package observability provides the pluggable logging, metrics, and
// request-event interfaces used throughout the gateway client. All of them
// default to no-op implementations, so instrumentation is strictly opt-in
// and never on the failure path of a request.
package observability

// Field is a structured logging field (key-value pair).
type Field struct {
	Key   string
	Value any
}

// Logger is the structured logging interface. Implementations can sit on any
// logging library; NewZerologLogger provides a ready-made zerolog adapter.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a logger with the given fields pre-populated on every
	// subsequent call.
	With(fields ...Field) Logger
}

type noopLogger struct{}

// NoopLogger returns a logger that discards everything. It is the default
// when no logger is configured.
//
//nolint:ireturn // Factory returns the interface for dependency injection
func NoopLogger() Logger {
	return &noopLogger{}
}

func (l *noopLogger) Debug(string, ...Field) {}
func (l *noopLogger) Info(string, ...Field)  {}
func (l *noopLogger) Warn(string, ...Field)  {}
func (l *noopLogger) Error(string, ...Field) {}

//nolint:ireturn // Must return the interface to satisfy Logger
func (l *noopLogger) With(...Field) Logger { return l }
