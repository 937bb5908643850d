package observability

import "time"

// RequestEvent describes one request attempt, success or failure, as seen by
// the request pipeline.
type RequestEvent struct {
	Endpoint string
	Method   string
	Path     string

	// Attempt is 1-based; retries of the same request increment it.
	Attempt int

	Duration time.Duration

	// Outcome is the classified result: "ok", "transient_network",
	// "server_error", "client_error", or "unauthenticated".
	Outcome string
}

// Sink receives request events fire-and-forget. A sink must never influence
// request outcomes; the pipeline isolates panics and ignores anything a sink
// does.
type Sink interface {
	Record(event RequestEvent)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(event RequestEvent)

func (f SinkFunc) Record(event RequestEvent) { f(event) }

type noopSink struct{}

// NoopSink returns a sink that drops all events.
func NoopSink() Sink {
	return &noopSink{}
}

func (s *noopSink) Record(RequestEvent) {}
