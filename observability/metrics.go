package observability

import "time"

// MetricsRecorder records counters and timings for the request pipeline.
// Implementations can sit on any metrics library (Prometheus, StatsD, ...).
type MetricsRecorder interface {
	// RecordRequest records one completed request attempt against the
	// gateway, with its classified outcome ("ok", "transient_network",
	// "server_error", "client_error", "unauthenticated").
	RecordRequest(method, path, outcome string, duration time.Duration)

	// RecordRetry records a retry of a request to path; attempt is 1-based.
	RecordRetry(attempt int, path string)

	// RecordError records a classified error surfaced by an operation.
	RecordError(operation, kind string)
}

type noopMetrics struct{}

// NoopMetricsRecorder returns a recorder that does nothing. It is the
// default when no recorder is configured.
func NoopMetricsRecorder() MetricsRecorder {
	return &noopMetrics{}
}

func (m *noopMetrics) RecordRequest(string, string, string, time.Duration) {}
func (m *noopMetrics) RecordRetry(int, string)                             {}
func (m *noopMetrics) RecordError(string, string)                          {}
