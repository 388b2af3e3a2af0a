// Package observe holds the OpenTelemetry instruments recorded by the
// capture engine and the control server, plus the SDK wiring that exposes
// them to Prometheus.
//
// Tests should build their own [Metrics] with [NewMetrics] on top of a
// manual reader instead of using [DefaultMetrics].
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "callrec"

// Metrics groups every instrument. The OTel types synchronise internally.
type Metrics struct {
	// SessionsStarted counts sessions that reached capturing.
	SessionsStarted metric.Int64Counter

	// SessionsEnded counts closed sessions. Use with attribute:
	//   attribute.String("outcome", "stopped"|"read_error"|"write_error")
	SessionsEnded metric.Int64Counter

	// StartFailures counts rejected starts. Use with attribute:
	//   attribute.String("reason", "authorization"|"resource"|"busy")
	StartFailures metric.Int64Counter

	// FramesRead counts non-empty frames. Use with attribute:
	//   attribute.String("source", "playback"|"microphone")
	FramesRead metric.Int64Counter

	// BytesWritten counts merged bytes appended to sinks.
	BytesWritten metric.Int64Counter

	// ActiveSessions is 1 while a session is capturing.
	ActiveSessions metric.Int64UpDownCounter

	// TickDuration tracks one read-mix-write cycle.
	TickDuration metric.Float64Histogram

	// HTTPRequestDuration tracks control API latency. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

var tickBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SessionsStarted, err = m.Int64Counter("callrec.sessions.started",
		metric.WithDescription("Capture sessions that reached the capturing state."),
	); err != nil {
		return nil, err
	}
	if met.SessionsEnded, err = m.Int64Counter("callrec.sessions.ended",
		metric.WithDescription("Capture sessions closed, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.StartFailures, err = m.Int64Counter("callrec.sessions.start_failures",
		metric.WithDescription("Rejected capture starts, by reason."),
	); err != nil {
		return nil, err
	}
	if met.FramesRead, err = m.Int64Counter("callrec.frames.read",
		metric.WithDescription("Non-empty frames read, by source."),
	); err != nil {
		return nil, err
	}
	if met.BytesWritten, err = m.Int64Counter("callrec.bytes.written",
		metric.WithDescription("Merged PCM bytes appended to the output artifact."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("callrec.active_sessions",
		metric.WithDescription("Number of capturing sessions."),
	); err != nil {
		return nil, err
	}
	if met.TickDuration, err = m.Float64Histogram("callrec.tick.duration",
		metric.WithDescription("Duration of one read, mix and write cycle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(tickBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("callrec.http.request.duration",
		metric.WithDescription("Control API request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide instance bound to the global
// MeterProvider. It panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: creating default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
