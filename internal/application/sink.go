package application

import "context"

// OutputSink creates named, append-only artifacts.
type OutputSink interface {
	Name() string
	Open(ctx context.Context, name string) (SinkWriter, error)
}

// SinkWriter is one open artifact. Exactly one of Finalize or Abort is called.
// Abort must never leave a partially written artifact visible to other
// applications where the sink publishes artifacts.
type SinkWriter interface {
	Location() string
	Append(p []byte) error
	Written() int64
	Finalize() error
	Abort() error
}
