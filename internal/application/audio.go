package application

import (
	"context"

	"callrec/internal/domain"
)

// AudioSource opens an exclusive capture stream on a device.
type AudioSource interface {
	Name() string
	Kind() domain.SourceKind
	Open(ctx context.Context, format domain.AudioFormat, auth *domain.Authorization) (AudioStream, error)
}

// AudioStream is an open capture handle. ReadFrame fills p with at most
// len(p) bytes and may return 0 when no data is currently available; it must
// return within a bounded device timeout. Close releases the device.
type AudioStream interface {
	ReadFrame(p []byte) (int, error)
	Close() error
}
