//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"

	"callrec/internal/application"
	"callrec/internal/domain"
)

// MicrophoneSource stub when portaudio is not available
type MicrophoneSource struct {
	logger *slog.Logger
}

func NewMicrophoneSource(frameBytes int, logger *slog.Logger) *MicrophoneSource {
	return &MicrophoneSource{logger: logger}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Kind() domain.SourceKind {
	return domain.SourceMicrophone
}

func (m *MicrophoneSource) Open(_ context.Context, _ domain.AudioFormat, _ *domain.Authorization) (application.AudioStream, error) {
	return nil, fmt.Errorf("microphone source not available: rebuild with -tags portaudio")
}
