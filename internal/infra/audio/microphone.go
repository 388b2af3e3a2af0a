//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"callrec/internal/application"
	"callrec/internal/domain"
)

// MicrophoneSource captures the default input device through PortAudio's
// blocking API. A read waits for at most one buffer period.
type MicrophoneSource struct {
	frameBytes int
	logger     *slog.Logger
}

func NewMicrophoneSource(frameBytes int, logger *slog.Logger) *MicrophoneSource {
	return &MicrophoneSource{
		frameBytes: frameBytes,
		logger:     logger,
	}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Kind() domain.SourceKind {
	return domain.SourceMicrophone
}

func (m *MicrophoneSource) Open(_ context.Context, format domain.AudioFormat, _ *domain.Authorization) (application.AudioStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}

	inputChannels := format.Channels
	outputChannels := 0
	framesPerBuffer := m.frameBytes / format.BytesPerFrame()

	buffer := make([]int16, framesPerBuffer*format.Channels)

	stream, err := portaudio.OpenDefaultStream(
		inputChannels,
		outputChannels,
		float64(format.SampleRate),
		framesPerBuffer,
		buffer,
	)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("opening stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("starting stream: %w", err)
	}

	m.logger.Info("microphone started", "sampleRate", format.SampleRate, "framesPerBuffer", framesPerBuffer)
	return &micStream{stream: stream, buffer: buffer, logger: m.logger}, nil
}

type micStream struct {
	stream  *portaudio.Stream
	buffer  []int16
	pending pendingBuffer
	logger  *slog.Logger

	closeOnce sync.Once
}

func (s *micStream) ReadFrame(p []byte) (int, error) {
	if s.pending.len() > 0 {
		return s.pending.read(p), nil
	}

	if err := s.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return 0, fmt.Errorf("reading from stream: %w", err)
		}
		s.logger.Debug("microphone input overflowed")
	}

	s.pending.fill(samplesToBytes(s.pending.scratch(len(s.buffer)*2), s.buffer))
	return s.pending.read(p), nil
}

func (s *micStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = errors.Join(s.stream.Stop(), s.stream.Close(), portaudio.Terminate())
	})
	return err
}
