package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"callrec/internal/domain"
)

var (
	micAttrs      = metric.WithAttributes(attribute.String("source", string(domain.SourceMicrophone)))
	playbackAttrs = metric.WithAttributes(attribute.String("source", string(domain.SourcePlayback)))
)

func (s *CaptureSession) run() {
	s.logger.Info("capture loop started", "frame_bytes", s.frameBytes)

	err := s.capture()
	if err != nil {
		s.logger.Error("capture loop aborted", "error", err, "ticks", s.ticks.Load())
	}
	s.teardown(err)
}

// capture drives read mic -> read playback -> merge -> append until the
// cancellation flag is raised or an I/O error occurs. Errors are not retried.
func (s *CaptureSession) capture() error {
	ctx := context.Background()
	micBuf := make([]byte, s.frameBytes)
	pbBuf := make([]byte, s.frameBytes)
	var mixer FrameMixer

	for !s.cancel.Load() {
		began := time.Now()

		n, err := s.micStream.ReadFrame(micBuf)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrRead, s.mic.Name(), err)
		}
		m, err := s.pbStream.ReadFrame(pbBuf)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrRead, s.playback.Name(), err)
		}

		if n > 0 {
			s.metrics.FramesRead.Add(ctx, 1, micAttrs)
		}
		if m > 0 {
			s.metrics.FramesRead.Add(ctx, 1, playbackAttrs)
		}

		merged := mixer.Merge(micBuf[:n], pbBuf[:m])
		if len(merged) > 0 {
			if err := s.writer.Append(merged); err != nil {
				return fmt.Errorf("%w: %s: %w", domain.ErrWrite, s.sink.Name(), err)
			}
			s.written.Add(int64(len(merged)))
			s.metrics.BytesWritten.Add(ctx, int64(len(merged)))
		}

		seq := s.ticks.Add(1)
		s.metrics.TickDuration.Record(ctx, time.Since(began).Seconds())
		if seq%1000 == 0 {
			s.logger.Debug("capture progress", "ticks", seq, "bytes", s.written.Load())
		}
	}
	return nil
}
