//go:build malgo

package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"callrec/internal/application"
	"callrec/internal/domain"
)

// LoopbackSource records what the default output device is playing. The
// device callback pushes into a bounded queue; ReadFrame waits on it for at
// most ReadTimeout and reports no data otherwise.
type LoopbackSource struct {
	cfg    LoopbackConfig
	logger *slog.Logger
}

func NewLoopbackSource(cfg LoopbackConfig, logger *slog.Logger) *LoopbackSource {
	return &LoopbackSource{cfg: cfg.withDefaults(), logger: logger}
}

func (l *LoopbackSource) Name() string {
	return "loopback"
}

func (l *LoopbackSource) Kind() domain.SourceKind {
	return domain.SourcePlayback
}

func (l *LoopbackSource) Open(_ context.Context, format domain.AudioFormat, auth *domain.Authorization) (application.AudioStream, error) {
	if err := checkPlaybackGrant(auth, l.cfg.Usages, l.cfg.Clock()); err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		l.logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("init malgo context: %w", err)
	}

	s := &loopbackStream{
		ctx:         mctx,
		auth:        auth,
		clock:       l.cfg.Clock,
		readTimeout: l.cfg.ReadTimeout,
		dataCh:      make(chan []byte, l.cfg.QueueDepth),
		logger:      l.logger,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Loopback)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSample []byte, _ uint32) {
			// The backend reuses its buffer.
			b := make([]byte, len(pInputSample))
			copy(b, pInputSample)
			select {
			case s.dataCh <- b:
			default:
				s.dropped.Add(1)
			}
		},
	}

	dev, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("init loopback device: %w", err)
	}
	s.device = dev
	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("start loopback device: %w", err)
	}

	l.logger.Info("loopback capture started",
		"sampleRate", format.SampleRate,
		"usages", l.cfg.Usages,
		"grant", auth.ID,
	)
	return s, nil
}

type loopbackStream struct {
	ctx         *malgo.AllocatedContext
	device      *malgo.Device
	auth        *domain.Authorization
	clock       func() time.Time
	readTimeout time.Duration
	dataCh      chan []byte
	pending     pendingBuffer
	dropped     atomic.Int64
	logger      *slog.Logger

	closeOnce sync.Once
}

func (s *loopbackStream) ReadFrame(p []byte) (int, error) {
	// The grant is time-scoped; capture stops the moment it lapses.
	if err := s.auth.Valid(s.clock()); err != nil {
		return 0, err
	}

	if s.pending.len() > 0 {
		return s.pending.read(p), nil
	}

	timer := time.NewTimer(s.readTimeout)
	defer timer.Stop()

	select {
	case b := <-s.dataCh:
		s.pending.fill(b)
		return s.pending.read(p), nil
	case <-timer.C:
		return 0, nil
	}
}

func (s *loopbackStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.device != nil {
			err = s.device.Stop()
			s.device.Uninit()
		}
		err = errors.Join(err, s.ctx.Uninit())
		s.ctx.Free()
		if n := s.dropped.Load(); n > 0 {
			s.logger.Warn("loopback frames dropped by slow consumer", "frames", n)
		}
	})
	return err
}
