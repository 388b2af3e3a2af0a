package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"callrec/internal/domain"
	"callrec/internal/observe"
)

const (
	DefaultFrameBytes = 2048
	notifyTimeout     = 30 * time.Second
)

type ManagerConfig struct {
	Microphone AudioSource
	Playback   AudioSource
	Sink       OutputSink
	Indicator  Indicator
	Notifier   Notifier
	Metrics    *observe.Metrics
	Format     domain.AudioFormat
	FrameBytes int

	// AutoStopOnIdle stops a capturing session when the call returns to idle.
	AutoStopOnIdle bool

	Clock  func() time.Time
	Logger *slog.Logger
}

// CaptureManager starts and stops capture sessions. At most one session is
// active at a time. All exported methods are safe for concurrent use.
type CaptureManager struct {
	cfg ManagerConfig

	mu        sync.Mutex
	active    *CaptureSession
	last      *CaptureSession
	callState domain.CallState
}

func NewCaptureManager(cfg ManagerConfig) *CaptureManager {
	if cfg.Indicator == nil {
		cfg.Indicator = &NoopIndicator{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = &NoopNotifier{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Format == (domain.AudioFormat{}) {
		cfg.Format = domain.DefaultAudioFormat()
	}
	if cfg.FrameBytes <= 0 {
		cfg.FrameBytes = DefaultFrameBytes
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CaptureManager{cfg: cfg, callState: domain.CallIdle}
}

// Start validates auth, opens both sources and the sink and launches the
// capture loop. Errors are wrapped around domain.ErrAuthorization,
// domain.ErrResource or domain.ErrSessionActive. The manager lock is only held
// to reserve the slot; devices are opened without it so Status and call-state
// updates are not blocked by a slow open.
func (m *CaptureManager) Start(ctx context.Context, auth *domain.Authorization) (SessionInfo, error) {
	m.mu.Lock()
	if m.active != nil && m.active.State() != domain.StateClosed {
		id := m.active.ID()
		m.mu.Unlock()
		m.recordStartFailure(ctx, "busy")
		return SessionInfo{}, fmt.Errorf("%w: session %s", domain.ErrSessionActive, id)
	}
	if err := m.cfg.Format.Validate(); err != nil {
		m.mu.Unlock()
		m.recordStartFailure(ctx, "resource")
		return SessionInfo{}, fmt.Errorf("%w: %w", domain.ErrResource, err)
	}

	created := m.cfg.Clock()
	id := uuid.NewString()
	s := &CaptureSession{
		info: SessionInfo{
			ID:        id,
			Artifact:  domain.ArtifactName(created),
			Sink:      m.cfg.Sink.Name(),
			Format:    m.cfg.Format,
			StartedAt: created,
		},
		auth:       auth,
		mic:        m.cfg.Microphone,
		playback:   m.cfg.Playback,
		sink:       m.cfg.Sink,
		indicator:  m.cfg.Indicator,
		frameBytes: m.cfg.FrameBytes,
		clock:      m.cfg.Clock,
		logger:     m.cfg.Logger.With("session_id", id),
		metrics:    m.cfg.Metrics,
		onClosed:   m.sessionClosed,
		state:      domain.StateOpening,
		done:       make(chan struct{}),
	}
	m.active = s
	m.last = s
	m.mu.Unlock()

	if err := s.open(ctx); err != nil {
		m.mu.Lock()
		if m.active == s {
			m.active = nil
		}
		m.mu.Unlock()

		reason := "resource"
		if errors.Is(err, domain.ErrAuthorization) {
			reason = "authorization"
		}
		m.recordStartFailure(ctx, reason)
		s.logger.Warn("capture session rejected", "error", err)
		return SessionInfo{}, err
	}

	s.start()

	info := s.Info()
	s.logger.Info("capture session started",
		"artifact", info.Artifact,
		"location", info.Location,
		"sink", info.Sink,
		"format", info.Format.String(),
	)
	go m.notify(fmt.Sprintf("Recording call to %s", info.Artifact))

	return info, nil
}

// Stop signals the active session, waits for its worker to release every
// resource and returns the final status. It is a no-op when nothing is
// capturing, including when capture never started.
func (m *CaptureManager) Stop(ctx context.Context) (Status, error) {
	m.mu.Lock()
	s := m.active
	m.mu.Unlock()

	if s == nil {
		return m.Status(), nil
	}
	if s.requestStop() {
		s.logger.Info("stopping capture session")
	}

	select {
	case <-s.Done():
	case <-ctx.Done():
		return s.Status(), ctx.Err()
	}

	m.mu.Lock()
	if m.active == s {
		m.active = nil
	}
	m.mu.Unlock()

	return s.Status(), nil
}

// Wait blocks until the active session, if any, is closed.
func (m *CaptureManager) Wait(ctx context.Context) error {
	m.mu.Lock()
	s := m.active
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	select {
	case <-s.Done():
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status describes the active session or, if none, the most recent one.
func (m *CaptureManager) Status() Status {
	m.mu.Lock()
	s := m.last
	m.mu.Unlock()
	if s == nil {
		return Status{State: domain.StateIdle.String()}
	}
	return s.Status()
}

// HandleCallState records a telephony transition reported by the host.
func (m *CaptureManager) HandleCallState(ctx context.Context, state domain.CallState) error {
	m.mu.Lock()
	prev := m.callState
	m.callState = state
	capturing := m.active != nil && m.active.State() == domain.StateCapturing
	m.mu.Unlock()

	logger := m.cfg.Logger.With("call_state", string(state), "previous", string(prev))
	switch state {
	case domain.CallRinging:
		logger.Info("incoming call ringing")
	case domain.CallOffhook:
		logger.Info("call started", "capturing", capturing)
	case domain.CallIdle:
		logger.Info("call ended", "capturing", capturing)
		if capturing && m.cfg.AutoStopOnIdle && prev != domain.CallIdle {
			if _, err := m.Stop(ctx); err != nil {
				return fmt.Errorf("stopping capture on call end: %w", err)
			}
		}
	}
	return nil
}

func (m *CaptureManager) CallState() domain.CallState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callState
}

func (m *CaptureManager) sessionClosed(s *CaptureSession) {
	m.mu.Lock()
	if m.active == s {
		m.active = nil
	}
	m.mu.Unlock()

	st := s.Status()
	if st.LastError != "" {
		m.notify(fmt.Sprintf("Recording %s ended with error: %s", st.Artifact, st.LastError))
		return
	}
	m.notify(fmt.Sprintf("Recording saved: %s (%d bytes)", st.Artifact, st.BytesWritten))
}

func (m *CaptureManager) notify(message string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := m.cfg.Notifier.Notify(ctx, message); err != nil {
		m.cfg.Logger.Warn("sending notification", "error", err)
	}
}

func (m *CaptureManager) recordStartFailure(ctx context.Context, reason string) {
	m.cfg.Metrics.StartFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
