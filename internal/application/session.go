package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"callrec/internal/domain"
	"callrec/internal/observe"
)

const teardownTimeout = 5 * time.Second

type SessionInfo struct {
	ID        string             `json:"session_id"`
	Artifact  string             `json:"artifact"`
	Location  string             `json:"location,omitempty"`
	Sink      string             `json:"sink"`
	Format    domain.AudioFormat `json:"-"`
	StartedAt time.Time          `json:"started_at"`
}

type Status struct {
	SessionInfo
	State        string     `json:"state"`
	Ticks        uint64     `json:"ticks"`
	BytesWritten int64      `json:"bytes_written"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// CaptureSession is one recording lifetime. It owns both streams, the sink
// writer and the authorization; only its worker touches them once capturing.
type CaptureSession struct {
	info       SessionInfo
	auth       *domain.Authorization
	mic        AudioSource
	playback   AudioSource
	sink       OutputSink
	indicator  Indicator
	frameBytes int
	clock      func() time.Time
	logger     *slog.Logger
	metrics    *observe.Metrics
	onClosed   func(*CaptureSession)

	micStream AudioStream
	pbStream  AudioStream
	writer    SinkWriter

	mu      sync.Mutex
	state   domain.SessionState
	lastErr error
	endedAt time.Time

	cancel  atomic.Bool
	ticks   atomic.Uint64
	written atomic.Int64
	done    chan struct{}
}

func (s *CaptureSession) ID() string { return s.info.ID }

func (s *CaptureSession) Info() SessionInfo { return s.info }

func (s *CaptureSession) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session reaches Closed.
func (s *CaptureSession) Done() <-chan struct{} { return s.done }

// Err is the error that ended the session, if any.
func (s *CaptureSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *CaptureSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		SessionInfo:  s.info,
		State:        s.state.String(),
		Ticks:        s.ticks.Load(),
		BytesWritten: s.written.Load(),
	}
	if !s.endedAt.IsZero() {
		ended := s.endedAt
		st.EndedAt = &ended
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *CaptureSession) setState(state domain.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// open runs Idle -> Opening -> (ready to capture). On failure everything
// already acquired is released and the session is Closed.
func (s *CaptureSession) open(ctx context.Context) error {
	if err := s.auth.Valid(s.clock()); err != nil {
		return s.fail(fmt.Errorf("validating capture grant: %w", err))
	}
	if !s.auth.Claim() {
		return s.fail(fmt.Errorf("%w: capture grant %s is bound to another session", domain.ErrAuthorization, s.auth.ID))
	}

	// From here on the grant belongs to this session and dies with it.
	var err error
	s.micStream, err = s.mic.Open(ctx, s.info.Format, nil)
	if err != nil {
		return s.abortOpen(fmt.Errorf("%w: opening %s source: %w", domain.ErrResource, s.mic.Name(), err))
	}

	s.pbStream, err = s.playback.Open(ctx, s.info.Format, s.auth)
	if err != nil {
		return s.abortOpen(fmt.Errorf("%w: opening %s source: %w", domain.ErrResource, s.playback.Name(), err))
	}

	s.writer, err = s.sink.Open(ctx, s.info.Artifact)
	if err != nil {
		return s.abortOpen(fmt.Errorf("%w: opening %s sink: %w", domain.ErrResource, s.sink.Name(), err))
	}
	s.info.Location = s.writer.Location()

	if err := s.indicator.Show(ctx, s.info); err != nil {
		return s.abortOpen(fmt.Errorf("%w: showing recording indicator: %w", domain.ErrResource, err))
	}

	return nil
}

func (s *CaptureSession) abortOpen(cause error) error {
	if s.writer != nil {
		if err := s.writer.Abort(); err != nil {
			s.logger.Warn("aborting sink", "error", err)
		}
	}
	s.closeStreams()
	s.auth.Invalidate()
	return s.fail(cause)
}

func (s *CaptureSession) fail(cause error) error {
	s.mu.Lock()
	s.state = domain.StateClosed
	s.lastErr = cause
	s.endedAt = s.clock()
	s.mu.Unlock()
	close(s.done)
	return cause
}

// start moves the session to Capturing, or straight to Stopping when a stop
// arrived while it was opening, and launches its worker.
func (s *CaptureSession) start() {
	s.mu.Lock()
	if s.cancel.Load() {
		s.state = domain.StateStopping
	} else {
		s.state = domain.StateCapturing
	}
	s.mu.Unlock()
	s.metrics.SessionsStarted.Add(context.Background(), 1)
	s.metrics.ActiveSessions.Add(context.Background(), 1)
	go s.run()
}

// requestStop raises the cancellation flag. A capturing session moves to
// Stopping; a session still opening keeps opening and its worker exits before
// the first tick. It reports false when there was nothing to stop.
func (s *CaptureSession) requestStop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case domain.StateCapturing:
		s.state = domain.StateStopping
	case domain.StateOpening:
	default:
		return false
	}
	return s.cancel.CompareAndSwap(false, true)
}

// teardown runs on the worker exactly once, after the loop has exited.
// Release errors are logged and never stop the remaining releases.
func (s *CaptureSession) teardown(cause error) {
	s.setState(domain.StateStopping)
	logger := s.logger.With("artifact", s.info.Artifact)

	s.closeStreams()

	if errors.Is(cause, domain.ErrWrite) {
		if err := s.writer.Abort(); err != nil {
			logger.Warn("aborting sink", "error", err)
		}
	} else if err := s.writer.Finalize(); err != nil {
		logger.Error("finalizing sink", "error", err)
		if cause == nil {
			cause = fmt.Errorf("%w: finalizing %s sink: %w", domain.ErrWrite, s.sink.Name(), err)
		}
		if err := s.writer.Abort(); err != nil {
			logger.Warn("aborting sink after failed finalize", "error", err)
		}
	}

	s.auth.Invalidate()

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := s.indicator.Dismiss(ctx, s.info.ID); err != nil {
		logger.Warn("dismissing recording indicator", "error", err)
	}

	s.mu.Lock()
	s.state = domain.StateClosed
	s.lastErr = cause
	s.endedAt = s.clock()
	s.mu.Unlock()

	s.metrics.ActiveSessions.Add(ctx, -1)
	s.metrics.SessionsEnded.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome(cause))))

	logger.Info("capture session closed",
		"ticks", s.ticks.Load(),
		"bytes", s.written.Load(),
	)
	close(s.done)

	if s.onClosed != nil {
		s.onClosed(s)
	}
}

func (s *CaptureSession) closeStreams() {
	if s.pbStream != nil {
		if err := s.pbStream.Close(); err != nil {
			s.logger.Warn("closing source", "source", s.playback.Name(), "error", err)
		}
		s.pbStream = nil
	}
	if s.micStream != nil {
		if err := s.micStream.Close(); err != nil {
			s.logger.Warn("closing source", "source", s.mic.Name(), "error", err)
		}
		s.micStream = nil
	}
}

func outcome(cause error) string {
	switch {
	case cause == nil:
		return "stopped"
	case errors.Is(cause, domain.ErrRead):
		return "read_error"
	case errors.Is(cause, domain.ErrWrite):
		return "write_error"
	default:
		return "error"
	}
}
