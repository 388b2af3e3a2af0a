package application_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"callrec/internal/application"
	"callrec/internal/domain"
	"callrec/internal/observe"
)

// fakeSource hands out fakeStreams that emit frameSize-byte frames filled
// with fill, limit frames at most, then report no data.
type fakeSource struct {
	name      string
	kind      domain.SourceKind
	frameSize int
	fill      byte
	limit     int
	failAfter int
	openErr   error
	checkAuth bool
	// opening is closed when Open is entered; Open then blocks until
	// openGate is closed.
	opening  chan struct{}
	openGate chan struct{}

	mu     sync.Mutex
	opens  int
	closes int
	reads  int
	onRead func()
}

func (f *fakeSource) Name() string            { return f.name }
func (f *fakeSource) Kind() domain.SourceKind { return f.kind }

func (f *fakeSource) Open(_ context.Context, _ domain.AudioFormat, auth *domain.Authorization) (application.AudioStream, error) {
	if f.openGate != nil {
		close(f.opening)
		<-f.openGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	return &fakeStream{src: f, auth: auth}, nil
}

func (f *fakeSource) counts() (opens, closes, reads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes, f.reads
}

type fakeStream struct {
	src    *fakeSource
	auth   *domain.Authorization
	closed bool
}

var errDevice = errors.New("device gone")

func (s *fakeStream) ReadFrame(p []byte) (int, error) {
	f := s.src
	f.mu.Lock()
	f.reads++
	reads := f.reads
	onRead := f.onRead
	f.mu.Unlock()

	if onRead != nil {
		onRead()
	}
	if f.checkAuth {
		if err := s.auth.Valid(time.Now()); err != nil {
			return 0, err
		}
	}
	if f.failAfter > 0 && reads > f.failAfter {
		return 0, errDevice
	}
	if f.limit > 0 && reads > f.limit {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	if f.frameSize == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := min(f.frameSize, len(p))
	for i := range n {
		p[i] = f.fill
	}
	return n, nil
}

func (s *fakeStream) Close() error {
	s.src.mu.Lock()
	defer s.src.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.src.closes++
	}
	return nil
}

type fakeSink struct {
	openErr   error
	appendErr error
	failAfter int

	mu        sync.Mutex
	opened    []string
	data      bytes.Buffer
	appends   int
	finalized int
	aborted   int
}

func (f *fakeSink) Name() string { return "memory" }

func (f *fakeSink) Open(_ context.Context, name string) (application.SinkWriter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened = append(f.opened, name)
	return &fakeWriter{sink: f, name: name}, nil
}

func (f *fakeSink) snapshot() (data []byte, appends, finalized, aborted int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return bytes.Clone(f.data.Bytes()), f.appends, f.finalized, f.aborted
}

type fakeWriter struct {
	sink *fakeSink
	name string
}

func (w *fakeWriter) Location() string { return "mem://" + w.name }

func (w *fakeWriter) Append(p []byte) error {
	f := w.sink
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && f.appends >= f.failAfter {
		return f.appendErr
	}
	f.appends++
	f.data.Write(p)
	return nil
}

func (w *fakeWriter) Written() int64 {
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	return int64(w.sink.data.Len())
}

func (w *fakeWriter) Finalize() error {
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	w.sink.finalized++
	return nil
}

func (w *fakeWriter) Abort() error {
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	w.sink.aborted++
	return nil
}

type fakeIndicator struct {
	mu        sync.Mutex
	showErr   error
	visible   bool
	shown     int
	dismissed int
}

func (f *fakeIndicator) Show(_ context.Context, _ application.SessionInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.showErr != nil {
		return f.showErr
	}
	f.visible = true
	f.shown++
	return nil
}

func (f *fakeIndicator) Dismiss(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible = false
	f.dismissed++
	return nil
}

func (f *fakeIndicator) isVisible() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visible
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Notify(_ context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

type harness struct {
	mic       *fakeSource
	playback  *fakeSource
	sink      *fakeSink
	indicator *fakeIndicator
	manager   *application.CaptureManager
}

func newHarness(t *testing.T, mic, playback *fakeSource, sink *fakeSink) *harness {
	t.Helper()
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	h := &harness{
		mic:       mic,
		playback:  playback,
		sink:      sink,
		indicator: &fakeIndicator{},
	}
	h.manager = application.NewCaptureManager(application.ManagerConfig{
		Microphone:     mic,
		Playback:       playback,
		Sink:           sink,
		Indicator:      h.indicator,
		Notifier:       &recordingNotifier{},
		Metrics:        metrics,
		FrameBytes:     2048,
		AutoStopOnIdle: true,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}

func newAuth(ttl time.Duration) *domain.Authorization {
	now := time.Now()
	return &domain.Authorization{
		ID:        "grant-1",
		Usages:    domain.DefaultUsages(),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
