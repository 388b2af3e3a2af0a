package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"callrec/internal/application"
	"callrec/internal/domain"
)

// FileSource replays a headerless PCM file as if it were a capture device.
// Used as a playback source it enforces the capture grant like loopback does.
// Once the file is exhausted every read reports no data after one idle period.
type FileSource struct {
	path     string
	kind     domain.SourceKind
	usages   []domain.Usage
	realtime bool
	idle     time.Duration
	clock    func() time.Time
}

type FileOptions struct {
	Usages []domain.Usage
	// Realtime paces reads at the format's byte rate.
	Realtime bool
	Idle     time.Duration
	Clock    func() time.Time
}

func NewFileSource(path string, kind domain.SourceKind, opts FileOptions) *FileSource {
	f := &FileSource{
		path:     path,
		kind:     kind,
		usages:   opts.Usages,
		realtime: opts.Realtime,
		idle:     opts.Idle,
		clock:    opts.Clock,
	}
	if len(f.usages) == 0 {
		f.usages = domain.DefaultUsages()
	}
	if f.idle <= 0 {
		f.idle = 20 * time.Millisecond
	}
	if f.clock == nil {
		f.clock = time.Now
	}
	return f
}

func (f *FileSource) Name() string {
	return "file:" + filepath.Base(f.path)
}

func (f *FileSource) Kind() domain.SourceKind {
	return f.kind
}

func (f *FileSource) Open(_ context.Context, format domain.AudioFormat, auth *domain.Authorization) (application.AudioStream, error) {
	if f.kind == domain.SourcePlayback {
		if err := checkPlaybackGrant(auth, f.usages, f.clock()); err != nil {
			return nil, err
		}
	}

	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("opening audio file: %w", err)
	}

	s := &fileStream{
		src:    f,
		file:   file,
		format: format,
	}
	if f.kind == domain.SourcePlayback {
		s.auth = auth
	}
	return s, nil
}

type fileStream struct {
	src    *FileSource
	file   *os.File
	format domain.AudioFormat
	auth   *domain.Authorization
	eof    bool
	next   time.Time

	closeOnce sync.Once
}

func (s *fileStream) ReadFrame(p []byte) (int, error) {
	if s.auth != nil {
		if err := s.auth.Valid(s.src.clock()); err != nil {
			return 0, err
		}
	}

	if s.eof {
		time.Sleep(s.src.idle)
		return 0, nil
	}

	n, err := io.ReadFull(s.file, p)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.eof = true
	case err != nil:
		return 0, fmt.Errorf("reading %s: %w", s.src.path, err)
	}

	if s.src.realtime && n > 0 {
		s.pace(n)
	}
	return n, nil
}

func (s *fileStream) pace(n int) {
	now := time.Now()
	if s.next.IsZero() {
		s.next = now
	}
	s.next = s.next.Add(s.format.Duration(n))
	if wait := s.next.Sub(now); wait > 0 {
		time.Sleep(wait)
	}
}

func (s *fileStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.file.Close()
	})
	return err
}
