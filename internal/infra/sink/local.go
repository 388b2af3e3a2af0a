package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"callrec/internal/application"
)

type LocalFileSink struct {
	dir    string
	logger *slog.Logger
}

func NewLocalFileSink(dir string, logger *slog.Logger) *LocalFileSink {
	return &LocalFileSink{dir: dir, logger: logger}
}

func (s *LocalFileSink) Name() string {
	return "local"
}

func (s *LocalFileSink) Open(_ context.Context, name string) (application.SinkWriter, error) {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return nil, fmt.Errorf("creating recordings dir: %w", err)
	}

	path := filepath.Join(s.dir, name)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}

	s.logger.Info("recording file created", "path", path)

	w := newFileWriter(path, file)
	w.discard = func(written int64) error {
		// An aborted session keeps the complete frames it captured; only an
		// empty file is cleaned up.
		if written > 0 {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing empty %s: %w", name, err)
		}
		return nil
	}
	return w, nil
}
