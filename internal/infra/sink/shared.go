package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	"callrec/internal/application"
)

const pendingPrefix = ".pending-"

// SharedStorageSink writes into a collection other applications can read,
// by default the user's Downloads directory. The artifact is registered as
// a hidden pending entry and becomes visible only when Finalize renames it.
type SharedStorageSink struct {
	dir    string
	logger *slog.Logger
}

func NewSharedStorageSink(dir string, logger *slog.Logger) *SharedStorageSink {
	if dir == "" {
		dir = xdg.UserDirs.Download
	}
	return &SharedStorageSink{dir: dir, logger: logger}
}

func (s *SharedStorageSink) Name() string {
	return "shared"
}

func (s *SharedStorageSink) Dir() string {
	return s.dir
}

func (s *SharedStorageSink) Open(_ context.Context, name string) (application.SinkWriter, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("creating shared dir: %w", err)
	}

	final := filepath.Join(s.dir, name)
	if _, err := os.Stat(final); err == nil {
		return nil, fmt.Errorf("artifact %s already exists", name)
	}

	pending := filepath.Join(s.dir, pendingPrefix+name)
	file, err := os.OpenFile(pending, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("registering pending entry: %w", err)
	}

	s.logger.Info("pending shared entry registered", "path", pending)

	w := newFileWriter(final, file)
	w.publish = func() error {
		if err := os.Chmod(pending, 0644); err != nil {
			os.Remove(pending)
			return fmt.Errorf("publishing %s: %w", name, err)
		}
		if err := os.Rename(pending, final); err != nil {
			os.Remove(pending)
			return fmt.Errorf("publishing %s: %w", name, err)
		}
		s.logger.Info("recording published", "path", final)
		if err := syncDir(s.dir); err != nil {
			s.logger.Warn("syncing shared dir", "error", err)
		}
		return nil
	}
	w.discard = func(int64) error {
		if err := os.Remove(pending); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing pending %s: %w", name, err)
		}
		return nil
	}
	return w, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", dir, err)
	}
	return nil
}
