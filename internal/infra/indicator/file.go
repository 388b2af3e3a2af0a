// Package indicator publishes the "recording in progress" marker that status
// bars and other local tools watch while a capture session is running.
package indicator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"

	"callrec/internal/application"
)

const defaultRelPath = "callrec/recording.json"

type marker struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	Artifact  string    `json:"artifact"`
	Location  string    `json:"location"`
	StartedAt time.Time `json:"started_at"`
}

// File shows the indicator by writing a JSON marker and dismisses it by
// removing the marker.
type File struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	current string
}

// NewFile uses path, or $XDG_RUNTIME_DIR/callrec/recording.json when empty.
func NewFile(path string, logger *slog.Logger) (*File, error) {
	if path == "" {
		var err error
		path, err = xdg.RuntimeFile(defaultRelPath)
		if err != nil {
			return nil, fmt.Errorf("resolving indicator path: %w", err)
		}
	}
	return &File{path: path, logger: logger}, nil
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Show(_ context.Context, info application.SessionInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(marker{
		SessionID: info.ID,
		Title:     "Recording Call",
		Artifact:  info.Artifact,
		Location:  info.Location,
		StartedAt: info.StartedAt,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding indicator: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("creating indicator dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing indicator: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing indicator: %w", err)
	}

	f.current = info.ID
	f.logger.Debug("recording indicator shown", "path", f.path)
	return nil
}

// Dismiss removes the marker if it still belongs to sessionID.
func (f *File) Dismiss(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.current != sessionID {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing indicator: %w", err)
	}
	f.current = ""
	f.logger.Debug("recording indicator dismissed", "path", f.path)
	return nil
}
