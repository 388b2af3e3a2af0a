//go:build !malgo

package audio

import (
	"context"
	"fmt"
	"log/slog"

	"callrec/internal/application"
	"callrec/internal/domain"
)

// LoopbackSource stub when the miniaudio backend is not compiled in.
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

func (l *LoopbackSource) Open(_ context.Context, _ domain.AudioFormat, auth *domain.Authorization) (application.AudioStream, error) {
	if err := checkPlaybackGrant(auth, l.cfg.Usages, l.cfg.Clock()); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("loopback source not available: rebuild with -tags malgo")
}
