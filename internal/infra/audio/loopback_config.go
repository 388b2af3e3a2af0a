package audio

import (
	"time"

	"callrec/internal/domain"
)

type LoopbackConfig struct {
	// Usages restricts capture to these playback categories. The grant must
	// permit every one of them.
	Usages      []domain.Usage
	ReadTimeout time.Duration
	QueueDepth  int
	Clock       func() time.Time
}

func (c LoopbackConfig) withDefaults() LoopbackConfig {
	if len(c.Usages) == 0 {
		c.Usages = domain.DefaultUsages()
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 250 * time.Millisecond
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 64
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}
